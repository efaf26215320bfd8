// Command veriflowd runs the verification engine: an HTTP service that
// scores school, student, college, and funding-request records with a
// generative-model oracle and drives their status transitions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/edufund/veriflow/infrastructure/llm"
	"github.com/edufund/veriflow/infrastructure/middleware"
	"github.com/edufund/veriflow/internal/config"
	"github.com/edufund/veriflow/internal/ports"
	"github.com/edufund/veriflow/internal/server"
	"github.com/edufund/veriflow/internal/storage"
	"github.com/edufund/veriflow/internal/verify"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("VERIFLOW_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("veriflow starting", "version", version, "port", cfg.Port, "provider", cfg.OracleProvider)

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	metrics := middleware.NewPrometheusMetrics()

	oracleClient, err := newOracleClient(cfg, metrics)
	if err != nil {
		return fmt.Errorf("oracle client: %w", err)
	}

	promptCfg, err := config.LoadPromptConfig(cfg.PromptConfigPath)
	if err != nil {
		return err
	}

	oracle, err := verify.NewOracle(oracleClient, verify.OracleConfig{
		Templates:   promptCfg.Templates(),
		Temperature: promptCfg.Temperature,
		MaxTokens:   promptCfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if !oracle.Configured() {
		logger.Warn("no oracle configured, all verifications will take the neutral fallback path")
	}

	orchestrator, err := verify.NewOrchestrator(db, db, oracle, logger,
		verify.WithMetrics(metrics),
		verify.WithBatchConcurrency(cfg.BatchConcurrency),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	srv := server.New(server.ServerConfig{
		Orchestrator:   orchestrator,
		Entities:       db,
		Logs:           db,
		Health:         db,
		Logger:         logger,
		Port:           cfg.Port,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxRequestBody: cfg.MaxRequestBody,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newOracleClient assembles the provider client with its middleware
// chain. Provider "none" returns nil, which runs the engine in
// fallback-only mode.
func newOracleClient(cfg config.Config, metrics ports.MetricsCollector) (ports.LLMClient, error) {
	if cfg.OracleProvider == config.ProviderNone {
		return nil, nil
	}

	chain := []llm.Middleware{
		llm.TimeoutMiddleware(cfg.OracleTimeout),
		llm.RetryMiddleware(cfg.OracleRetries, 500*time.Millisecond, 5*time.Second),
	}
	if cfg.OracleRateLimit > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(cfg.OracleRateLimit), 1))
	}
	chain = append(chain, llm.MetricsMiddleware(metrics))

	return llm.NewClient(cfg.OracleProvider, llm.ClientConfig{
		APIKey:     cfg.ProviderAPIKey(),
		Model:      cfg.OracleModel,
		Timeout:    cfg.OracleTimeout,
		Middleware: chain,
	})
}
