package llm

import (
	"context"
	"errors"
	"time"

	"github.com/edufund/veriflow/internal/ports"
)

// metricsLLM records latency, request counts, and token usage for
// every oracle call.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware returns middleware that reports request metrics to
// the given collector. A nil collector disables recording without
// changing behavior.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector != nil {
		labels := map[string]string{
			"model":  m.next.GetModel(),
			"status": requestStatus(ctx, err),
		}
		m.collector.RecordHistogram("oracle_request_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("oracle_requests_total", 1, labels)
		if err == nil {
			m.collector.RecordCounter("oracle_tokens_total", float64(tokensIn+tokensOut), labels)
		}
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (m *metricsLLM) GetModel() string { return m.next.GetModel() }
