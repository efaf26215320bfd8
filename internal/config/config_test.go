package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufund/veriflow/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VERIFLOW_ORACLE_PROVIDER", "none")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 2, cfg.OracleRetries)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VERIFLOW_ORACLE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VERIFLOW_PORT", "9090")
	t.Setenv("VERIFLOW_ORACLE_TIMEOUT", "10s")
	t.Setenv("VERIFLOW_BATCH_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, "sk-test", cfg.ProviderAPIKey())
}

func TestLoad_MissingProviderKey(t *testing.T) {
	t.Setenv("VERIFLOW_ORACLE_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestLoad_UnknownProvider(t *testing.T) {
	t.Setenv("VERIFLOW_ORACLE_PROVIDER", "oracle-of-delphi")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown oracle provider")
}

func TestLoadPromptConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `
prompts:
  school: "Check {{.Name}} carefully"
  request: "Assess the amount for {{.Name}}"
temperature: 0.2
max_tokens: 2048
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadPromptConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 2048, cfg.MaxTokens)

	templates := cfg.Templates()
	assert.Equal(t, "Check {{.Name}} carefully", templates[domain.KindSchool])
	assert.Len(t, templates, 2)
}

func TestLoadPromptConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadPromptConfig("")
	require.NoError(t, err)
	assert.Nil(t, cfg.Templates())
}

func TestLoadPromptConfig_RejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "prompts:\n  charity: \"Check {{.Name}}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadPromptConfig(path)
	assert.Error(t, err, "kinds outside the supported set fail validation")
}

func TestLoadPromptConfig_RejectsOutOfRangeTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temperature: 3.5\n"), 0o600))

	_, err := LoadPromptConfig(path)
	assert.Error(t, err)
}
