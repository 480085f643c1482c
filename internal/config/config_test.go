package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "rules.d", cfg.RulesDir)
	assert.Equal(t, "vector_store/index.json", cfg.CacheIndexPath)
	assert.Equal(t, 0.95, cfg.CacheThreshold)
	assert.Equal(t, 10000, cfg.DedupeCap)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 120*time.Second, cfg.GenTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay())
	assert.Equal(t, 10*time.Second, cfg.HeaderScanTimeout())
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http_addr: ":9090"
rules_dir: /etc/aisuite/rules.d
cache_threshold: 0.9
llm_provider: local
llm_base_url: http://localhost:11434
retry_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "/etc/aisuite/rules.d", cfg.RulesDir)
	assert.Equal(t, 0.9, cfg.CacheThreshold)
	assert.Equal(t, "local", cfg.LLMProvider)
	assert.Equal(t, "http://localhost:11434", cfg.LLMBaseURL)
	assert.Equal(t, 5, cfg.RetryAttempts)

	// Values the file omits keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 10000, cfg.DedupeCap)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`http_addr: ":9090"`), 0o644))

	t.Setenv("AISUITE_HTTP_ADDR", ":7070")
	t.Setenv("AISUITE_CACHE_THRESHOLD", "0.85")
	t.Setenv("AISUITE_RETRY_ATTEMPTS", "7")
	t.Setenv("AISUITE_LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 0.85, cfg.CacheThreshold)
	assert.Equal(t, 7, cfg.RetryAttempts)
	assert.Equal(t, "sk-test", cfg.LLMAPIKey)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	t.Setenv("AISUITE_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.LLMAPIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	t.Setenv("AISUITE_RETRY_ATTEMPTS", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RetryAttempts)
}
