package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the analysis service.
// Values come from an optional YAML file, with environment variables
// taking precedence over both the file and the built-in defaults.
type Config struct {
	HTTPAddr       string  `yaml:"http_addr"`
	RulesDir       string  `yaml:"rules_dir"`
	CacheIndexPath string  `yaml:"cache_index_path"`
	CacheThreshold float64 `yaml:"cache_threshold"`
	DedupeCap      int     `yaml:"dedupe_cap"`
	NATSURL        string  `yaml:"nats_url"`

	LLMProvider    string  `yaml:"llm_provider"`
	LLMModel       string  `yaml:"llm_model"`
	LLMBaseURL     string  `yaml:"llm_base_url"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	EmbeddingModel string  `yaml:"embedding_model"`

	LLMTimeoutSeconds  int `yaml:"llm_timeout_seconds"`
	GenTimeoutSeconds  int `yaml:"gen_timeout_seconds"`
	RetryAttempts      int `yaml:"retry_attempts"`
	RetryBaseDelayMs   int `yaml:"retry_base_delay_ms"`
	HeaderScanTimeoutS int `yaml:"header_scan_timeout_seconds"`

	// Secret, environment only
	LLMAPIKey string `yaml:"-"`
}

// Default returns the built-in configuration defaults
func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		RulesDir:           "rules.d",
		CacheIndexPath:     "vector_store/index.json",
		CacheThreshold:     0.95,
		DedupeCap:          10000,
		LLMProvider:        "openai",
		LLMModel:           "gpt-4o-mini",
		LLMMaxTokens:       4000,
		LLMTemperature:     0.8,
		EmbeddingModel:     "text-embedding-3-small",
		LLMTimeoutSeconds:  60,
		GenTimeoutSeconds:  120,
		RetryAttempts:      3,
		RetryBaseDelayMs:   500,
		HeaderScanTimeoutS: 10,
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, in that order
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LLMTimeout returns the per-call provider timeout
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// GenTimeout returns the overall report generation deadline
func (c Config) GenTimeout() time.Duration {
	return time.Duration(c.GenTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial retry backoff
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// HeaderScanTimeout returns the website header scan timeout
func (c Config) HeaderScanTimeout() time.Duration {
	return time.Duration(c.HeaderScanTimeoutS) * time.Second
}

// applyEnv overrides configuration values from the environment
func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("AISUITE_HTTP_ADDR", c.HTTPAddr)
	c.RulesDir = getEnv("AISUITE_RULES_DIR", c.RulesDir)
	c.CacheIndexPath = getEnv("AISUITE_CACHE_INDEX", c.CacheIndexPath)
	c.CacheThreshold = getEnvFloat("AISUITE_CACHE_THRESHOLD", c.CacheThreshold)
	c.DedupeCap = getEnvInt("AISUITE_DEDUPE_CAP", c.DedupeCap)
	c.NATSURL = getEnv("AISUITE_NATS_URL", c.NATSURL)

	c.LLMProvider = getEnv("AISUITE_LLM_PROVIDER", c.LLMProvider)
	c.LLMModel = getEnv("AISUITE_LLM_MODEL", c.LLMModel)
	c.LLMBaseURL = getEnv("AISUITE_LLM_BASE_URL", c.LLMBaseURL)
	c.LLMMaxTokens = getEnvInt("AISUITE_LLM_MAX_TOKENS", c.LLMMaxTokens)
	c.LLMTemperature = getEnvFloat("AISUITE_LLM_TEMPERATURE", c.LLMTemperature)
	c.EmbeddingModel = getEnv("AISUITE_EMBEDDING_MODEL", c.EmbeddingModel)

	c.LLMTimeoutSeconds = getEnvInt("AISUITE_LLM_TIMEOUT_SEC", c.LLMTimeoutSeconds)
	c.GenTimeoutSeconds = getEnvInt("AISUITE_GEN_TIMEOUT_SEC", c.GenTimeoutSeconds)
	c.RetryAttempts = getEnvInt("AISUITE_RETRY_ATTEMPTS", c.RetryAttempts)
	c.RetryBaseDelayMs = getEnvInt("AISUITE_RETRY_BASE_DELAY_MS", c.RetryBaseDelayMs)
	c.HeaderScanTimeoutS = getEnvInt("AISUITE_HEADER_SCAN_TIMEOUT_SEC", c.HeaderScanTimeoutS)

	c.LLMAPIKey = getEnv("AISUITE_LLM_API_KEY", os.Getenv("OPENAI_API_KEY"))
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as a float with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
