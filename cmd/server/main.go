package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/api"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/config"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/headers"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/jobs"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/llm"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/metrics"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/report"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/rules"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/semcache"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting AI security suite service")

	cfg, err := config.Load(os.Getenv("AISUITE_CONFIG"))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"rules_dir", cfg.RulesDir,
		"cache_index", cfg.CacheIndexPath,
		"cache_threshold", cfg.CacheThreshold,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel)

	// Initialization failures do not kill the process: the service starts
	// in degraded mode and reports the error to every request instead.
	var startupErr string

	prometheusMetrics := metrics.NewMetrics()

	ruleLoader := rules.NewLoader(cfg.RulesDir, logger)
	snapshot, err := ruleLoader.Load()
	if err != nil {
		logger.Error("Failed to load detection rules", "error", err)
		startupErr = "detection rules could not be loaded: " + err.Error()
	} else {
		prometheusMetrics.RulesLoaded.Set(float64(snapshot.RuleCount()))
	}

	if cfg.LLMProvider == "openai" && cfg.LLMAPIKey == "" {
		logger.Error("LLM API key not configured")
		if startupErr == "" {
			startupErr = "CRITICAL: LLM API key environment variable not found"
		}
	}

	var llmClient llm.Client
	switch cfg.LLMProvider {
	case "local":
		llmClient = llm.NewLocalClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTemperature, cfg.LLMTimeout())
	default:
		llmClient = llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTemperature, cfg.LLMTimeout())
	}
	retryClient := llm.NewRetryClient(llmClient, cfg.RetryAttempts, cfg.RetryBaseDelay(), logger)

	embedder := llm.NewOpenAIEmbedder(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.EmbeddingModel, cfg.LLMTimeout())

	semanticCache := semcache.New(cfg.CacheIndexPath, cfg.CacheThreshold, embedder, logger)
	prometheusMetrics.CacheEntries.Set(float64(semanticCache.Len()))

	// Job lifecycle events are optional; run without them if NATS is
	// unreachable or unconfigured.
	var publisher jobs.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("Failed to connect to NATS, job events disabled", "error", err)
		} else {
			defer nc.Close()
			publisher = nc
			logger.Info("Connected to NATS", "url", cfg.NATSURL)
		}
	}

	jobStore := jobs.NewMemoryStore(logger, publisher)
	generator := report.NewGenerator(retryClient, logger)
	orchestrator := jobs.NewOrchestrator(jobStore, ruleLoader, semanticCache, generator,
		prometheusMetrics, cfg.DedupeCap, cfg.GenTimeout(), logger)
	headerScanner := headers.NewScanner(retryClient, cfg.HeaderScanTimeout(), logger)

	httpAPI := api.NewAPI(orchestrator, jobStore, headerScanner, prometheusMetrics, startupErr, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpAPI.Router(),
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if startupErr != "" {
		logger.Warn("Service started in degraded mode", "startup_error", startupErr)
	} else {
		logger.Info("Service started successfully")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Service stopped")
}
