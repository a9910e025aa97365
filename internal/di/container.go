package di

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"

	"bpm-agent/internal/application/port/input"
	"bpm-agent/internal/application/port/output"
	"bpm-agent/internal/domain/entity"
	"bpm-agent/internal/infrastructure/browser/rod"
	"bpm-agent/internal/infrastructure/env"
	"bpm-agent/internal/infrastructure/httpapi"
	"bpm-agent/internal/infrastructure/llm/qwen"
	"bpm-agent/internal/infrastructure/logger"
	"bpm-agent/internal/infrastructure/ocr"
	"bpm-agent/internal/infrastructure/store/postgres"
	"bpm-agent/internal/infrastructure/ws"
	"bpm-agent/internal/usecase/orchestrator"
	"bpm-agent/internal/usecase/validation"
)

type Container struct {
	Logger   output.LoggerPort
	Store    *postgres.Store
	LLM      output.LLMPort
	OCR      output.OCRPort
	Registry *ws.Registry
	Router   chi.Router

	Addr string
}

type Config struct {
	Addr            string
	DatabaseDSN     string
	LLMAPIKey       string
	LLMModel        string
	LLMBaseURL      string
	OCRBaseURL      string
	OCRAPIKey       string
	BrowserHeadless bool
	Development     bool
	FallbackConf    float64
}

// ConfigFromEnv builds the runtime config through the env service's
// layered .env files.
func ConfigFromEnv() Config {
	e := env.NewEnvService()
	llmCfg := qwen.DefaultConfig("")
	return Config{
		Addr:            e.GetDefault("LISTEN_ADDR", ":8080"),
		DatabaseDSN:     e.MustGet("DATABASE_URL"),
		LLMAPIKey:       e.MustGet("LLM_API_KEY"),
		LLMModel:        e.GetDefault("LLM_MODEL", llmCfg.Model),
		LLMBaseURL:      e.GetDefault("LLM_BASE_URL", llmCfg.BaseURL),
		OCRBaseURL:      e.MustGet("OCR_BASE_URL"),
		OCRAPIKey:       e.Get("OCR_API_KEY"),
		BrowserHeadless: e.GetBool("BROWSER_HEADLESS", true),
		Development:     e.GetBool("DEV_MODE", false),
		FallbackConf:    e.GetFloat("INTENT_FALLBACK_CONFIDENCE", orchestrator.DefaultConfig().FallbackConfidence),
	}
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	log, err := logger.New(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	llm := qwen.New(qwen.Config{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
	}, log)

	ocrClient := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCRBaseURL,
		APIKey:  cfg.OCRAPIKey,
		Timeout: 30 * time.Second,
	})

	// Browsers launch lazily, once per session, on the first turn that
	// needs a page.
	browserFactory := func(ctx context.Context) (output.BrowserPort, error) {
		browserCfg := rod.DefaultConfig()
		browserCfg.Headless = cfg.BrowserHeadless
		return rod.New(ctx, browserCfg, log)
	}

	orchCfg := orchestrator.DefaultConfig()
	if cfg.FallbackConf > 0 {
		orchCfg.FallbackConfidence = cfg.FallbackConf
	}
	orchFactory := func(sess *entity.Session) input.Orchestrator {
		return orchestrator.New(sess, store, llm, browserFactory, log, orchCfg)
	}

	registry := ws.NewRegistry()
	validator := validation.NewEngine()
	wsHandler := ws.NewHandler(registry, store, orchFactory, validator, log)
	router := httpapi.NewRouter(httpapi.Config{
		ServiceName: "bpm-agent",
		JSONLogs:    !cfg.Development,
	}, store, registry, ocrClient, wsHandler, log)

	return &Container{
		Logger:   log,
		Store:    store,
		LLM:      llm,
		OCR:      ocrClient,
		Registry: registry,
		Router:   router,
		Addr:     cfg.Addr,
	}, nil
}

func (c *Container) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Close()
	}
}
