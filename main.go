package main

import (
	"context"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gostudio/adapters/llm"
	"gostudio/adapters/postgres"
	"gostudio/adapters/sqlite"
	"gostudio/adapters/tabular"
	"gostudio/app"
	"gostudio/internal"
	"gostudio/internal/api"
	"gostudio/internal/config"
	"gostudio/internal/errors"
	"gostudio/internal/events"
	"gostudio/internal/reasoning"
	"gostudio/internal/session"
	"gostudio/internal/stats"
	"gostudio/ports"
)

// sessionStore is a snapshot store that owns a database handle
type sessionStore interface {
	ports.SessionStore
	io.Closer
}

// openStore connects to postgres when DATABASE_URL is set and to the embedded
// sqlite file otherwise
func openStore(ctx context.Context, cfg config.StoreConfig) (sessionStore, error) {
	if cfg.UsePostgres() {
		internal.DefaultLogger.Info("[Main] Storing session snapshots in postgres")
		return postgres.Connect(ctx, cfg.DatabaseURL)
	}
	internal.DefaultLogger.Info("[Main] Storing session snapshots in sqlite at %s", cfg.SQLitePath)
	return sqlite.Open(ctx, cfg.SQLitePath)
}

func newReasoner(cfg config.AIConfig) (ports.Reasoner, error) {
	if !cfg.Enabled() {
		internal.DefaultLogger.Info("[Main] No OPENAI_API_KEY set, reasoning runs on templates")
		return nil, nil
	}
	reasoner, err := llm.NewOpenAIReasoner(llm.Config{
		Model:       cfg.OpenAIModel,
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, errors.ExternalServiceError("llm", err)
	}
	return reasoner, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	internal.DefaultLogger.SetLevel(appConfig.LogLevel)
	logger := internal.DefaultLogger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, appConfig.Store)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer store.Close()

	reasoner, err := newReasoner(appConfig.AI)
	if err != nil {
		log.Fatalf("Failed to configure reasoning: %v", err)
	}
	reasoningService := reasoning.NewService(reasoner, appConfig.AI.Timeout)

	hub := api.NewSSEHub()
	manager := session.NewManager(store, appConfig.Session.TTL)
	go manager.Run(ctx, appConfig.Session.SweepInterval)

	studioService, err := app.NewStudioService(app.Dependencies{
		Sessions:  manager,
		Loader:    tabular.NewLoader(),
		Reasoning: reasoningService,
		Sink:      events.NewFanOut(hub, events.NewLogSink(logger)),
	}, app.Settings{
		Stats: stats.Config{
			MinSamples:  appConfig.Analysis.MinSamples,
			Timeout:     appConfig.Analysis.TestTimeout,
			Parallelism: appConfig.Analysis.Parallelism,
		},
		Weights: appConfig.Analysis.Weights,
	})
	if err != nil {
		log.Fatalf("Failed to create studio service: %v", err)
	}

	server := api.NewServer(studioService, hub, appConfig.Server.GinMode)
	logger.Info("[Main] Starting gostudio on port %s", appConfig.Server.Port)
	if err := server.Run(ctx, ":"+appConfig.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
