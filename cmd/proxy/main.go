package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/tongxiaolong01/llama-factory-go/internal/application/services"
	domainServices "github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/config"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/engine"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/logging"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/metrics"
	"github.com/tongxiaolong01/llama-factory-go/internal/presentation/api"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	// A .env file, when present, feeds the environment overrides read by
	// config.Load.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.EnsureSafePath(); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Media.SafePath).Msg("failed to create safe media directory")
	}

	var eng domainServices.Engine
	if cfg.Engine.BackendURL != "" {
		logger.Info().Str("backend", cfg.Engine.BackendURL).Msg("using generation backend")
		eng = engine.NewClient(cfg.Engine.BackendURL, cfg.Engine.Timeout, logger)
	} else {
		logger.Warn().Msg("no generation backend configured, serving mock responses")
		eng = engine.NewMockEngine()
	}
	eng = services.NewThrottledEngine(eng, cfg.Engine.MaxConcurrent)

	collector := metrics.NewCollector()

	guard := services.NewMediaGuard(services.MediaPolicy{
		SafeRoot:           cfg.Media.SafePath,
		AllowLocalFiles:    cfg.Media.LocalFilesAllowed(),
		AllowedURLPrefixes: cfg.Media.AllowedURLPrefixes,
		FetchTimeout:       cfg.Media.FetchTimeout,
	}, nil, logger)
	resolver := services.NewMediaResolver(guard, logger, collector.RecordMedia)

	toolAdapter := services.NewToolAdapter()
	normalizer := services.NewRequestNormalizer(resolver, toolAdapter, logger, cfg.Logging.VerboseEnabled())
	chatOrchestrator := services.NewChatOrchestrator(eng, engine.NewJSONToolExtractor(), normalizer, toolAdapter, logger)
	scoreService := services.NewScoreService(eng, logger)

	handler := api.NewHandler(chatOrchestrator, scoreService, collector, cfg, logger)

	r := chi.NewRouter()
	r.Use(api.RequestID)
	r.Use(api.Recover(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(api.AccessLog(logger))
	r.Use(api.CORSMiddleware())

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.BearerAuth(cfg.Server.APIKey))
		r.Post("/chat/completions", handler.ChatCompletions)
		r.Post("/score/evaluation", handler.ScoreEvaluation)
		r.Get("/models", handler.Models)
	})
	r.Get("/health", handler.Health)
	r.Get("/metrics", handler.Metrics)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("model", cfg.Server.ModelName).Msg("starting server")
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal().Err(err).Msg("server error")

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			if err := server.Close(); err != nil {
				logger.Fatal().Err(err).Msg("failed to close server")
			}
		}

		logger.Info().Msg("server stopped")
	}
}
