package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/playable-forge/internal/api"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/build"
	"github.com/p-blackswan/playable-forge/internal/config"
	"github.com/p-blackswan/playable-forge/internal/credits"
	"github.com/p-blackswan/playable-forge/internal/forge"
	"github.com/p-blackswan/playable-forge/internal/health"
	"github.com/p-blackswan/playable-forge/internal/imaging"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/metrics"
	"github.com/p-blackswan/playable-forge/internal/notify"
	"github.com/p-blackswan/playable-forge/internal/template"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Bool("layer_enabled", cfg.LayerEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting playable forge")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	checker := health.NewChecker(logger)

	// Template registry (with optional overlay)
	registry, err := template.NewRegistry(cfg.TemplateOverlayPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load template registry")
	}
	checker.Register("templates", func(ctx context.Context) health.Status {
		return health.StatusOK
	})

	optimizer := imaging.NewOptimizer(cfg.MaxImageDimension, cfg.JPEGQuality)
	assembler := assemble.NewAssembler(cfg.MaxPlayableBytes, logger)
	notifier := notify.New(cfg, logger)

	// Generation backend (optional, assemble-only mode without it)
	var (
		client  *layerapi.Client
		forger  *forge.Forger
		apiFrgr api.Forger
		backend api.Backend
		runner  build.Runner
	)
	if cfg.LayerEnabled() {
		client = layerapi.NewClient(cfg, logger)
		backend = client

		guard := credits.NewGuard(client, cfg.MinCreditsRequired, cfg.LowCreditThreshold, m, logger)
		if notifier.Enabled() {
			guard.OnLowBalance(notifier.LowCreditWarning)
		}

		forger = forge.New(client, guard, cfg, m, logger)
		apiFrgr = forger
		runner = build.NewPipeline(registry, forger, optimizer, assembler, m, logger)

		checker.Register("layer", func(ctx context.Context) health.Status {
			if _, err := client.WorkspaceBalance(ctx); err != nil {
				return health.StatusDown
			}
			return health.StatusOK
		})
		logger.Info().Str("workspace", client.WorkspaceID()).Msg("generation backend initialized")
	} else {
		logger.Info().Msg("generation backend not configured, assemble-only mode")
		runner = &unavailableRunner{}
	}

	// Build engine
	engine := build.NewEngine(cfg, runner, m, logger)
	if notifier.Enabled() {
		engine.SetNotifier(notifier)
	}
	engine.Start(ctx)

	// Retention sweep for finished builds
	sweeper := build.NewSweeper(cfg, engine, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// API server
	handlers := api.NewHandlers(engine, registry, assembler, apiFrgr, backend, checker, logger)
	server := api.NewServer(api.ServerConfig{
		ListenAddr: fmt.Sprintf(":%d", cfg.HTTPPort),
		AuthConfig: api.AuthConfig{
			Mode:   cfg.APIAuthMode,
			APIKey: cfg.APIKey,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins,
		TLSCert:     cfg.TLSCert,
		TLSKey:      cfg.TLSKey,
	}, handlers, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}

	engine.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("playable forge stopped")
}

// unavailableRunner rejects builds when no generation backend is configured.
type unavailableRunner struct{}

func (u *unavailableRunner) Run(context.Context, build.Request, func(build.Stage)) (*build.Result, error) {
	return nil, fmt.Errorf("generation backend is not configured")
}
