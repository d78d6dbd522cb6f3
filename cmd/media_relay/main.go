package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/italolelis/media_relay/internal/candidate"
	"github.com/italolelis/media_relay/internal/cleanup"
	"github.com/italolelis/media_relay/internal/config"
	"github.com/italolelis/media_relay/internal/coordinator"
	"github.com/italolelis/media_relay/internal/discovery"
	"github.com/italolelis/media_relay/internal/http/rest"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/notifier"
	"github.com/italolelis/media_relay/internal/progress"
	"github.com/italolelis/media_relay/internal/relay"
	"github.com/italolelis/media_relay/internal/relay/putio"
	"github.com/italolelis/media_relay/internal/storage"
	"github.com/italolelis/media_relay/internal/storage/sqlite"
	"github.com/italolelis/media_relay/internal/telegram"
	"github.com/italolelis/media_relay/internal/telemetry"
	"github.com/italolelis/media_relay/internal/transfer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("media relay starting...", "log_level", cfg.LogLevel, "relay_backend", cfg.RelayBackend, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	instanceID := storage.GenerateInstanceID()
	ledger := sqlite.NewInstrumentedWorkingFileRepository(database, instanceID, tel)

	// =========================================================================
	// Start Discovery
	site, err := discovery.NewClient(discovery.Config{
		UserAgent:   cfg.UserAgent,
		PageTimeout: cfg.PageTimeout,
		LoginURL:    loginURL(cfg),
		Username:    cfg.SiteUsername,
		Password:    cfg.SitePassword,
	})
	if err != nil {
		return fmt.Errorf("failed to build discovery client: %w", err)
	}

	prober := &candidate.HTTPProber{
		Public:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Session:   site.Session(),
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.ProbeTimeout,
	}

	// =========================================================================
	// Start Relay
	var bot *telegram.Bot

	var botAPI *tgbotapi.BotAPI

	if cfg.TelegramToken != "" {
		botAPI, err = telegram.NewBotAPI(cfg.TelegramToken, cfg.TelegramAPIEndpoint)
		if err != nil {
			return err
		}

		bot = telegram.NewBot(botAPI)
		logger.Info("telegram bot connected", "username", botAPI.Self.UserName)
	}

	rl, err := buildRelay(ctx, cfg, botAPI)
	if err != nil {
		return fmt.Errorf("failed to build relay: %w", err)
	}

	hub := rest.NewHub()

	presenters := coordinator.Presenters{rest.Origin: hub}
	if bot != nil {
		presenters[telegram.Origin] = bot
	}

	bridge := progress.NewBridge(cfg.ProgressInterval)

	coord := coordinator.New(coordinator.Config{
		WorkDir:        cfg.WorkDir,
		WorkFilePrefix: cfg.WorkFilePrefix,
		PhaseTimeout:   cfg.PhaseTimeout,
	}, coordinator.Dependencies{
		Bridge:     bridge,
		Engine:     transfer.NewEngine(cfg.ChunkSize),
		Discoverer: site,
		Prober:     prober,
		Fetcher:    site,
		Relay:      relay.NewInstrumentedRelay(rl, tel, cfg.RelayBackend),
		Presenter:  presenters,
		Ledger:     ledger,
		Telemetry:  tel,
	})

	g, gctx := errgroup.WithContext(ctx)

	// =========================================================================
	// Start Coordinator
	g.Go(func() error {
		return coord.Run(gctx)
	})

	// =========================================================================
	// Start Telegram Bot
	if bot != nil {
		g.Go(func() error {
			return bot.Run(gctx, coord)
		})
	}

	// =========================================================================
	// Start Notification
	if cfg.DiscordWebhookURL != "" {
		notif := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)

		g.Go(func() error {
			notifier.Watch(gctx, notif, coord.OnJobFinished)
			return nil
		})
	}

	// =========================================================================
	// Start Cleanup
	sweeper := &cleanup.Sweeper{
		Repo:       ledger,
		WorkDir:    cfg.WorkDir,
		Prefix:     cfg.WorkFilePrefix,
		Keep:       cfg.KeepWorkingFilesFor,
		InstanceID: instanceID,
	}

	g.Go(func() error {
		return sweeper.Run(gctx, cfg.CleanupInterval)
	})

	// =========================================================================
	// Start API Service
	server := setupServer(gctx, cfg, tel, coord, hub)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	logger.Info("waiting for jobs...",
		"work_dir", cfg.WorkDir,
		"instance_id", instanceID,
		"phase_timeout", cfg.PhaseTimeout.String(),
		"retention", cfg.KeepWorkingFilesFor.String(),
	)

	err = g.Wait()

	// let the last results reach the requesters
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
	defer cancel()

	if flushErr := bridge.Wait(flushCtx); flushErr != nil {
		logger.Warn("pending renders dropped on shutdown", "err", flushErr)
	}

	return err
}

// This is an abstract factory for the relay backend.
func buildRelay(ctx context.Context, cfg *config.Config, botAPI *tgbotapi.BotAPI) (relay.Relay, error) {
	switch cfg.RelayBackend {
	case config.RelayTelegram:
		if botAPI == nil {
			return nil, fmt.Errorf("telegram relay requires a bot")
		}

		return telegram.NewRelay(botAPI), nil
	case config.RelayPutio:
		c := putio.NewClient(cfg.PutioToken, cfg.PutioFolder)
		if err := c.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authentication error: %w", err)
		}

		return c, nil
	}

	return nil, fmt.Errorf("invalid relay backend: %s", cfg.RelayBackend)
}

func loginURL(cfg *config.Config) string {
	if !cfg.LoginEnabled() {
		return ""
	}

	return cfg.SiteLoginURL
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, jobs rest.Jobs, hub *rest.Hub) *http.Server {
	jobsHandler := rest.NewJobsHandler(cfg.API.Username, cfg.API.Password, jobs, hub)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", jobsHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
