package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/audit"
	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/config"
	"github.com/Shivanand-hulikatti/eventreg/internal/database"
	"github.com/Shivanand-hulikatti/eventreg/internal/directory"
	"github.com/Shivanand-hulikatti/eventreg/internal/handler"
	"github.com/Shivanand-hulikatti/eventreg/internal/metrics"
	"github.com/Shivanand-hulikatti/eventreg/internal/notify"
	"github.com/Shivanand-hulikatti/eventreg/internal/repository"
	"github.com/Shivanand-hulikatti/eventreg/internal/service"
	"github.com/Shivanand-hulikatti/eventreg/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API and handle graceful shutdown on SIGINT/SIGTERM.

With LEDGER_BACKEND=memory no database is needed; state is lost on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides PORT)")
}

// stores groups the storage-facing components chosen by LEDGER_BACKEND.
type stores struct {
	events repository.EventStore
	ledger repository.Ledger
	close  func()
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	metrics.Init(version, cfg.Ledger.Backend)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	publisher, err := openPublisher(cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	auditLog := audit.NewLogger(logger)
	registrations := service.NewRegistrationService(st.ledger,
		service.WithPublisher(publisher),
		service.WithAudit(auditLog),
		service.WithRetry(service.RetryPolicy{
			MaxAttempts:     cfg.Ledger.RetryMaxAttempts,
			InitialInterval: cfg.Ledger.RetryInitialInterval,
			MaxInterval:     cfg.Ledger.RetryMaxInterval,
		}),
	)
	events := service.NewEventService(st.events, st.ledger, auditLog)

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	router := handler.NewRouter(handler.RouterConfig{
		Logger:             logger,
		Authenticator:      auth.NewBearerAuthenticator(jwt),
		Events:             events,
		Registrations:      registrations,
		RateLimitPerMinute: cfg.RateLimit.PerMinute,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("ledger_backend", cfg.Ledger.Backend).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	opts := repository.LedgerOptions{
		LookupTimeout: cfg.Ledger.LookupTimeout,
		StoreTimeout:  cfg.Ledger.StoreTimeout,
	}

	if cfg.Ledger.Backend == config.BackendMemory {
		logger.Warn().Msg("using in-memory ledger; registrations are lost on exit")
		dir := repository.NewMemoryDirectory()
		return &stores{
			events: dir,
			ledger: repository.NewMemoryLedger(dir, opts),
			close:  func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.ConnString()); err != nil {
			return nil, err
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	events := repository.NewEventRepository(pool)
	dir := directory.NewCached(events, cfg.Directory.CacheTTL, logger)
	return &stores{
		events: events,
		ledger: repository.NewPostgresLedger(pool, dir, opts),
		close:  pool.Close,
	}, nil
}

func openPublisher(cfg config.NotifyConfig, logger zerolog.Logger) (notify.Publisher, error) {
	if cfg.NATSURL == "" {
		return notify.NoopPublisher{}, nil
	}
	pub, err := notify.NewNATSPublisher(cfg.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", cfg.NATSURL).Msg("publishing lifecycle events to NATS")
	return pub, nil
}
