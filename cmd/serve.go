package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/crowsnest-systems/crowsnest/internal/config"
	"github.com/crowsnest-systems/crowsnest/internal/detector"
	"github.com/crowsnest-systems/crowsnest/internal/enforcement"
	"github.com/crowsnest-systems/crowsnest/internal/engine"
	"github.com/crowsnest-systems/crowsnest/internal/eventlog"
	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/notification"
	"github.com/crowsnest-systems/crowsnest/internal/ratelimit"
	"github.com/crowsnest-systems/crowsnest/internal/repository"
	"github.com/crowsnest-systems/crowsnest/internal/responder"
	"github.com/crowsnest-systems/crowsnest/internal/retention"
	"github.com/crowsnest-systems/crowsnest/internal/scorer"
	"github.com/crowsnest-systems/crowsnest/internal/server"
	"github.com/crowsnest-systems/crowsnest/internal/signature"
)

var migrationsPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsPath, "migrations", "migrations", "path to database migration files")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	// Repository
	var repo repository.Repository
	if cfg.Database.Enabled {
		dsn := cfg.Database.DSN()

		logger.Info("running database migrations")
		m, err := migrate.New("file://"+migrationsPath, dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		pg, err := repository.NewPostgresRepository(cmd.Context(), dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		repo = pg
	} else {
		logger.Warn("running without a database, state will not survive restarts")
		repo = repository.NewMemoryRepository()
	}
	defer repo.Close()

	// Enforcement backends
	var enforcers enforcement.Multi
	if cfg.Redis.Enabled {
		re, err := enforcement.NewRedisEnforcer(cfg.Redis.URL, cfg.Redis.RateLimitTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer re.Close()
		enforcers = append(enforcers, re)
	}
	if cfg.NATS.Enabled {
		natsCfg := enforcement.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		ne, err := enforcement.NewNATSEnforcer(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer ne.Close()
		enforcers = append(enforcers, ne)
	}
	var enforcer enforcement.Enforcer = enforcers
	if len(enforcers) == 0 {
		enforcer = enforcement.NoOp{}
	}

	// Event log
	var auditLog eventlog.Logger = eventlog.Nop{}
	if cfg.EventLog.Enabled {
		auditLog, err = eventlog.NewOpenSearchLogger(eventlog.Config{
			URL:           cfg.EventLog.URL,
			Username:      cfg.EventLog.Username,
			Password:      cfg.EventLog.Password,
			TLSSkipVerify: cfg.EventLog.Insecure,
			IndexPrefix:   cfg.EventLog.IndexPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to OpenSearch: %w", err)
		}
	}

	// Escalation channels
	channels := make([]notification.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		switch ch.Type {
		case "webhook":
			channels = append(channels, notification.NewWebhookChannel(ch.URL, cfg.Response.ActionTimeout))
		case "slack":
			channels = append(channels, notification.NewSlackChannel(ch.URL, cfg.Response.ActionTimeout))
		}
	}

	// Signature library
	sigs := signature.NewDefaultLibrary()
	if cfg.Signatures.File != "" {
		if err := sigs.LoadFile(cfg.Signatures.File); err != nil {
			return fmt.Errorf("failed to load signatures: %w", err)
		}
		logger.Info("loaded signature file", "path", cfg.Signatures.File, "signatures", len(sigs.Names()))
	}

	source := engine.NewChannelSource(cfg.Engine.SourceBuffer)
	svc := engine.New(engineOptions(cfg), engine.Deps{
		Source:     source,
		Repository: repo,
		Enforcer:   enforcer,
		Channels:   channels,
		EventLog:   auditLog,
		Signatures: sigs,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled && cfg.Redis.IngestLimit > 0 {
		limiter, err = ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.Redis.IngestLimit, cfg.Redis.IngestWindow)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	handler := server.NewHandler(svc, limiter, logger)
	auth := server.NewAuthMiddleware(cfg.Server.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("no JWT secret configured, API authentication disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, auth),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := svc.Stop(); err != nil {
		logger.Error("engine stop failed", "error", err)
	}

	logger.Info("stopped")
	return nil
}

func engineOptions(cfg *config.Config) engine.Options {
	opts := engine.DefaultOptions()
	opts.ScanInterval = cfg.Engine.ScanInterval
	opts.DetectionInterval = cfg.Engine.DetectionInterval
	opts.BaselineInterval = cfg.Engine.BaselineInterval
	opts.IntelRefreshInterval = cfg.Engine.IntelRefreshInterval
	opts.CleanupInterval = cfg.Engine.CleanupInterval

	countries := make(map[string]bool, len(cfg.Scoring.HighRiskCountries))
	for _, c := range cfg.Scoring.HighRiskCountries {
		countries[c] = true
	}
	opts.Scoring = scorer.Config{
		DetectionThreshold: cfg.Scoring.DetectionThreshold,
		AnomalyThreshold:   cfg.Scoring.AnomalyThreshold,
		HighRiskCountries:  countries,
		ResponseTimeWarnMs: cfg.Scoring.ResponseTimeWarnMs,
		PayloadWarnBytes:   cfg.Scoring.PayloadWarnBytes,
		BusinessHourStart:  cfg.Scoring.BusinessHourStart,
		BusinessHourEnd:    cfg.Scoring.BusinessHourEnd,
	}
	opts.Detection = detector.Config{
		BruteForceWindow:   cfg.Detection.BruteForceWindow,
		BruteForceCount:    cfg.Detection.BruteForceCount,
		VolumetricWindow:   cfg.Detection.VolumetricWindow,
		VolumetricRate:     cfg.Detection.VolumetricRate,
		ExfiltrationWindow: cfg.Detection.ExfiltrationWindow,
		ExfiltrationBytes:  cfg.Detection.ExfiltrationBytes,
		PrivEscWindow:      cfg.Detection.PrivEscWindow,
		PrivEscCount:       cfg.Detection.PrivEscCount,
	}
	opts.Response = responder.Config{
		EnableAutoResponse:  cfg.Response.EnableAutoResponse,
		AutoBlockThreshold:  cfg.Response.AutoBlockThreshold,
		QuarantineThreshold: cfg.Response.QuarantineThreshold,
		EscalationThreshold: cfg.Response.EscalationThreshold,
		QuarantineTTL:       cfg.Response.QuarantineTTL,
		ActionTimeout:       cfg.Response.ActionTimeout,
	}
	opts.Retention = retention.Config{
		DataRetentionDays:    cfg.Retention.DataRetentionDays,
		ResolvedFindingAge:   cfg.Retention.ResolvedFindingAge,
		BaselineIdleAge:      cfg.Retention.BaselineIdleAge,
		ExpiredQuarantineAge: cfg.Retention.ExpiredQuarantineAge,
	}
	return opts
}
