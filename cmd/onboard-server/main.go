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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/onboard/onboard/internal/config"
	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/domain/onboarding"
	"github.com/onboard/onboard/internal/platform/auth"
	"github.com/onboard/onboard/internal/platform/db"
	"github.com/onboard/onboard/internal/platform/middleware"
	"github.com/onboard/onboard/internal/platform/results"
	"github.com/onboard/onboard/internal/platform/webhook"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "onboard-server",
		Short:         "Adaptive health-risk assessment and pathway routing service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// backends holds the connections opened for serve, closed in reverse.
type backends struct {
	pool    *pgxpool.Pool
	mongo   *mongo.Client
	sqlite  *results.SQLiteSink
	redis   *onboarding.RedisStore
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openSink(ctx context.Context, cfg *config.Config, b *backends) (results.Sink, error) {
	switch cfg.ResultsSink {
	case config.SinkPostgres:
		return results.NewPGSink(b.pool), nil
	case config.SinkSQLite:
		s, err := results.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.sqlite = s
		b.closers = append(b.closers, func() { s.Close() })
		return s, nil
	case config.SinkMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		b.mongo = client
		b.closers = append(b.closers, func() { client.Disconnect(context.Background()) })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("ping mongodb: %w", err)
		}
		s := results.NewMongoSink(client, cfg.MongoDatabase)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return results.NewMemorySink(), nil
	}
}

func openStore(ctx context.Context, cfg *config.Config, b *backends) (onboarding.SessionStore, error) {
	if cfg.SessionStore != config.StoreRedis {
		return onboarding.NewMemoryStore(cfg.SessionTTL), nil
	}
	client, err := onboarding.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() { client.Close() })
	store := onboarding.NewRedisStore(client, cfg.SessionTTL)
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	b.redis = store
	return store, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	b := &backends{}
	defer b.close()

	// Catalogs
	catalogs := catalog.NewFSProvider(cfg.CatalogDir, cfg.CatalogVersion)
	cat, err := catalogs.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	logger.Info().Str("version", cat.Version).Msg("catalog loaded")

	// Database
	var profiles onboarding.ProfileProvider = &onboarding.StaticProfiles{}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
		profiles = onboarding.NewPGProfiles(pool)
		logger.Info().Msg("connected to database")
	}

	sink, err := openSink(ctx, cfg, b)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg, b)
	if err != nil {
		return err
	}

	persister := results.NewPersister(sink, logger)
	persister.MaxAttempts = cfg.SinkMaxAttempts
	persister.RetryInterval = cfg.SinkRetryInterval

	idle := 30 * time.Minute
	if cfg.SessionTTL < idle {
		idle = cfg.SessionTTL
	}
	opts := onboarding.Options{
		PreRouting: cfg.PreRouting,
		IdleTTL:    idle,
	}

	var alerts *webhook.Dispatcher
	if cfg.AlertWebhookURL != "" {
		alerts, err = webhook.NewDispatcher(cfg.AlertWebhookURL, cfg.AlertWebhookKey, logger)
		if err != nil {
			return fmt.Errorf("alert webhook: %w", err)
		}
		wireAlerts(alerts, persister, &opts)
	}

	svc := onboarding.NewService(catalogs, profiles, store, persister, sink, logger, opts)

	e := newEcho(cfg, logger, svc, healthChecks(catalogs, persister, b))

	var watcher *catalog.Watcher
	if cfg.CatalogWatch {
		if watcher, err = catalog.NewWatcher(cfg.CatalogDir, catalogs, logger); err != nil {
			return fmt.Errorf("watch catalogs: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("sink", cfg.ResultsSink).Str("store", cfg.SessionStore).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		persister.Start(gctx)
		return nil
	})
	g.Go(func() error {
		svc.Run(gctx)
		return nil
	})
	if alerts != nil {
		g.Go(func() error { return alerts.Run(gctx) })
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
		if left := persister.Flush(sctx); left > 0 {
			logger.Error().Bool("alert", true).Int("pending", left).Msg("results not persisted at shutdown")
		}
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("server stopped")
	return err
}

// escalationAlert is the payload of an escalation.raised webhook.
type escalationAlert struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	assessment.EscalationEvent
}

// wireAlerts forwards abandoned results and raised escalations to the
// operator webhook.
func wireAlerts(d *webhook.Dispatcher, p *results.Persister, opts *onboarding.Options) {
	p.Alert = func(sessionID string, err error) {
		d.Publish(webhook.EventResultAbandoned, map[string]string{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	opts.OnEscalation = func(sessionID, userID string, ev assessment.EscalationEvent) {
		d.Publish(webhook.EventEscalationRaised, escalationAlert{SessionID: sessionID, UserID: userID, EscalationEvent: ev})
	}
}

func newEcho(cfg *config.Config, logger zerolog.Logger, svc *onboarding.Service, checks map[string]db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.NoStore())
	e.Use(middleware.BodyLimit("64K"))

	e.GET("/health", db.HealthHandler(checks))

	apiV1 := e.Group("/api/v1")
	if cfg.ResolvedAuthMode() == config.AuthDevelopment {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}
	onboarding.NewHandler(svc).RegisterRoutes(apiV1)
	return e
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

// maxPendingResults marks the service unhealthy when the sink falls this far
// behind.
const maxPendingResults = 1000

func healthChecks(catalogs catalog.Provider, persister *results.Persister, b *backends) map[string]db.Check {
	checks := map[string]db.Check{
		"catalog": func(ctx context.Context) error {
			_, err := catalogs.Latest(ctx)
			return err
		},
		"results_queue": func(context.Context) error {
			if n := persister.Pending(); n > maxPendingResults {
				return fmt.Errorf("%d results waiting for the sink", n)
			}
			return nil
		},
	}
	if b.pool != nil {
		checks["database"] = b.pool.Ping
	}
	if b.redis != nil {
		checks["redis"] = b.redis.Ping
	}
	if b.mongo != nil {
		client := b.mongo
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}
	if b.sqlite != nil {
		checks["sqlite"] = b.sqlite.Ping
	}
	return checks
}
