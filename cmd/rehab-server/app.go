package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/domain/assignment"
	"github.com/rehab/rehab/internal/domain/stats"
	"github.com/rehab/rehab/internal/domain/store"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/auth"
	"github.com/rehab/rehab/internal/platform/db"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/events"
	"github.com/rehab/rehab/internal/platform/middleware"
	"github.com/rehab/rehab/internal/platform/retry"
	"github.com/rehab/rehab/internal/platform/sandbox"
)

const devSigningKey = "development-only-signing-key-change-me"

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// backends holds the storage selected by DOC_BACKEND.
type backends struct {
	docs     docstore.Gateway
	accounts accounts.Provider
	checks   []db.Check
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	switch cfg.DocBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to postgres")
		return &backends{
			docs:     docstore.NewPG(pool),
			accounts: accounts.NewPG(pool),
			checks:   []db.Check{db.PostgresCheck(pool)},
			closers:  []func(){pool.Close},
		}, nil

	case config.BackendMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		database := client.Database(cfg.MongoDatabase)
		return &backends{
			docs:     docstore.NewMongo(database),
			accounts: accounts.NewMongo(database),
			checks:   []db.Check{db.MongoCheck(client)},
			closers: []func(){func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				client.Disconnect(ctx)
			}},
		}, nil

	case config.BackendMemory:
		logger.Warn().Msg("using in-memory storage; data is lost on exit")
		return &backends{docs: docstore.NewMemory(), accounts: accounts.NewMemory()}, nil
	}
	return nil, fmt.Errorf("unknown document backend %q", cfg.DocBackend)
}

func newPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.EventsSQS:
		return events.NewSQSPublisher(ctx, cfg.SQSQueueURL)
	case config.EventsNone:
		return events.Nop{}, nil
	case config.EventsLog, "":
		return events.NewLogPublisher(logger), nil
	}
	return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
}

func loadPolicy(cfg *config.Config) retry.Policy {
	p := retry.Default()
	if cfg.LoadMaxAttempts > 0 {
		p.MaxAttempts = cfg.LoadMaxAttempts
	}
	if cfg.LoadRetryDelay > 0 {
		p.Delay = retry.Linear(cfg.LoadRetryDelay)
	}
	return p
}

func newStore(cfg *config.Config, b *backends, pub events.Publisher, logger zerolog.Logger) *store.Store {
	return store.New(b.docs, b.accounts,
		store.WithLogger(logger),
		store.WithPublisher(pub),
		store.WithLoadPolicy(loadPolicy(cfg)),
	)
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	key := cfg.AuthSigningKey
	if key == "" && cfg.IsDev() {
		key = devSigningKey
	}
	return auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(key)}
}

// newServer builds the echo instance with middleware and every route group.
func newServer(cfg *config.Config, logger zerolog.Logger, st *store.Store, accts accounts.Provider, checks ...db.Check) (*echo.Echo, error) {
	jwtCfg := jwtConfig(cfg)
	issuer, err := auth.NewIssuer(jwtCfg, cfg.AuthTokenTTL)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", db.HealthHandler(checks...))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Login sits outside the bearer-token check.
	public := apiV1.Group("")
	auth.NewLoginHandler(accts, issuer, logger).RegisterRoutes(public)

	protected := apiV1.Group("")
	if cfg.IsDev() {
		protected.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		protected.Use(auth.JWTMiddleware(jwtCfg))
	}
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	protected.Use(middleware.RateLimit(rl))

	store.NewHandler(st).RegisterRoutes(protected)
	stats.NewHandler(st).RegisterRoutes(protected)
	assignment.NewHandler(assignment.NewService(st, cfg.HighLoad, logger)).RegisterRoutes(protected)
	if cfg.IsDev() {
		sandbox.NewSeedHandler(st, logger).RegisterRoutes(protected)
	}

	return e, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app bundles what every data command needs.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	backends *backends
	pub      events.Publisher
	store    *store.Store
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr)
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pub, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		backends: b,
		pub:      pub,
		store:    newStore(cfg, b, pub, logger),
	}, nil
}

func (r *app) Close() {
	if err := r.pub.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("close event publisher")
	}
	r.backends.Close()
}
