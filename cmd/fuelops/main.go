package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/fuelops/pkg/api"
	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/config"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
	"github.com/platinummonkey/fuelops/pkg/middleware"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	migrate := flag.Bool("migrate", true, "Apply database migrations before serving")
	flag.Parse()

	if err := run(*migrate); err != nil {
		fmt.Fprintf(os.Stderr, "fuelops: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "fuelops").
		WithField("environment", cfg.Environment)

	// The identity client logs its upstream calls through logrus
	identityLog := logrus.New()
	identityLog.SetFormatter(&logrus.JSONFormatter{})
	identityLog.SetOutput(os.Stdout)
	if cfg.Observability.LogLevel == observability.DebugLevel {
		identityLog.SetLevel(logrus.DebugLevel)
	}

	if cfg.Observability.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Observability.SentryDSN,
			Environment: cfg.Environment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Environment:    cfg.Environment,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	connCfg := directory.DefaultConnectionConfig(cfg.Database.URL)
	connCfg.MaxConns = cfg.Database.MaxConns
	connCfg.MinConns = cfg.Database.MinConns
	connCfg.Timeout = cfg.Database.Timeout
	db, err := directory.Open(ctx, connCfg)
	if err != nil {
		return err
	}
	if migrate {
		if err := directory.Migrate(ctx, db); err != nil {
			db.Close()
			return err
		}
		logger.Info("Database migrations applied")
	}
	store := directory.NewPostgresStore(db)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, rate limits fall back to memory")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var (
		provider   identity.Provider
		verifier   identity.SessionVerifier
		identityUp observability.Pinger
	)
	switch cfg.Identity.Driver {
	case config.IdentityDriverMemory:
		logger.Warn("Using the in-memory identity provider, accounts are lost on restart")
		memory := identity.NewMemoryProvider(true)
		provider, verifier = memory, memory
	default:
		client, err := identity.NewGoTrueClient(identity.GoTrueConfig{
			URL:            cfg.Identity.URL,
			AnonKey:        cfg.Identity.AnonKey,
			ServiceRoleKey: cfg.Identity.ServiceRoleKey,
			Timeout:        cfg.Identity.Timeout,
		}, identityLog)
		if err != nil {
			db.Close()
			return err
		}
		client.SetObserver(metrics)
		provider, identityUp = client, client

		if cfg.Identity.JWTSecret != "" {
			hmac, err := identity.NewHMACVerifier(cfg.Identity.JWTSecret)
			if err != nil {
				db.Close()
				return err
			}
			verifier = hmac
		} else {
			verifier = identity.NewJWKSVerifier(ctx, cfg.Identity.URL)
		}
	}

	var auditLogger audit.Logger
	if cfg.Audit.Path != "" {
		fileCfg := audit.DefaultFileLoggerConfig()
		fileCfg.BasePath = cfg.Audit.Path
		fileLogger, err := audit.NewFileLogger(fileCfg)
		if err != nil {
			db.Close()
			return err
		}
		auditLogger = fileLogger
	} else {
		auditLogger = audit.NewWriterLogger(os.Stdout)
	}

	engine := rbac.NewEngine(rbac.DefaultRules(), rbac.WithRecorder(metrics))
	service := lifecycle.NewService(store, provider, engine, lifecycle.Config{
		DefaultPassword: cfg.Identity.DefaultPassword,
		SiteURL:         cfg.Server.SiteURL,
	},
		lifecycle.WithAudit(auditLogger),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithLogger(logger),
	)
	if cfg.Identity.UsingDefaultPassword() {
		logger.Warn("DEFAULT_PASSWORD is not set, new accounts get the built-in default password")
	}

	loginCfg := middleware.LoginRateLimitConfig()
	loginCfg.RequestsPerWindow = cfg.RateLimit.LoginLimit
	loginCfg.WindowDuration = cfg.RateLimit.LoginWindow
	var loginLimiter middleware.Limiter = middleware.NewRateLimiter(loginCfg)
	if rdb != nil {
		loginLimiter = middleware.NewDistributedRateLimiter(rdb, loginCfg, "ratelimit:login", logger)
	}
	apiLimiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: int(cfg.RateLimit.APIRate),
		WindowDuration:    time.Second,
		BurstSize:         cfg.RateLimit.APIBurst,
	})

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		db.Close()
		return err
	}

	health := observability.NewHealthChecker(db, rdb, identityUp)
	health.SetVersion(version)

	opts := api.Options{
		Service:      service,
		Login:        auth.NewLoginService(provider, store, metrics),
		Verifier:     verifier,
		Logger:       logger,
		Metrics:      metrics,
		Health:       health,
		Audit:        auditLogger,
		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,
		CORSOrigins:  cfg.Server.CORSOrigins,

		TrustedProxies: proxies,
	}
	if cfg.Observability.MetricsEnabled {
		opts.Gatherer = registry
	}
	server := api.NewServer(opts)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server, "fuelops"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	go reportDBStats(statsCtx, db, metrics)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("db-stats", func(context.Context) error {
		stopStats()
		return nil
	})
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if rdb != nil {
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting FuelOps API on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			serveErr <- err
			cancel()
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// reportDBStats publishes connection pool statistics until ctx is done
func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(db.Stats())
		}
	}
}
