// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("station_id", id).Infof("station %s created", name)
//
// WithContext attaches the request id, the caller id and the active trace
// and span ids:
//
//	observability.FromContext(ctx).WithError(err).Error("delete failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	engine := rbac.NewEngine(rbac.DefaultRules(), rbac.WithRecorder(metrics))
//	gotrue.SetObserver(metrics)
//
// Metrics satisfies rbac.Recorder and identity.Observer, so authorization
// decisions and identity provider latency are counted without either package
// knowing about Prometheus.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, gotrue)
//	router.HandleFunc("/health/ready", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
