// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("organization_id", orgID).Info("Member banned")
//
// Request-scoped logging picks up request id, user id and trace ids:
//
//	observability.FromContext(ctx).WithError(err).Error("Mutation failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordMutation("organization", "BAN", "success", time.Since(start))
//	metrics.RecordDenial("board", "CHANGE_ROLE", "LAST_ADMIN")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.AddProbe("audit-dir", false, probeAuditDir)
//	checker.RegisterRoutes(router) // GET /healthz, GET /readyz
//
// # Shutdown
//
// Steps in PhaseDrain finish before any PhaseRelease step starts:
//
//	shutdown := observability.NewShutdownManager(logger, httpServer, 30*time.Second)
//	shutdown.Register(observability.PhaseDrain, "audit", recorderClose)
//	shutdown.Register(observability.PhaseRelease, "database", dbClose)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "vision",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Membership operations open spans on observability.Tracer().
package observability
