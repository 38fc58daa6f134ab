package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/projectvision/vision/pkg/api"
	"github.com/projectvision/vision/pkg/audit"
	"github.com/projectvision/vision/pkg/config"
	"github.com/projectvision/vision/pkg/membership"
	"github.com/projectvision/vision/pkg/middleware"
	"github.com/projectvision/vision/pkg/observability"
)

var version = "dev"

const auditWorkers = 4

func main() {
	seedUsers := flag.String("seed-users", "", "Comma separated usernames to create in the memory store (development only)")
	flag.Parse()

	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		boot.SetLevel(level)
	}

	if err := run(cfg, boot, *seedUsers); err != nil {
		boot.Fatalf("Server exited: %v", err)
	}
}

func run(cfg *config.Config, boot *logrus.Logger, seedUsers string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLoggerWithFormat(cfg.Observability.Level(), cfg.Observability.LogFormat, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName).
		WithField("version", version)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var (
		db    *sql.DB
		store membership.Store
	)
	switch cfg.Database.Store {
	case config.StorePostgres:
		db, err = connectDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		pg := membership.NewPostgresStore(db)
		if cfg.Database.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			boot.Info("Database schema is up to date")
		}
		store = pg
	default:
		mem := membership.NewMemoryStore()
		for _, name := range strings.Split(seedUsers, ",") {
			if name = strings.TrimSpace(name); name != "" {
				mem.PutUser(&membership.User{ID: name, Username: name, Name: name})
			}
		}
		boot.Warn("Using the in-memory store; state is lost on restart")
		store = mem
	}

	redisClient := connectRedis(ctx, cfg.Redis, boot)

	recorders, err := buildAuditRecorders(cfg, db)
	if err != nil {
		return err
	}
	recorder, searcher := combineRecorders(recorders, func(r audit.Recorder) audit.Recorder {
		switch r.(type) {
		case *audit.DBRecorder, *audit.FileRecorder:
			return audit.NewAsyncRecorder(ctx, r, auditWorkers, logger, func(error) { metrics.RecordAuditFailure() })
		}
		return r
	})

	service := membership.NewService(store, membership.Options{
		Recorder: recorder,
		Searcher: searcher,
		Metrics:  metrics,
	})

	inviteQuota := middleware.Quota{Limit: cfg.RateLimit.InviteRequests, Window: cfg.RateLimit.InviteWindow}
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, inviteQuota, "vision")
	} else {
		local := middleware.NewLocalLimiter(inviteQuota)
		local.StartPruning(observability.WithLogger(ctx, logger))
		limiter = local
	}

	scheduler := cron.New()
	for _, r := range recorders {
		cleaner, ok := r.(audit.Cleaner)
		if !ok {
			continue
		}
		policy := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}
		if _, err := audit.ScheduleRetention(scheduler, cfg.Audit.CleanupSchedule, cleaner, policy, logger); err != nil {
			return err
		}
	}
	if db != nil && metrics != nil {
		if _, err := scheduler.AddFunc("@every 15s", func() { metrics.ObserveDBStats(db.Stats()) }); err != nil {
			return fmt.Errorf("failed to schedule database stats: %w", err)
		}
	}
	scheduler.Start()

	health := observability.NewHealthChecker(db, redisClient, version)
	if cfg.Audit.HasAuditSink(config.AuditSinkFile) {
		health.AddProbe("audit-dir", false, auditDirProbe(cfg.Audit.FileDir))
	}

	server := api.NewServer(api.Dependencies{
		Service:       service,
		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		InviteLimiter: limiter,
		Health:        health,
		Metrics:       metrics,
		Registry:      registry,
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(observability.PhaseDrain, "scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register(observability.PhaseDrain, "audit", func(context.Context) error {
		return recorder.Close()
	})
	if db != nil {
		shutdown.Register(observability.PhaseRelease, "database", func(context.Context) error { return db.Close() })
	}
	if redisClient != nil {
		shutdown.Register(observability.PhaseRelease, "redis", func(context.Context) error { return redisClient.Close() })
	}
	if otelProviders != nil {
		shutdown.Register(observability.PhaseRelease, "otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		boot.Infof("Vision membership API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			_ = shutdown.Shutdown()
			return fmt.Errorf("failed to serve: %w", err)
		}
	case <-ctx.Done():
	}

	if err := shutdown.WaitAndShutdown(ctx); err != nil {
		return err
	}
	boot.Info("Server stopped")
	return nil
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// connectRedis returns nil when Redis is not configured or unreachable, in
// which case invite limits are enforced per instance
func connectRedis(ctx context.Context, cfg config.RedisConfig, boot *logrus.Logger) *redis.Client {
	if cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		boot.Warnf("Invalid Redis URL, falling back to local rate limiting: %v", err)
		return nil
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		boot.Warnf("Redis unreachable, falling back to local rate limiting: %v", err)
		client.Close()
		return nil
	}
	return client
}

func buildAuditRecorders(cfg *config.Config, db *sql.DB) ([]audit.Recorder, error) {
	var recorders []audit.Recorder
	for _, sink := range cfg.Audit.Sinks {
		switch sink {
		case config.AuditSinkDatabase:
			r, err := audit.NewDBRecorder(db)
			if err != nil {
				return nil, fmt.Errorf("failed to create database audit recorder: %w", err)
			}
			recorders = append(recorders, r)
		case config.AuditSinkFile:
			r, err := audit.NewFileRecorder(audit.FileRecorderConfig{BasePath: cfg.Audit.FileDir})
			if err != nil {
				return nil, fmt.Errorf("failed to create file audit recorder: %w", err)
			}
			recorders = append(recorders, r)
		case config.AuditSinkMemory:
			recorders = append(recorders, audit.NewMemoryRecorder())
		}
	}
	return recorders, nil
}

// combineRecorders fans out to every recorder, each passed through wrap,
// and searches the first one that supports it
func combineRecorders(recorders []audit.Recorder, wrap func(audit.Recorder) audit.Recorder) (audit.Recorder, audit.Searcher) {
	var searcher audit.Searcher
	for _, r := range recorders {
		if s, ok := r.(audit.Searcher); ok {
			searcher = s
			break
		}
	}
	writers := make([]audit.Recorder, len(recorders))
	for i, r := range recorders {
		writers[i] = wrap(r)
	}
	recorders = writers

	switch len(recorders) {
	case 0:
		return audit.NoOpRecorder{}, searcher
	case 1:
		return recorders[0], searcher
	default:
		return audit.NewMultiRecorder(recorders...), searcher
	}
}

// auditDirProbe reports whether the file audit sink can still write
func auditDirProbe(dir string) observability.ProbeFunc {
	return func(context.Context) error {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("audit directory not writable: %w", err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}
