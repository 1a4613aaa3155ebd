package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/api"
	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/db"
	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
	"github.com/hackgods/smart-appointment-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("clinic_timezone", cfg.ClinicTimezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	sched, err := cfg.Scheduler()
	if err != nil {
		logger.Fatal("scheduler config error", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(registry)

	repo := appointment.NewPgRepository(pgPool)
	doctors := appointment.NewCachedDoctors(repo, redisclient.NewCache(rdb, appointment.DoctorCachePrefix), cfg.DoctorCacheTTL, logger)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	outbox := notify.NewStore(pgPool)

	svc := appointment.NewService(repo, locker, outbox, sched, cfg.Policy(), logger,
		appointment.WithDoctors(doctors),
		appointment.WithMetrics(m),
	)

	handler, err := notificationHandler(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("notification transport error", zap.Error(err))
	}
	deliverer := notify.NewDeliverer(outbox, handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval).
		WithMetrics(m)
	go deliverer.Start(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Logger:  logger,
		Checks: []api.DependencyCheck{
			{Name: "postgres", Critical: true, Ping: pgPool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// notificationHandler picks the outbox transport: SQS when a queue is
// configured, the log otherwise.
func notificationHandler(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Handler, error) {
	if cfg.NotifyQueueURL == "" {
		logger.Info("NOTIFY_QUEUE_URL not set, notifications will be logged")
		return notify.NewLogHandler(logger), nil
	}
	client, err := notify.NewSQSClient(ctx, notify.AWSOptions{
		Region:           cfg.AWSRegion,
		AccessKeyID:      cfg.AWSAccessKeyID,
		SecretAccessKey:  cfg.AWSSecretAccessKey,
		EndpointOverride: cfg.AWSEndpointOverride,
	})
	if err != nil {
		return nil, err
	}
	return notify.NewSQSPublisher(client, cfg.NotifyQueueURL), nil
}
