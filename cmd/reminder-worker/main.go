package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/db"
	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

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

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 4,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()

	sched, err := cfg.Scheduler()
	if err != nil {
		logger.Fatal("scheduler config error", zap.Error(err))
	}

	repo := appointment.NewPgRepository(pgPool)
	doctors := appointment.NewCachedDoctors(repo, redisclient.NewCache(rdb, appointment.DoctorCachePrefix), cfg.DoctorCacheTTL, logger)
	svc := appointment.NewService(repo, redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL), notify.NewStore(pgPool),
		sched, cfg.Policy(), logger, appointment.WithDoctors(doctors))

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := svc.SendDueReminders(runCtx, start)
	if err != nil {
		logger.Error("reminder run error", zap.Error(err))
		return
	}
	logger.Info("reminder run complete",
		zap.Int("total", res.Total),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
}
