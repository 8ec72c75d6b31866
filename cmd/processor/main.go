package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/school-payment/internal/app"
	"github.com/nimasrn/school-payment/internal/config"
	"github.com/nimasrn/school-payment/internal/processor"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	if err := config.Load(app.EnvPath(os.Args)); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting processor", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	if err := app.StartMetrics(cfg); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	db, err := app.OpenDB(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	rdb, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	idempotency := processor.NewIdempotencyService(rdb, processor.DefaultIdempotencyConfig())
	audit := processor.NewAuditProcessor(repository.NewAuditLogRepository(db), idempotency)

	service := processor.NewProcessorService(rdb, audit, processor.Options{
		Queue:     app.EventsQueueConfig(cfg),
		Consumers: cfg.EventsWorkers,
		Workers:   cfg.EventsWorkers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	<-ctx.Done()
	service.Stop()
}
