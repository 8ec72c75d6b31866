package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/school-payment/internal/app"
	"github.com/nimasrn/school-payment/internal/config"
	"github.com/nimasrn/school-payment/internal/handlers"
	xhttp "github.com/nimasrn/school-payment/pkg/http"
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
	logger.Info("starting api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

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

	paymentService, err := app.NewPaymentService(cfg, db, rdb)
	if err != nil {
		logger.Error("failed to build payment service", "error", err)
		return
	}

	opt := xhttp.DefaultServerOption
	opt.Name = cfg.AppName
	opt.ReadTimeout = time.Duration(cfg.HttpServerReadTimeout) * time.Second
	opt.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeout) * time.Second
	if cfg.HttpServerReadBufferSize > 0 {
		opt.ReadBufferSize = cfg.HttpServerReadBufferSize
	}
	if cfg.HttpServerWriteBufferSize > 0 {
		opt.WriteBufferSize = cfg.HttpServerWriteBufferSize
	}

	s := xhttp.NewServer(opt)
	s.Router = xhttp.CreateDefaultRouter()
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	// must outlast the gateway timeout plus the settlement lock wait
	s.Use(xhttp.TimeoutMiddleware(cfg.GatewayTimeout + cfg.SettlementLockWait + 5*time.Second))
	s.Use(xhttp.CompressMiddleware(6))

	g := s.Router.Group("/api/v1")
	handlers.RegisterPaymentRoutes(g, handlers.NewPaymentHandler(paymentService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": db,
		"redis":    rdb,
	}))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			c <- syscall.SIGTERM
		}
	}()

	<-c
	s.Shutdown()
}
