// Package app builds the shared dependencies of the binaries from config.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/nimasrn/school-payment/internal/config"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/locker"
	"github.com/nimasrn/school-payment/internal/queue"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/internal/services"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/nimasrn/school-payment/pkg/prom"
	"github.com/nimasrn/school-payment/pkg/redis"
)

func ReadDBConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
}

func WriteDBConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
}

func OpenDB(c *config.Config) (*pg.DB, error) {
	db, err := pg.CreateReadWrite(ReadDBConfig(c), WriteDBConfig(c), c.AppEnv == "dev" && c.AppDebug)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

func OpenRedis(c *config.Config) (redis.RedisAdapter, error) {
	adapter, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return adapter, nil
}

func EventsQueueConfig(c *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.EventsStream,
		ConsumerGroup:     c.EventsConsumerGroup,
		ConsumerName:      c.EventsConsumerName,
		MaxRetries:        int64(c.EventsMaxRetries),
		VisibilityTimeout: c.EventsVisibilityTimeout,
		PollInterval:      c.EventsPollInterval,
		BatchSize:         c.EventsBatchSize,
		MaxLen:            c.EventsMaxLen,
		EnableDLQ:         true,
	}
}

func GatewayConfig(c *config.Config) *gateway.Config {
	return &gateway.Config{
		ServerKey: c.GatewayServerKey,
		SnapURL:   c.GatewaySnapURL,
		APIURL:    c.GatewayAPIURL,
		FinishURL: c.GatewayFinishURL,
		Timeout:   c.GatewayTimeout,
	}
}

// NewPaymentService wires the reconciliation core on top of db and redis.
func NewPaymentService(c *config.Config, db *pg.DB, rdb redis.RedisAdapter) (*services.PaymentService, error) {
	client, err := gateway.NewClient(GatewayConfig(c))
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}

	events, err := queue.NewQueue(rdb, EventsQueueConfig(c))
	if err != nil {
		return nil, fmt.Errorf("create events stream: %w", err)
	}

	transactions := repository.NewTransactionRepository(db)
	invoices := repository.NewInvoiceRepository(db)

	engine := services.NewSettlementEngine(
		db,
		transactions,
		invoices,
		repository.NewReceiptRepository(db),
		locker.New(rdb, locker.Config{TTL: c.SettlementLockTTL, Wait: c.SettlementLockWait}),
		services.NewRedisReceiptSequence(rdb),
		events,
	)

	return services.NewPaymentService(
		transactions,
		invoices,
		repository.NewStudentRepository(db),
		client,
		gateway.NewSignatureVerifier(c.GatewayServerKey),
		engine,
	), nil
}

// StartMetrics registers the collectors and serves them when a debug metrics
// address is configured.
func StartMetrics(c *config.Config) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, c.AppEnv, c.PromNamespace); err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}
	if c.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(c.AppDebugMetricsAddr, c.AppDebugMetricsURI)
	}
	return nil
}

// EnvPath returns the value of a --env=<file> argument, or "" when absent or
// unreadable.
func EnvPath(args []string) string {
	for _, v := range args {
		path, ok := strings.CutPrefix(v, "--env=")
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file", "path", path, "error", err)
			return ""
		}
		return path
	}
	return ""
}
