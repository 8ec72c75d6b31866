package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every value the binaries read from the environment. Nothing else
// in the repo should read env vars directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=school_payment"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT,default=10"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT,default=10"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSL_MODE,default=disable"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE,default=school_payment"`

	LogLevel string `env:"LOG_LEVEL"`

	// Payment gateway
	GatewayServerKey string        `env:"GATEWAY_SERVER_KEY"`
	GatewaySnapURL   string        `env:"GATEWAY_SNAP_URL"`
	GatewayAPIURL    string        `env:"GATEWAY_API_URL"`
	GatewayTimeout   time.Duration `env:"GATEWAY_TIMEOUT,default=10s"`
	GatewayFinishURL string        `env:"GATEWAY_FINISH_URL"`

	SettlementLockTTL  time.Duration `env:"SETTLEMENT_LOCK_TTL,default=30s"`
	SettlementLockWait time.Duration `env:"SETTLEMENT_LOCK_WAIT,default=5s"`

	// Settlement events
	EventsStream            string        `env:"EVENTS_STREAM,default=payment-events"`
	EventsConsumerGroup     string        `env:"EVENTS_CONSUMER_GROUP,default=audit"`
	EventsConsumerName      string        `env:"EVENTS_CONSUMER_NAME,default=audit-1"`
	EventsWorkers           int           `env:"EVENTS_WORKERS,default=4"`
	EventsMaxRetries        int           `env:"EVENTS_MAX_RETRIES,default=3"`
	EventsVisibilityTimeout time.Duration `env:"EVENTS_VISIBILITY_TIMEOUT,default=30s"`
	EventsPollInterval      time.Duration `env:"EVENTS_POLL_INTERVAL,default=1s"`
	EventsBatchSize         int64         `env:"EVENTS_BATCH_SIZE,default=50"`
	EventsMaxLen            int64         `env:"EVENTS_MAX_LEN,default=100000"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Config")
	}

	if c.LogLevel != "" {
		if err := logger.SetLevel(c.LogLevel); err != nil {
			logger.Warn("ignoring invalid LOG_LEVEL", "value", c.LogLevel)
		}
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the process config. Tests use it instead of the environment.
func Set(c *Config) {
	config = c
}
