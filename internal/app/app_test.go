package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimasrn/school-payment/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("APP_ENV=test\n"), 0o600))

	assert.Equal(t, file, EnvPath([]string{"api", "--env=" + file}))
	assert.Equal(t, "", EnvPath([]string{"api", "--env=" + filepath.Join(dir, "missing")}))
	assert.Equal(t, "", EnvPath([]string{"api"}))
}

func TestEventsQueueConfig(t *testing.T) {
	c := &config.Config{
		EventsStream:            "payment-events",
		EventsConsumerGroup:     "audit",
		EventsConsumerName:      "audit-1",
		EventsMaxRetries:        3,
		EventsVisibilityTimeout: 30 * time.Second,
		EventsBatchSize:         50,
	}
	q := EventsQueueConfig(c)
	assert.Equal(t, "payment-events", q.Name)
	assert.EqualValues(t, 3, q.MaxRetries)
	assert.True(t, q.EnableDLQ)
}

func TestDBConfig(t *testing.T) {
	c := &config.Config{
		PostgresReadHost:  "replica",
		PostgresWriteHost: "primary",
		PostgresSSLMode:   "require",
	}
	assert.Equal(t, "replica", ReadDBConfig(c).Host)
	assert.Equal(t, "primary", WriteDBConfig(c).Host)
	assert.Equal(t, "require", WriteDBConfig(c).SSLMode)
}
