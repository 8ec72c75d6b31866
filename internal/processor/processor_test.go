package processor

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/school-payment/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorService_ConsumesStream(t *testing.T) {
	_, adapter := setupRedis(t)
	repo := &memoryAuditRepo{}
	cfg := queue.QueueConfig{
		Name:          "payment-events",
		ConsumerGroup: "audit",
		ConsumerName:  "test",
		PollInterval:  10 * time.Millisecond,
		BatchSize:     10,
	}

	producer, err := queue.NewQueue(adapter, cfg)
	require.NoError(t, err)

	svc := NewProcessorService(adapter,
		NewAuditProcessor(repo, NewIdempotencyService(adapter, DefaultIdempotencyConfig())),
		Options{Queue: cfg, Consumers: 2, Workers: 2},
	)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	for i := 0; i < 5; i++ {
		msg := settlementMessage(t, "")
		_, err := producer.Publish(context.Background(), msg.Data, map[string]string{"type": "invoice.paid"})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return len(repo.Logs()) == 5
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		stats, err := producer.GetStats(context.Background())
		return err == nil && stats.PendingMessages == 0 && svc.Metrics().Snapshot().Processed == 5
	}, 2*time.Second, 20*time.Millisecond)
}
