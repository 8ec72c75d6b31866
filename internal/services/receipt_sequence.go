package services

import (
	"context"
	"time"

	"github.com/nimasrn/school-payment/pkg/redis"
)

// RedisReceiptSequence numbers receipts per calendar day.
type RedisReceiptSequence struct {
	redis  redis.RedisAdapter
	prefix string
}

func NewRedisReceiptSequence(adapter redis.RedisAdapter) *RedisReceiptSequence {
	return &RedisReceiptSequence{redis: adapter, prefix: "receipt:seq:"}
}

func (s *RedisReceiptSequence) Next(ctx context.Context, day time.Time) (int64, error) {
	return s.redis.IncrWithTTL(ctx, s.prefix+day.Format("20060102"), 48*time.Hour)
}
