package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("message already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration
	// ProcessedTTL is how long a handled message id is remembered. It must
	// outlive the stream retention for redeliveries to be recognised.
	ProcessedTTL time.Duration
	MaxRetries   int64

	LockKeyPrefix      string
	ProcessedKeyPrefix string
	RetryKeyPrefix     string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       7 * 24 * time.Hour,
		MaxRetries:         5,
		LockKeyPrefix:      "events:lock:",
		ProcessedKeyPrefix: "events:processed:",
		RetryKeyPrefix:     "events:retry:",
	}
}

// IdempotencyService makes stream consumers exactly-once per message id on
// top of the at-least-once delivery of the stream.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(adapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	d := DefaultIdempotencyConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = d.LockTTL
	}
	if config.ProcessedTTL <= 0 {
		config.ProcessedTTL = d.ProcessedTTL
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = d.MaxRetries
	}
	if config.LockKeyPrefix == "" {
		config.LockKeyPrefix = d.LockKeyPrefix
	}
	if config.ProcessedKeyPrefix == "" {
		config.ProcessedKeyPrefix = d.ProcessedKeyPrefix
	}
	if config.RetryKeyPrefix == "" {
		config.RetryKeyPrefix = d.RetryKeyPrefix
	}
	return &IdempotencyService{redis: adapter, config: config}
}

type ProcessingContext struct {
	MessageID  string
	RetryCount int64
	token      []byte
	held       bool
}

func (pc *ProcessingContext) IsRetry() bool {
	return pc.RetryCount > 0
}

// AcquireProcessingLock claims messageID for the caller. It fails with
// ErrAlreadyProcessed, ErrMaxRetriesExceeded or ErrLockAcquireFailed.
func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, messageID string) (*ProcessingContext, error) {
	processed, err := s.IsProcessed(ctx, messageID)
	if err != nil {
		// a duplicate audit row is better than a stuck consumer
		logger.Warn("Failed to check processed marker", "message_id", messageID, "error", err)
	} else if processed {
		return nil, ErrAlreadyProcessed
	}

	retries, err := s.GetRetryCount(ctx, messageID)
	if err != nil {
		logger.Warn("Failed to read retry counter", "message_id", messageID, "error", err)
	}
	if retries >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: message_id=%s, retries=%d", ErrMaxRetriesExceeded, messageID, retries)
	}

	token := []byte(uuid.NewString())
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+messageID, token, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("Processing lock acquired", "message_id", messageID, "retry_count", retries)
	return &ProcessingContext{
		MessageID:  messageID,
		RetryCount: retries,
		token:      token,
		held:       true,
	}, nil
}

// MarkSuccess records the message as handled and drops its lock and counter.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.MessageID, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	if err := s.redis.Del(ctx, s.config.RetryKeyPrefix+pc.MessageID); err != nil {
		logger.Warn("Failed to clear retry counter", "message_id", pc.MessageID, "error", err)
	}
	return s.ReleaseLock(ctx, pc)
}

// MarkFailure bumps the retry counter and frees the message for the next
// delivery.
func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	n, err := s.redis.IncrWithTTL(ctx, s.config.RetryKeyPrefix+pc.MessageID, s.config.ProcessedTTL)
	if err != nil {
		logger.Error("Failed to increment retry counter", "message_id", pc.MessageID, "error", err)
	}
	logger.Warn("Message processing failed",
		"message_id", pc.MessageID,
		"retry_count", n,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return s.ReleaseLock(ctx, pc)
}

// ReleaseLock is a no-op once the lock was released or expired and was taken
// by another consumer.
func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.held {
		return nil
	}
	pc.held = false
	if _, err := s.redis.DelIfEqual(ctx, s.config.LockKeyPrefix+pc.MessageID, pc.token); err != nil {
		logger.Warn("Failed to release processing lock", "message_id", pc.MessageID, "error", err)
		return err
	}
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, messageID string) (int64, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+messageID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+messageID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
