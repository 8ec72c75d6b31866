package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/redis"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

type Config struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is how long Acquire keeps trying before giving up.
	Wait time.Duration
	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
	KeyPrefix     string
}

func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Second,
		Wait:          5 * time.Second,
		RetryInterval: 20 * time.Millisecond,
		KeyPrefix:     "settle:lock:",
	}
}

// Locker hands out exclusive, expiring locks keyed by name (an order id) and
// shared by every process using the same Redis.
type Locker struct {
	redis  redis.RedisAdapter
	config Config
}

func New(adapter redis.RedisAdapter, config Config) *Locker {
	d := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = d.TTL
	}
	if config.Wait <= 0 {
		config.Wait = d.Wait
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = d.RetryInterval
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = d.KeyPrefix
	}
	return &Locker{redis: adapter, config: config}
}

type Lock struct {
	key    string
	token  []byte
	locker *Locker
}

// Acquire blocks until the lock for name is held, ctx is done or the wait
// budget runs out.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := l.config.KeyPrefix + name
	token := []byte(uuid.NewString())
	deadline := time.Now().Add(l.config.Wait)

	for attempt := 0; ; attempt++ {
		ok, err := l.redis.SetNX(ctx, key, token, l.config.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			if attempt > 0 {
				logger.Debug("Lock acquired after waiting", "key", key, "attempts", attempt+1)
			}
			return &Lock{key: key, token: token, locker: l}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.config.RetryInterval):
		}
	}
}

// Release drops the lock if it is still ours. A lock that already expired is
// left to whoever holds it now.
func (k *Lock) Release(ctx context.Context) error {
	released, err := k.locker.redis.DelIfEqual(ctx, k.key, k.token)
	if err != nil {
		logger.Warn("Failed to release lock", "key", k.key, "error", err)
		return err
	}
	if !released {
		logger.Warn("Lock expired before release", "key", k.key)
	}
	return nil
}
