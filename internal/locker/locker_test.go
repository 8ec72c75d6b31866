package locker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/school-payment/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T, cfg Config) (*miniredis.Miniredis, *Locker) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, New(adapter, cfg)
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr, l := setupLocker(t, Config{Wait: 50 * time.Millisecond})
	ctx := context.Background()

	lock, err := l.Acquire(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("settle:lock:ORDER-1"))

	_, err = l.Acquire(ctx, "ORDER-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Acquire(ctx, "ORDER-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("settle:lock:ORDER-1"))

	again, err := l.Acquire(ctx, "ORDER-1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_ReleaseDoesNotDropForeignLock(t *testing.T) {
	mr, l := setupLocker(t, Config{TTL: time.Second})
	ctx := context.Background()

	lock, err := l.Acquire(ctx, "ORDER-1")
	require.NoError(t, err)

	// someone else took over after our lock expired
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("settle:lock:ORDER-1", "someone-else"))

	require.NoError(t, lock.Release(ctx))
	got, err := mr.Get("settle:lock:ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocker_Serializes(t *testing.T) {
	_, l := setupLocker(t, Config{Wait: 5 * time.Second, RetryInterval: time.Millisecond})
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := l.Acquire(ctx, "ORDER-X")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, lock.Release(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocker_ContextCancelled(t *testing.T) {
	_, l := setupLocker(t, Config{Wait: time.Minute})
	lock, err := l.Acquire(context.Background(), "ORDER-1")
	require.NoError(t, err)
	defer lock.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "ORDER-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
