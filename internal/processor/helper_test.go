package processor

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

type memoryAuditRepo struct {
	mu   sync.Mutex
	logs []*model.AuditLog
	err  error
}

func (r *memoryAuditRepo) Create(_ context.Context, l *model.AuditLog) (*model.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.logs = append(r.logs, l)
	return l, nil
}

func (r *memoryAuditRepo) Logs() []*model.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.AuditLog(nil), r.logs...)
}

func (r *memoryAuditRepo) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}
