package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesJobs(t *testing.T) {
	w := NewWorkerManager(10, 3)

	var mu sync.Mutex
	seen := map[int]bool{}
	var wg sync.WaitGroup
	w.SetWorker(func(ctx context.Context, idx int, job interface{}) {
		defer wg.Done()
		mu.Lock()
		seen[job.(int)] = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Start(ctx) }()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, w.Enqueue(ctx, i))
	}
	wg.Wait()
	assert.Len(t, seen, 20)

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestWorkerManager_EnqueueRespectsContext(t *testing.T) {
	w := NewWorkerManager(0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Enqueue(ctx, 1), context.DeadlineExceeded)
}
