package worker

import (
	"context"
	"sync"

	"github.com/nimasrn/school-payment/pkg/logger"
)

type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{})

// WorkerManager fans jobs out to a fixed number of goroutines. Workers run
// until the context given to Start is done; jobs still buffered at that point
// are left in the channel.
type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	do             WorkerHandler
	waiter         sync.WaitGroup
}

func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue blocks until the job fits in the buffer or ctx is done.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the workers and blocks until ctx is done and every worker has
// finished its current job.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(ctx, index, job)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	logger.Info("worker manager stopped", "workers", w.numberOfWorker, "unread", w.GetUnreadCount())
	return ctx.Err()
}
