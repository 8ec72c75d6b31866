package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/school-payment/internal/queue"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/prom"
	"github.com/nimasrn/school-payment/pkg/redis"
	"github.com/nimasrn/school-payment/pkg/worker"
)

const (
	ProcessingTimeout = 5 * time.Second
	HealthInterval    = 30 * time.Second
	ReportInterval    = 30 * time.Second
	ShutdownTimeout   = 30 * time.Second
	lagWarnThreshold  = 10_000
)

// Processor handles one message. A nil error acks it.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type Options struct {
	Queue queue.QueueConfig
	// Consumers is the number of stream consumers in this process. Each one
	// hands its messages to the shared worker pool.
	Consumers int
	Workers   int
}

// ProcessorService reads the event stream with several consumers of the same
// group and runs the registered Processor on a worker pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	options   Options
	processor Processor
	metrics   *ServiceMetrics
	worker    *worker.WorkerManager

	queues []*queue.Queue
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

func NewProcessorService(adapter redis.RedisAdapter, processor Processor, options Options) *ProcessorService {
	if options.Consumers <= 0 {
		options.Consumers = 1
	}
	if options.Workers <= 0 {
		options.Workers = options.Consumers
	}
	return &ProcessorService{
		adapter:   adapter,
		options:   options,
		processor: processor,
		metrics:   NewServiceMetrics(),
		worker:    worker.NewWorkerManager(options.Workers*2, options.Workers),
	}
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

// Start returns once every consumer is running. Processing continues until ctx
// is done or Stop is called.
func (s *ProcessorService) Start(ctx context.Context) error {
	logger.Info("Starting processor service", "type", s.processor.GetType(), "stream", s.options.Queue.Name)

	ctx, s.cancel = context.WithCancel(ctx)
	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.worker.Start(ctx)
	}()

	for i := 0; i < s.options.Consumers; i++ {
		cfg := s.options.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-%d", cfg.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			s.cancel()
			return fmt.Errorf("failed to create consumer %d: %w", i, err)
		}
		if err := q.Consume(ctx, s.messageHandler); err != nil {
			s.cancel()
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.every(ctx, ReportInterval, s.reportMetrics)
	go s.every(ctx, HealthInterval, s.performHealthCheck)

	logger.Info("Processor service started", "consumers", len(s.queues), "workers", s.options.Workers)
	return nil
}

func (s *ProcessorService) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics(ctx context.Context) {
	m := s.metrics.Snapshot()
	logger.Info("Processor metrics",
		"processed", m.Processed,
		"failed", m.Failed,
		"rate_per_second", m.RatePerSecond,
		"avg_duration_ms", m.AvgDuration.Milliseconds(),
		"uptime_seconds", int64(m.Uptime.Seconds()))

	if len(s.queues) > 0 {
		if stats, err := s.queues[0].GetStats(ctx); err == nil {
			logger.Info("Stream stats", "stream", s.queues[0].Name(), "total", stats.TotalMessages, "pending", stats.PendingMessages)
			prom.SetStreamStats(s.queues[0].Name(), stats.TotalMessages, stats.PendingMessages)
		}
	}
}

func (s *ProcessorService) performHealthCheck(ctx context.Context) {
	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("Health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats(ctx)
	if err != nil {
		logger.Warn("Health check: stream stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > lagWarnThreshold {
		logger.Warn("Health check: consumer group is lagging", "pending_messages", stats.PendingMessages)
	}
}

// Stop cancels the consumers and waits for in-flight messages.
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down processor service...")
	if s.cancel != nil {
		s.cancel()
	}

	for i, q := range s.queues {
		if err := q.Stop(ShutdownTimeout); err != nil {
			logger.Error("Error stopping consumer", "consumer", i, "error", err)
		}
	}
	s.wg.Wait()

	s.reportMetrics(context.Background())
	logger.Info("Processor service stopped")
}

// messageHandler runs on a consumer goroutine and waits for the worker pool to
// handle the message, so the queue acks only finished work.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	ctx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	j := &job{ctx: ctx, msg: msg, result: make(chan error, 1)}
	if err := s.worker.Enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}

func (s *ProcessorService) workerHandler(_ context.Context, workerIndex int, v interface{}) {
	j, ok := v.(*job)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}
	if j.ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process message", "worker", workerIndex, "message_id", j.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}
	prom.ObserveEventDuration(time.Since(start))

	// buffered, never blocks
	j.result <- err
}
