// Package worker drains queued profile updates into the remote profile store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/ecoquest/internal/adapters/mq/queue"
	"github.com/okian/ecoquest/pkg/logger"
	"github.com/okian/ecoquest/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 1
	defaultCallTimeout  = 10 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Sync results used as metric labels.
const (
	resultOK    = "ok"
	resultError = "error"
)

// Job is what workers read off the queue.
type Job = queue.Job

// Updater writes fields to a user's remote profile.
type Updater interface {
	Update(ctx context.Context, userID string, fields map[string]string) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes sync jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without waiting for the queue to drain.
	Shutdown(ctx context.Context) error
}

// SyncWorker implements Worker. Each job is one remote update; failures are
// reported to the job's callback and never retried.
type SyncWorker struct {
	queue   Queue
	updater Updater
	name    string
	timeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewSyncWorker creates a new worker with configuration options.
func NewSyncWorker(q Queue, updater Updater, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		queue:    q,
		updater:  updater,
		name:     "sync-worker",
		timeout:  defaultCallTimeout,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "sync-worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *SyncWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "remote sync failed",
					logger.String("job_id", j.ID),
					logger.String("kind", j.Kind),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *SyncWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *SyncWorker) Done() <-chan struct{} {
	return w.done
}

// process pushes one job and reports the outcome to its callback.
func (w *SyncWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.updater.Update(callCtx, j.UserID, j.Fields)
	cancel()

	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		err = fmt.Errorf("sync %s for %s: %w", j.Kind, j.UserID, err)
		metrics.RecordRemoteSync(j.Kind, resultError, latency)
		metrics.RecordErrorByComponent("worker", "remote_sync_error")
	} else {
		metrics.RecordRemoteSync(j.Kind, resultOK, latency)
		w.logger.Debug(ctx, "remote sync complete",
			logger.String("job_id", j.ID),
			logger.String("kind", j.Kind),
			logger.Int("fields", len(j.Fields)),
			logger.Duration("queued_for", start.Sub(j.EnqueuedAt)),
		)
	}

	if j.Done != nil {
		j.Done(err)
	}
	return err
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*SyncWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a new worker pool. A single worker keeps updates for a user
// in enqueue order; larger pools trade that ordering for throughput.
func NewPool(workerCount int, q Queue, updater Updater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*SyncWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("sync-worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewSyncWorker(q, updater, workerOpts...)
	}

	metrics.UpdateSyncWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "sync workers started", logger.Int("count", len(p.workers)))
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancel()
	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
	metrics.UpdateSyncWorkerCount(0)
}

// Shutdown closes the queue and waits for the workers to drain it. Workers
// still running when ctx expires are stopped and an error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	metrics.UpdateSyncWorkerCount(0)

	if timedOut {
		return fmt.Errorf("drain sync queue: %w", shutdownCtx.Err())
	}
	return nil
}
