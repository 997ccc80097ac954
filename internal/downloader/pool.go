package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eaafetch/pkg/logger"
)

// Handler processes one job. It must return promptly once ctx is cancelled.
type Handler[J, R any] func(ctx context.Context, workerID int, job J) R

// Pool runs a fixed number of workers over a job queue and publishes one
// result per processed job. The consumer must drain Results until it is
// closed, also after cancellation.
type Pool[J, R any] struct {
	name        string
	numWorkers  int
	jobQueue    chan J
	resultQueue chan R
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	handler     Handler[J, R]
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewPool creates a worker pool; cancelling ctx stops the workers
func NewPool[J, R any](ctx context.Context, name string, numWorkers int, handler Handler[J, R], log logger.Logger) *Pool[J, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool[J, R]{
		name:        name,
		numWorkers:  numWorkers,
		jobQueue:    make(chan J, numWorkers*2), // Buffer size = 2x workers
		resultQueue: make(chan R, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		handler:     handler,
		logger:      log.WithField("pool", name),
	}
}

// Start initializes and starts all workers
func (p *Pool[J, R]) Start() {
	p.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the job queue, waits for the workers to drain it and closes the
// result channel. No job may be submitted after Stop.
func (p *Pool[J, R]) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobQueue)
		p.wg.Wait()
		close(p.resultQueue)
		p.cancel()
		p.logger.Debug("Worker pool stopped")
	})
}

// Cancel aborts in-flight jobs; queued jobs are discarded
func (p *Pool[J, R]) Cancel() {
	p.cancel()
}

// Submit adds a job to the queue, blocking while the queue is full
func (p *Pool[J, R]) Submit(job J) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %s is shutting down: %w", p.name, p.ctx.Err())
	}
}

// Results returns the result channel. It is closed by Stop, which waits for
// every processed job to be delivered.
func (p *Pool[J, R]) Results() <-chan R {
	return p.resultQueue
}

// QueueSize returns the current number of jobs in the queue
func (p *Pool[J, R]) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the number of workers
func (p *Pool[J, R]) Workers() int {
	return p.numWorkers
}

func (p *Pool[J, R]) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		// keep draining after cancel so Stop never blocks on a full queue
		if p.ctx.Err() != nil {
			continue
		}

		start := time.Now()
		result := p.handler(p.ctx, id, job)

		p.logger.DebugWithFields("Worker completed job", map[string]interface{}{
			"worker_id": id,
			"duration":  time.Since(start),
		})

		// a job that ran has side effects the consumer must learn about,
		// so its result is delivered even after cancellation
		p.resultQueue <- result
	}
}
