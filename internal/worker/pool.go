package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

type Handler func(ctx context.Context, sessionID uuid.UUID) error

// Pool runs generations on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	concurrency int
	jobs        chan uuid.UUID
	log         *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(concurrency, queueSize int, log *logger.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if queueSize <= 0 {
		queueSize = concurrency * 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		concurrency: concurrency,
		jobs:        make(chan uuid.UUID, queueSize),
		log:         log.With("component", "worker_pool"),
	}
}

// Dispatch enqueues without blocking the caller.
func (p *Pool) Dispatch(ctx context.Context, sessionID uuid.UUID) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- sessionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done. Jobs still queued at
// shutdown are handed to h with the cancelled ctx so their outcome is recorded.
func (p *Pool) Run(ctx context.Context, h Handler) error {
	p.log.Info("worker pool started", "concurrency", p.concurrency, "queue", cap(p.jobs))

	p.wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go p.work(ctx, i, h)
	}

	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("worker pool stopped")
	return nil
}

func (p *Pool) work(ctx context.Context, workerID int, h Handler) {
	defer p.wg.Done()
	for id := range p.jobs {
		start := time.Now()
		if err := p.safeHandle(ctx, h, id); err != nil {
			p.log.Error("job failed", "worker", workerID, "session_id", id.String(), "took", time.Since(start), "error", err)
			continue
		}
		if took := time.Since(start); took > 2*time.Second {
			p.log.Debug("job_timing", "worker", workerID, "session_id", id.String(), "took", took)
		}
	}
}

func (p *Pool) safeHandle(ctx context.Context, h Handler, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.log.Error("worker panic", "session_id", id.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return h(ctx, id)
}
