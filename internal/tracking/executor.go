package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/coverfinder-server/internal/metrics"
)

// queueRetryInterval is how often a read waiting on a full queue retries.
const queueRetryInterval = time.Millisecond

// executor runs tracking work on one goroutine in submission order.
type executor struct {
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func newExecutor(queueSize int, logger *slog.Logger) *executor {
	e := &executor{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.done)
	for task := range e.tasks {
		metrics.TrackingQueueDepth.Set(float64(len(e.tasks)))
		e.runTask(task)
	}
	metrics.TrackingQueueDepth.Set(0)
}

func (e *executor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tracking task panicked", "panic", r)
		}
	}()
	task()
}

// submit enqueues task without blocking. It returns false when the queue is full or closed.
func (e *executor) submit(task func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	select {
	case e.tasks <- task:
		return true
	default:
		return false
	}
}

// call runs fn after everything already queued and waits for it. Once the executor is
// closed fn runs inline. If ctx ends first, fn may still run later and its results must be
// ignored.
func (e *executor) call(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	// The lock is only held for non-blocking attempts so a pending stop never stalls submit.
	for {
		sent, closed := e.trySend(task)
		if closed {
			fn()
			return nil
		}
		if sent {
			break
		}
		timer := time.NewTimer(queueRetryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend enqueues task if there is room. closed reports a stopped executor.
func (e *executor) trySend(task func()) (sent, closed bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, true
	}
	select {
	case e.tasks <- task:
		return true, false
	default:
		return false, false
	}
}

// stop refuses new work and waits for the queue to drain.
func (e *executor) stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
