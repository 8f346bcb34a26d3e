// Package pool implements the bounded worker pools that back each storage
// adapter. Every adapter call is dispatched to its pool so the caller's
// goroutine never executes blocking I/O directly; the queue depth is fixed
// and a full queue blocks the submitter rather than growing without bound.
package pool

import (
	"context"
	"errors"
	"sync"

	"agentvault/internal/logging"
)

// ErrClosed is returned by Do after Close has been called.
var ErrClosed = errors.New("pool: closed")

type task struct {
	fn   func() error
	errc chan error
}

// Pool is a fixed-size worker pool with a bounded task queue.
type Pool struct {
	name  string
	tasks chan task
	quit  chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// New starts a pool with the given worker count and queue depth.
func New(name string, workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	p := &Pool{
		name:  name,
		tasks: make(chan task, queueDepth),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	logging.PoolDebug("pool %s started: workers=%d queue_depth=%d", name, workers, queueDepth)
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			t.errc <- t.fn()
		case <-p.quit:
			// Drain tasks that were accepted before Close.
			for {
				select {
				case t := <-p.tasks:
					t.errc <- t.fn()
				default:
					return
				}
			}
		}
	}
}

// Do submits fn and waits for it to finish, returning fn's error. A full
// queue blocks the caller until a slot frees (backpressure). Cancelling
// ctx abandons the wait and returns ctx.Err(); once fn has been queued it
// still runs to completion on its worker - in-flight work is never
// cancelled mid-operation.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.tasks <- task{fn: fn, errc: errc}:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logging.PoolDebug("pool %s: caller abandoned wait, task keeps running", p.name)
		return ctx.Err()
	}
}

// Close stops accepting work, lets queued tasks finish, and waits for the
// workers to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
		p.wg.Wait()
		logging.PoolDebug("pool %s closed", p.name)
	})
}
