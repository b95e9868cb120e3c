// Package runner serializes work onto a single goroutine.
//
// Script interfaces are not goroutine-safe. Every load, reload and event
// execution goes through one Runner so that signal handlers, the file
// watcher and think ticks never touch an interface concurrently.
//
//	r := runner.New(64)
//	go r.Run(ctx)
//	defer r.Close()
//
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    _, err := loader.Reload(ctx)
//	    return err
//	})
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Errors returned by Runner.
var (
	ErrClosed    = errors.New("runner is closed")
	ErrQueueFull = errors.New("runner queue is full")
)

// Task is a unit of work. ctx is the context of the Run loop, carrying
// its logger.
type Task func(ctx context.Context) error

type call struct {
	fn     Task
	result chan error
}

// Runner executes tasks one at a time on the goroutine calling Run.
type Runner struct {
	queue     chan *call
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a runner. queueSize bounds the number of pending tasks.
func New(queueSize int) *Runner {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Runner{
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is done or Close is called. Pending tasks
// then fail with the context error or ErrClosed.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx.Err())
			return
		case <-r.done:
			r.drain(ErrClosed)
			return
		case c := <-r.queue:
			c.result <- r.execute(ctx, c.fn)
			close(c.result)
		}
	}
}

// execute runs one task, converting a panic into an error.
func (r *Runner) execute(ctx context.Context, fn Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch v := rec.(type) {
			case error:
				err = fmt.Errorf("task panicked: %w", v)
			default:
				err = fmt.Errorf("task panicked: %v", v)
			}
		}
	}()
	return fn(ctx)
}

func (r *Runner) drain(err error) {
	for {
		select {
		case c := <-r.queue:
			c.result <- err
			close(c.result)
		default:
			return
		}
	}
}

// Do runs fn on the runner goroutine and waits for its result. When ctx
// ends first, Do returns ctx.Err() and the task may still run.
func (r *Runner) Do(ctx context.Context, fn Task) error {
	if r.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	case r.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrClosed
		}
		return err
	}
}

// Go queues fn without waiting. errFn, when non-nil, receives the result
// on a separate goroutine.
func (r *Runner) Go(fn Task, errFn func(error)) error {
	if r.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-r.done:
		return ErrClosed
	case r.queue <- c:
		go func() {
			err := <-c.result
			if errFn != nil {
				errFn(err)
			}
		}()
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the runner. Queued tasks fail with ErrClosed.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
}

// IsClosed reports whether Close was called.
func (r *Runner) IsClosed() bool {
	return r.closed.Load()
}
