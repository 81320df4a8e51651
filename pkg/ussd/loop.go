package ussd

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"ussdpilot/pkg/logging"
)

// Scheduler runs continuations on a single logical thread.
type Scheduler interface {
	// Post queues fn to run as soon as possible.
	Post(fn func())
	// PostDelayed queues fn to run after d. The wait cannot be canceled.
	PostDelayed(d time.Duration, fn func())
}

// Loop is a Scheduler backed by one goroutine draining a task channel.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewLoop creates a loop with room for buffer pending tasks.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				l.Stop()
				return
			case <-l.done:
				return
			case fn := <-l.tasks:
				l.run(fn)
			}
		}
	}()
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Panic("loop", r, string(debug.Stack()))
		}
	}()
	fn()
}

// Post implements Scheduler. Tasks posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.tasks <- fn:
	}
}

// PostDelayed implements Scheduler.
func (l *Loop) PostDelayed(d time.Duration, fn func()) {
	if d <= 0 {
		l.Post(fn)
		return
	}
	time.AfterFunc(d, func() { l.Post(fn) })
}

// Call posts fn and waits for it to finish on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrNotAttached
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the loop. Pending and delayed tasks are discarded.
func (l *Loop) Stop() {
	l.stopped.Do(func() { close(l.done) })
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	l.wg.Wait()
}
