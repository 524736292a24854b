package engine

import (
	"sync"
	"time"
)

// Timer is a stoppable deferred task handle. [time.Timer.Stop] semantics:
// Stop reports whether the task was prevented from running.
type Timer interface {
	Stop() bool
}

// Scheduler serialises all engine state mutation onto one logical thread.
//
// Every entry point of the engine posts a task instead of mutating state
// directly; async completions re-enter the same way, carrying their
// generation in the closure. Because tasks never run concurrently, the
// engine needs no locks — it only needs the logical ordering "cancel old
// before the current generation advances", which task order provides.
type Scheduler interface {
	// Post enqueues fn to run on the scheduler's thread. Tasks run in the
	// order they were posted.
	Post(fn func())

	// After schedules fn to be posted after d has elapsed. The returned
	// Timer can stop the task before it is posted.
	After(d time.Duration, fn func()) Timer
}

// RunLoop is the production Scheduler: a single goroutine drains a task
// queue. Deferred tasks are posted back through the same queue so they obey
// the same ordering as everything else.
type RunLoop struct {
	tasks chan func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

var _ Scheduler = (*RunLoop)(nil)

// NewRunLoop creates and starts a run loop. Call Close to stop it.
func NewRunLoop() *RunLoop {
	l := &RunLoop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *RunLoop) run() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.done:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post implements Scheduler. Posting to a closed loop is a no-op.
func (l *RunLoop) Post(fn func()) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// After implements Scheduler.
func (l *RunLoop) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Close stops the loop after draining already-queued tasks. Close is
// idempotent.
func (l *RunLoop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}
