// Package scheduler provides the cooperative "next tick" used to defer
// work out of update handlers.
//
// Handlers running inside a surface dispatch must not mutate the surface
// synchronously. They Defer the mutation instead; the owner of the event
// loop calls Flush once the current handler has returned.
package scheduler

import (
	"errors"
	"sync"
)

// ErrFlushOverflow indicates callbacks kept deferring new callbacks for
// more rounds than a single Flush allows.
var ErrFlushOverflow = errors.New("scheduler: too many flush rounds")

// DefaultMaxRounds bounds the rounds of a single Flush.
const DefaultMaxRounds = 64

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRounds sets the number of rounds a Flush may run.
func WithMaxRounds(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithNotify sets a function called whenever the queue goes from empty
// to non-empty. Event loops use it to wake up.
func WithNotify(fn func()) Option {
	return func(l *Loop) {
		l.notify = fn
	}
}

// Loop is a FIFO queue of deferred callbacks.
// Defer is safe for concurrent use; Flush must be called from the event
// loop goroutine.
type Loop struct {
	mu        sync.Mutex
	queue     []func()
	maxRounds int
	notify    func()
}

// New creates a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{maxRounds: DefaultMaxRounds}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Defer queues fn for the next Flush.
func (l *Loop) Defer(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	wake := len(l.queue) == 0
	l.queue = append(l.queue, fn)
	notify := l.notify
	l.mu.Unlock()

	if wake && notify != nil {
		notify()
	}
}

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Flush runs queued callbacks in FIFO order. Callbacks deferred during the
// flush run in a later round of the same call. It returns the number of
// callbacks run, and ErrFlushOverflow if work remains after the last round.
func (l *Loop) Flush() (int, error) {
	ran := 0
	for round := 0; round < l.maxRounds; round++ {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return ran, nil
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
	if l.Pending() > 0 {
		return ran, ErrFlushOverflow
	}
	return ran, nil
}
