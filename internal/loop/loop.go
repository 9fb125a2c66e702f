// Package loop provides a cooperative single-goroutine event loop.
//
// Every piece of view and orchestration state is confined to the loop
// goroutine. Blocking work (network calls) runs on its own goroutine through
// Await and re-enters the loop with a completion callback, so callbacks never
// run concurrently with each other.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned by Call when the loop stops before running the task.
var ErrStopped = errors.New("event loop stopped")

// Loop runs posted tasks one at a time in FIFO order.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	pending int
	idle    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// New creates an event loop. Run must be called to start processing.
func New(logger *zap.Logger) *Loop {
	idle := make(chan struct{})
	close(idle)
	return &Loop{
		wake:    make(chan struct{}, 1),
		idle:    idle,
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run processes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.exec(task)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Post enqueues fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.addLocked()
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to return.
// It must not be called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("wait for event loop: %w", ctx.Err())
	}
}

// Idle blocks until no task is queued or running and no Await is outstanding.
func (l *Loop) Idle(ctx context.Context) error {
	l.mu.Lock()
	ch := l.idle
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for idle: %w", ctx.Err())
	}
}

// Await runs work on a new goroutine and posts done with its outcome back to
// the loop. It is the only suspension point: the loop keeps processing other
// tasks while work is in flight.
func Await[T any](l *Loop, ctx context.Context, work func(context.Context) (T, error), done func(T, error)) {
	l.mu.Lock()
	l.addLocked()
	l.mu.Unlock()

	go func() {
		defer l.release()
		v, err := work(ctx)
		// posted before release so the pending count never touches zero in between
		l.Post(func() { done(v, err) })
	}()
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) exec(task func()) {
	defer l.release()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
		}
	}()
	task()
}

func (l *Loop) addLocked() {
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
}

func (l *Loop) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}
