// Package eventloop provides the single-threaded task loop the coordinator runs on.
//
// Every state mutation is a task posted to the loop, so tasks never run
// concurrently with each other. Timers and asynchronous work deliver their
// continuation back onto the loop instead of running it on their own goroutine.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Timer is a scheduled task that can be cancelled before it fires
type Timer interface {
	Stop() bool
}

// Loop schedules tasks onto a single goroutine
type Loop interface {
	// Post queues a task to run on the loop
	Post(task func())
	// AfterFunc runs task on the loop once d has elapsed
	AfterFunc(d time.Duration, task func()) Timer
	// Async runs work off the loop and then posts then back onto it
	Async(work func(ctx context.Context), then func())
	// Now returns the loop's notion of the current time
	Now() time.Time
}

// EventLoop is the production Loop backed by a goroutine and a task channel
type EventLoop struct {
	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates an event loop with the given task buffer size
func New(buffer int, logger *slog.Logger) *EventLoop {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLoop{
		tasks:  make(chan func(), buffer),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Run processes tasks until ctx is cancelled or Stop is called
func (l *EventLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			l.cancel()
			return ctx.Err()
		case <-l.ctx.Done():
			return nil
		case task := <-l.tasks:
			l.run(task)
		}
	}
}

// run executes a task and keeps the loop alive if it panics
func (l *EventLoop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", r)
		}
	}()
	task()
}

// Stop terminates the loop, pending tasks are dropped
func (l *EventLoop) Stop() {
	l.cancel()
}

// Post implements Loop
func (l *EventLoop) Post(task func()) {
	select {
	case <-l.ctx.Done():
	case l.tasks <- task:
	}
}

// AfterFunc implements Loop
func (l *EventLoop) AfterFunc(d time.Duration, task func()) Timer {
	return time.AfterFunc(d, func() { l.Post(task) })
}

// Async implements Loop
func (l *EventLoop) Async(work func(ctx context.Context), then func()) {
	go func() {
		work(l.ctx)
		if then != nil {
			l.Post(then)
		}
	}()
}

// Now implements Loop
func (l *EventLoop) Now() time.Time {
	return time.Now()
}
