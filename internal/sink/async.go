package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/unmark/event"
)

// ErrQueueFull is returned by Async.Send when the buffer is full and the
// event was dropped.
var ErrQueueFull = errors.New("sink: queue full, event dropped")

// ErrClosed is returned by Async.Send after Close.
var ErrClosed = errors.New("sink: closed")

// Async delivers events to an inner sink on its own goroutine. Send never
// waits on the inner sink, so a slow or failing backend cannot hold up the
// page loops that emit events.
type Async struct {
	next  Sink
	queue chan event.Rewrite
	done  chan struct{}
	ctx   context.Context
	stop  context.CancelFunc
	onErr func(event.Rewrite, error)
	keep  bool

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithAsyncErrorHandler is called for every event the inner sink rejects.
func WithAsyncErrorHandler(fn func(event.Rewrite, error)) AsyncOption {
	return func(a *Async) { a.onErr = fn }
}

// WithAsyncKeepOpen leaves the inner sink open on Close, for an inner sink
// shared by several queues.
func WithAsyncKeepOpen() AsyncOption {
	return func(a *Async) { a.keep = true }
}

// NewAsync wraps next with a queue of size events. Default size: 256.
func NewAsync(next Sink, size int, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:  next,
		queue: make(chan event.Rewrite, size),
		done:  make(chan struct{}),
		ctx:   ctx,
		stop:  cancel,
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

// Send enqueues ev. The caller's context is not carried to the inner sink:
// delivery outlives the call.
func (a *Async) Send(_ context.Context, ev event.Rewrite) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, delivers what is queued and closes the
// inner sink unless WithAsyncKeepOpen was given.
func (a *Async) Close() error {
	return a.CloseContext(context.Background())
}

// CloseContext is Close bounded by ctx. Once ctx is done the remaining
// queue is abandoned and the in-flight delivery is cancelled.
func (a *Async) CloseContext(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		a.stop()
		<-a.done
	}
	a.stop()
	if a.keep {
		return nil
	}
	return a.next.Close()
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		if a.ctx.Err() != nil {
			continue
		}
		if err := a.next.Send(a.ctx, ev); err != nil && a.onErr != nil {
			a.onErr(ev, err)
		}
	}
}
