package session

import "context"

// Loop runs posted tasks one at a time on a single goroutine. Every task
// runs to completion before the next starts, so tasks never observe each
// other half-done.
type Loop struct {
	ctx   context.Context
	tasks chan func()
}

// NewLoop creates a loop bound to ctx. size is the task buffer.
func NewLoop(ctx context.Context, size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{ctx: ctx, tasks: make(chan func(), size)}
}

// Run executes tasks until the context is cancelled.
func (l *Loop) Run() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn. It reports false when the loop is shut down. Never call
// Post with a full buffer from inside a task.
func (l *Loop) Post(fn func()) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Do queues fn and waits for it to finish. Must not be called from a task.
func (l *Loop) Do(fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() { fn(); close(done) }) {
		return l.ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.ctx.Done():
		return l.ctx.Err()
	}
}
