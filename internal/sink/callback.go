package sink

import (
	"context"

	"github.com/hazyhaar/unmark/event"
)

// RewriteFunc is called for each rewrite event.
type RewriteFunc func(ctx context.Context, ev event.Rewrite) error

// Callback delivers events as in-process function calls, for embedding the
// daemon in another binary.
type Callback struct {
	fn RewriteFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn RewriteFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev event.Rewrite) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
