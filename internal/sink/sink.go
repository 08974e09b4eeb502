// Package sink delivers rewrite events to output backends.
package sink

import (
	"context"

	"github.com/hazyhaar/unmark/event"
)

// Sink is the output interface. Implementations deliver rewrite events to
// stdout, a webhook, an in-process callback or the SQLite ledger.
type Sink interface {
	Send(ctx context.Context, ev event.Rewrite) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
