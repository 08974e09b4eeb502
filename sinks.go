package unmark

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/unmark/event"
	"github.com/hazyhaar/unmark/internal/sink"
	"github.com/hazyhaar/unmark/internal/store"
)

// Sink is the output interface for rewrite events.
type Sink = sink.Sink

// Store is the SQLite rewrite ledger. It is also a Sink.
type Store = store.Store

// NewStdoutSink creates a stdout JSON-lines sink. Nil writes to os.Stdout.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink calling fn for each rewrite.
func NewCallbackSink(fn func(ctx context.Context, ev event.Rewrite) error) Sink {
	return sink.NewCallback(fn)
}

// OpenStore opens (or creates) the rewrite ledger at path.
func OpenStore(path string) (*Store, error) {
	return store.Open(path)
}

// SinksFromConfig builds the sinks the configuration lists. Unknown types
// are logged and skipped. With no sink configured, events go to stdout.
func SinksFromConfig(cfg *Config, logger *slog.Logger) []Sink {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("unmark: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, NewStdoutSink(nil))
	}
	return sinks
}
