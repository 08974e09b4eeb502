package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/unmark/event"
	"github.com/hazyhaar/unmark/internal/browser"
	"github.com/hazyhaar/unmark/internal/sink"
	"github.com/hazyhaar/unmark/rewrite"
)

func TestSession_ReportRouting(t *testing.T) {
	var got []event.Rewrite
	cb := sink.NewCallback(func(_ context.Context, ev event.Rewrite) error {
		got = append(got, ev)
		return nil
	})

	var forwarded int
	s := New(Config{
		Tab:     &browser.Tab{PageURL: "https://www.zhihu.com/question/1", PageID: "q1"},
		Sink:    cb,
		Rewrite: rewrite.Config{Report: func(rewrite.Element, rewrite.Outcome) { forwarded++ }},
		Logger:  slog.Default(),
	})
	s.ctx = context.Background()

	tokA := "v2-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokB := "v2-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	el := rewrite.MapElement{"src": "https://pic1.zhimg.com/" + tokA + ".jpg", rewrite.DefaultTokenAttr: tokB}
	s.rw.Process(el)
	s.rw.Process(el)
	s.Stop()

	if len(got) != 1 {
		t.Fatalf("events: got %d, want 1", len(got))
	}
	ev := got[0]
	if ev.PageID != "q1" || ev.PageURL != "https://www.zhihu.com/question/1" || ev.NewToken != tokB || ev.ID == "" {
		t.Errorf("event: got %+v", ev)
	}
	if forwarded != 2 {
		t.Errorf("forwarded reports: got %d, want 2", forwarded)
	}

	st := s.Stats()
	if st.Rewritten != 1 || st.Skipped != 1 || st.Activations != 0 {
		t.Errorf("Stats: got %+v", st)
	}
}

func TestSession_SinkDownDoesNotBlockRewrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	down := sink.NewRouter(nil, sink.NewWebhook(srv.URL, sink.WithWebhookBackoff(time.Second)))
	s := New(Config{
		Tab:    &browser.Tab{PageURL: "https://www.zhihu.com/", PageID: "p1"},
		Sink:   down,
		Logger: slog.Default(),
	})
	s.ctx = context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		tok := "v2-" + string(rune('a'+i)) + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		el := rewrite.MapElement{
			"src":                    "https://pic1.zhimg.com/" + tok + ".jpg",
			rewrite.DefaultTokenAttr: "v2-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		}
		if out := s.rw.Process(el); out.Status != rewrite.Rewritten {
			t.Fatalf("Process %d: got %q", i, out.Status)
		}
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("three rewrites with the webhook down took %v", d)
	}
	if st := s.Stats(); st.Rewritten != 3 {
		t.Errorf("Rewritten: got %d, want 3", st.Rewritten)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.out.CloseContext(ctx)
}

func TestSession_QueueFullCountsDropped(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	blocked := sink.NewCallback(func(context.Context, event.Rewrite) error {
		<-gate
		return errors.New("late")
	})
	s := New(Config{
		Tab:       &browser.Tab{PageURL: "https://www.zhihu.com/", PageID: "p2"},
		Sink:      blocked,
		QueueSize: 1,
		Logger:    slog.Default(),
	})
	s.ctx = context.Background()

	for i := 0; i < 5; i++ {
		tok := "v2-" + string(rune('a'+i)) + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		s.rw.Process(rewrite.MapElement{
			"src":                    "https://pic1.zhimg.com/" + tok + ".jpg",
			rewrite.DefaultTokenAttr: "v2-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		})
	}
	st := s.Stats()
	if st.Rewritten != 5 {
		t.Errorf("Rewritten: got %d, want 5", st.Rewritten)
	}
	// At most one event in the worker and one in the queue.
	if st.Dropped < 3 {
		t.Errorf("Dropped: got %d, want at least 3", st.Dropped)
	}
}
