package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/unmark/event"
)

func testEvent() event.Rewrite {
	return event.Rewrite{ID: "rw-1", OldSrc: "a", NewSrc: "b", OldToken: "v2-a", NewToken: "v2-b"}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	var env struct {
		Type string        `json:"type"`
		Data event.Rewrite `json:"data"`
	}
	if err := json.Unmarshal(lines[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "rewrite" || env.Data.NewSrc != "b" {
		t.Errorf("envelope: got %+v", env)
	}
}

func TestRouter_FanOutContinuesOnError(t *testing.T) {
	errBoom := errors.New("boom")
	var got []string
	failing := NewCallback(func(context.Context, event.Rewrite) error { return errBoom })
	ok := NewCallback(func(_ context.Context, ev event.Rewrite) error {
		got = append(got, ev.ID)
		return nil
	})

	r := NewRouter(nil, failing, ok)
	err := r.Send(context.Background(), testEvent())
	if !errors.Is(err, errBoom) {
		t.Errorf("Send: got %v, want %v", err, errBoom)
	}
	if len(got) != 1 || got[0] != "rw-1" {
		t.Errorf("second sink: got %v", got)
	}
}

func TestCallback_Nil(t *testing.T) {
	if err := NewCallback(nil).Send(context.Background(), testEvent()); err != nil {
		t.Errorf("nil callback: got %v", err)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q", ct)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), testEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), testEvent()); err == nil {
		t.Fatal("Send: expected error after retries")
	}
}

func TestAsync_SendDoesNotWaitOnSink(t *testing.T) {
	gate := make(chan struct{})
	var delivered atomic.Int32
	slow := NewCallback(func(context.Context, event.Rewrite) error {
		<-gate
		delivered.Add(1)
		return nil
	})

	a := NewAsync(slow, 2)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := a.Send(context.Background(), testEvent()); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("Send blocked for %v", d)
	}

	close(gate)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if delivered.Load() != 3 {
		t.Errorf("delivered: got %d, want 3", delivered.Load())
	}
	if err := a.Send(context.Background(), testEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close: got %v, want %v", err, ErrClosed)
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := NewCallback(func(context.Context, event.Rewrite) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
		return nil
	})

	a := NewAsync(slow, 1)
	defer func() {
		close(gate)
		a.Close()
	}()

	// First event is taken by the worker, second fills the buffer.
	if err := a.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := a.Send(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(context.Background(), testEvent()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Send on full queue: got %v, want %v", err, ErrQueueFull)
	}
}

func TestAsync_ReportsSinkErrors(t *testing.T) {
	errBoom := errors.New("boom")
	var failed atomic.Int32
	a := NewAsync(NewCallback(func(context.Context, event.Rewrite) error { return errBoom }), 4,
		WithAsyncErrorHandler(func(_ event.Rewrite, err error) {
			if errors.Is(err, errBoom) {
				failed.Add(1)
			}
		}))
	a.Send(context.Background(), testEvent())
	a.Close()
	if failed.Load() != 1 {
		t.Errorf("error handler: got %d calls, want 1", failed.Load())
	}
}

func TestAsync_CloseContextAbandonsQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAsync(NewWebhook(srv.URL, WithWebhookBackoff(time.Hour)), 4)
	a.Send(context.Background(), testEvent())
	a.Send(context.Background(), testEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := a.CloseContext(ctx); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("CloseContext took %v", d)
	}
}

type closeCounter struct {
	Callback
	closed atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closed.Add(1)
	return nil
}

func TestAsync_KeepOpen(t *testing.T) {
	inner := &closeCounter{}
	NewAsync(inner, 1, WithAsyncKeepOpen()).Close()
	if inner.closed.Load() != 0 {
		t.Error("inner sink closed despite WithAsyncKeepOpen")
	}
	NewAsync(inner, 1).Close()
	if inner.closed.Load() != 1 {
		t.Errorf("inner Close: got %d calls, want 1", inner.closed.Load())
	}
}
