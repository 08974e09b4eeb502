// Package session keeps one browser tab rewritten: it sweeps the page once
// loaded, watches it for insertions and re-activates after every document
// load. All rewriting for a page runs on that page's task loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/unmark/event"
	"github.com/hazyhaar/unmark/idgen"
	"github.com/hazyhaar/unmark/internal/browser"
	"github.com/hazyhaar/unmark/internal/match"
	"github.com/hazyhaar/unmark/internal/pagedom"
	"github.com/hazyhaar/unmark/internal/sink"
	"github.com/hazyhaar/unmark/rewrite"
)

// Config for creating a Session.
type Config struct {
	Tab     *browser.Tab
	Rewrite rewrite.Config
	// Sink receives rewrite events off the task loop, through a per-session
	// queue. It may be shared between sessions and is not closed by Stop.
	Sink sink.Sink
	// QueueSize bounds the per-session event queue. Default: 256.
	QueueSize int
	// Match gates activation on the page URL. Nil matches everything.
	Match  *match.Set
	Logger *slog.Logger
}

// Stats is a point-in-time view of a session's counters.
type Stats struct {
	PageID      string `json:"page_id"`
	URL         string `json:"url"`
	Activations int64  `json:"activations"`
	Rewritten   int64  `json:"rewritten"`
	Skipped     int64  `json:"skipped"`
	Dropped     int64  `json:"dropped"`
}

// sinkDrainTimeout bounds how long Stop waits for queued events.
const sinkDrainTimeout = 5 * time.Second

// Session binds a tab to a rewriter and a watcher.
type Session struct {
	cfg    Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	loop *Loop
	rw   *rewrite.Rewriter
	doc  *pagedom.Document
	out  *sink.Async

	// Owned by the loop.
	watcher *rewrite.Watcher

	mu  sync.RWMutex
	url string

	activations atomic.Int64
	rewritten   atomic.Int64
	skipped     atomic.Int64
	dropped     atomic.Int64
}

// New creates a Session. Call Start to activate it.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("page_id", cfg.Tab.PageID),
		url:    cfg.Tab.PageURL,
	}

	rcfg := cfg.Rewrite
	next := rcfg.Report
	rcfg.Report = func(el rewrite.Element, out rewrite.Outcome) {
		s.report(out)
		if next != nil {
			next(el, out)
		}
	}
	s.rw = rewrite.New(rcfg)

	if cfg.Sink != nil {
		s.out = sink.NewAsync(cfg.Sink, cfg.QueueSize,
			sink.WithAsyncKeepOpen(),
			sink.WithAsyncErrorHandler(func(ev event.Rewrite, err error) {
				s.logger.Error("session: send rewrite failed", "id", ev.ID, "error", err)
			}))
	}
	return s
}

// Start runs the task loop, activates the current document and re-activates
// on every subsequent load event. It returns once the first activation is
// done. ctx bounds the whole session, not just the call.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loop = NewLoop(s.ctx, 0)
	go s.loop.Run()

	page := s.cfg.Tab.Page
	s.doc = pagedom.New(s.ctx, pagedom.Config{
		Page:   page,
		Post:   func(fn func()) { s.loop.Post(fn) },
		Logger: s.logger,
	})

	if err := (proto.PageEnable{}).Call(page); err != nil {
		s.logger.Warn("session: page enable failed", "error", err)
	}
	wait := page.Context(s.ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		s.loop.Post(s.activate)
	})
	go wait()

	if err := s.loop.Do(s.activate); err != nil {
		s.cancel()
		return fmt.Errorf("session: activate: %w", err)
	}
	return nil
}

// Stop detaches the watcher, ends the task loop and closes the tab.
// Queued events get a bounded chance to reach the sink.
func (s *Session) Stop() {
	if s.cancel != nil {
		// Best effort: the loop may already be gone.
		_ = s.loop.Do(s.deactivate)
		s.cancel()
		if err := s.cfg.Tab.Close(); err != nil {
			s.logger.Debug("session: close tab", "error", err)
		}
	}
	if s.out != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkDrainTimeout)
		defer cancel()
		_ = s.out.CloseContext(ctx)
	}
}

// Tab returns the session's tab.
func (s *Session) Tab() *browser.Tab { return s.cfg.Tab }

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		PageID:      s.cfg.Tab.PageID,
		URL:         s.currentURL(),
		Activations: s.activations.Load(),
		Rewritten:   s.rewritten.Load(),
		Skipped:     s.skipped.Load(),
		Dropped:     s.dropped.Load(),
	}
}

// activate sweeps the document and starts a fresh watcher. Runs on the loop.
func (s *Session) activate() {
	s.deactivate()

	url := s.cfg.Tab.CurrentURL(s.ctx)
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()

	if s.cfg.Match != nil && !s.cfg.Match.Match(url) {
		s.logger.Info("session: url not matched, not rewriting", "url", url)
		return
	}

	n := s.rw.Sweep(s.doc)
	s.doc.ReleaseIdle()
	s.watcher = rewrite.NewWatcher(s.rw, s.doc)
	s.watcher.Start()
	s.activations.Add(1)

	s.logger.Info("session: activated", "url", url, "swept", n)
}

func (s *Session) deactivate() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

func (s *Session) report(out rewrite.Outcome) {
	if out.Status != rewrite.Rewritten {
		s.skipped.Add(1)
		s.logger.Debug("session: skipped", "status", out.Status, "src", out.OldSrc)
		return
	}
	s.rewritten.Add(1)

	if s.out == nil {
		return
	}
	ev := event.FromOutcome(idgen.New(), s.cfg.Tab.PageID, s.currentURL(), out)
	if err := s.out.Send(s.ctx, ev); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("session: rewrite event dropped", "id", ev.ID, "error", err)
	}
}

func (s *Session) currentURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}
