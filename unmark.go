// Package unmark keeps Zhihu pages showing unwatermarked images.
//
// A Daemon drives Chrome through Rod: each watched page gets a session that
// sweeps the loaded document, watches it for inserted images and swaps the
// watermarked token in every qualifying image source for the clean one the
// page carries in data-original-token. Every rewrite is emitted to sinks
// (stdout, webhook, callback, SQLite ledger).
//
// Offline documents are handled by RewriteHTML without a browser.
package unmark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/unmark/idgen"
	"github.com/hazyhaar/unmark/internal/browser"
	"github.com/hazyhaar/unmark/internal/match"
	"github.com/hazyhaar/unmark/internal/session"
	"github.com/hazyhaar/unmark/internal/sink"
)

// PageStats reports one watched page.
type PageStats = session.Stats

// Daemon is the top-level orchestrator. It owns the browser, one session
// per watched page, and the sink router.
type Daemon struct {
	cfg    *Config
	mgr    *browser.Manager
	sinkR  *sink.Router
	match  *match.Set
	logger *slog.Logger

	// Sessions live as long as ctx, whoever asked for them.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pages    map[string]PageConfig
	sessions map[string]*session.Session
	closed   bool
}

// New creates a Daemon from configuration. Events go to every sink given.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	set, err := match.Compile(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("unmark: %w", err)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             browser.ParseMode(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:      cfg,
		mgr:      mgr,
		sinkR:    sink.NewRouter(logger, sinks...),
		match:    set,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		pages:    make(map[string]PageConfig),
		sessions: make(map[string]*session.Session),
	}, nil
}

// Start launches the browser and watches every configured page. A page that
// fails to open is logged and skipped. Sessions end when ctx is cancelled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if _, err := d.mgr.Start(ctx); err != nil {
		return fmt.Errorf("unmark: start browser: %w", err)
	}

	d.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: d.stopSessions,
		AfterRecycle:  func(*rod.Browser) { d.reconnectSessions() },
	})

	for _, page := range d.cfg.Pages {
		if err := d.WatchPage(ctx, page); err != nil {
			d.logger.Error("unmark: failed to watch page", "url", page.URL, "error", err)
		}
	}
	return nil
}

// WatchPage opens a tab on the page and keeps it rewritten. ctx bounds only
// the opening of the tab; the session itself runs until Unwatch or Stop.
// Watching an ID that is already watched replaces the previous session.
func (d *Daemon) WatchPage(ctx context.Context, page PageConfig) error {
	if page.URL == "" {
		return fmt.Errorf("unmark: page url required")
	}
	if page.ID == "" {
		page.ID = idgen.New()
	}

	s, err := d.openSession(ctx, page)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		s.Stop()
		return fmt.Errorf("unmark: daemon stopped")
	}
	old := d.sessions[page.ID]
	d.sessions[page.ID] = s
	d.pages[page.ID] = page
	d.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	d.logger.Info("unmark: watching page", "url", page.URL, "id", page.ID)
	return nil
}

// Unwatch stops rewriting a page and closes its tab. It reports whether the
// page was watched.
func (d *Daemon) Unwatch(id string) bool {
	d.mu.Lock()
	delete(d.pages, id)
	s, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()

	if !ok {
		return false
	}
	s.Stop()
	return true
}

// Stats returns per-page counters ordered by page ID.
func (d *Daemon) Stats() []PageStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]PageStats, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out
}

// Stop closes every session, the sinks and the browser.
func (d *Daemon) Stop() {
	d.mu.Lock()
	d.closed = true
	sessions := d.sessions
	d.sessions = make(map[string]*session.Session)
	d.mu.Unlock()

	for id, s := range sessions {
		s.Stop()
		d.logger.Info("unmark: stopped session", "id", id)
	}
	d.cancel()

	if err := d.sinkR.Close(); err != nil {
		d.logger.Warn("unmark: close sinks", "error", err)
	}
	d.mgr.Close()
}

// openSession opens the tab and starts its session without holding d.mu:
// navigation can take up to the navigate timeout.
func (d *Daemon) openSession(ctx context.Context, page PageConfig) (*session.Session, error) {
	tab, err := browser.OpenTab(ctx, d.mgr, page.URL, page.ID)
	if err != nil {
		return nil, fmt.Errorf("unmark: open tab: %w", err)
	}

	s := session.New(session.Config{
		Tab:     tab,
		Rewrite: d.cfg.RewriterConfig(),
		Sink:    d.sinkR,
		Match:   d.match,
		Logger:  d.logger,
	})
	if err := s.Start(d.lifetime()); err != nil {
		s.Stop()
		return nil, fmt.Errorf("unmark: start session: %w", err)
	}
	return s, nil
}

func (d *Daemon) lifetime() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

func (d *Daemon) stopSessions() {
	d.mu.Lock()
	sessions := d.sessions
	d.sessions = make(map[string]*session.Session)
	d.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

func (d *Daemon) reconnectSessions() {
	d.mu.Lock()
	pages := make([]PageConfig, 0, len(d.pages))
	for _, p := range d.pages {
		pages = append(pages, p)
	}
	d.mu.Unlock()

	ctx := d.lifetime()
	for _, page := range pages {
		if err := d.WatchPage(ctx, page); err != nil {
			d.logger.Error("unmark: reconnect session failed", "url", page.URL, "error", err)
		}
	}
}
