// Package server exposes the rewriter over HTTP (chi) and MCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/unmark"
	"github.com/hazyhaar/unmark/event"
	"github.com/hazyhaar/unmark/rewrite"
)

// ErrNoLedger is returned by history queries when no store is configured.
var ErrNoLedger = errors.New("server: rewrite ledger not configured")

// ErrNoDaemon is returned by page operations when no browser daemon runs.
var ErrNoDaemon = errors.New("server: browser daemon not running")

// Ledger is the rewrite history. *unmark.Store implements it.
type Ledger interface {
	Recent(ctx context.Context, limit int) ([]event.Rewrite, error)
}

// Pages controls watched pages. *unmark.Daemon implements it.
type Pages interface {
	WatchPage(ctx context.Context, page unmark.PageConfig) error
	Unwatch(id string) bool
	Stats() []unmark.PageStats
}

// Config for creating a Server. Ledger and Pages are optional.
type Config struct {
	Rewrite rewrite.Config
	Ledger  Ledger
	Pages   Pages
	// MaxBody bounds request bodies. Default: 8 MiB.
	MaxBody int64
	Logger  *slog.Logger
}

// Server holds the operations shared by the HTTP and MCP surfaces.
type Server struct {
	cfg    Config
	rw     *rewrite.Rewriter
	logger *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 8 << 20
	}
	return &Server{cfg: cfg, rw: rewrite.New(cfg.Rewrite), logger: cfg.Logger}
}

type rewriteURLReq struct {
	Src       string `json:"src"`
	Token     string `json:"token"`
	Secondary string `json:"secondary,omitempty"`
}

type rewriteURLResp struct {
	Status    rewrite.Status `json:"status"`
	Src       string         `json:"src"`
	Secondary string         `json:"secondary,omitempty"`
	OldToken  string         `json:"old_token,omitempty"`
	NewToken  string         `json:"new_token,omitempty"`
}

// rewriteURL runs one detached element through the rewriter.
func (s *Server) rewriteURL(req *rewriteURLReq) (*rewriteURLResp, error) {
	if req.Src == "" {
		return nil, fmt.Errorf("src is required")
	}
	cfg := s.rw.Config()
	el := rewrite.MapElement{"src": req.Src}
	if req.Token != "" {
		el[cfg.TokenAttr] = req.Token
	}
	if req.Secondary != "" {
		el[cfg.SecondaryAttr] = req.Secondary
	}

	out := s.rw.Process(el)
	return &rewriteURLResp{
		Status:    out.Status,
		Src:       el.Src(),
		Secondary: el[cfg.SecondaryAttr],
		OldToken:  out.OldToken,
		NewToken:  out.NewToken,
	}, nil
}

type rewriteHTMLReq struct {
	HTML     string `json:"html"`
	Format   string `json:"format,omitempty"` // html | markdown
	Sanitize bool   `json:"sanitize,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

type rewriteHTMLResp struct {
	Format    string `json:"format"`
	Content   string `json:"content"`
	Rewritten int    `json:"rewritten"`
}

// rewriteHTML sanitises (optionally), rewrites and renders a document.
func (s *Server) rewriteHTML(req *rewriteHTMLReq) (*rewriteHTMLResp, error) {
	format := strings.ToLower(req.Format)
	if format == "" {
		format = "html"
	}
	if format != "html" && format != "markdown" {
		return nil, fmt.Errorf("unknown format %q", req.Format)
	}

	doc := req.HTML
	if req.Sanitize {
		doc = unmark.Sanitize(doc, s.cfg.Rewrite)
	}
	out, n, err := unmark.RewriteHTMLString(doc, s.cfg.Rewrite)
	if err != nil {
		return nil, err
	}
	if format == "markdown" {
		if out, err = unmark.RenderMarkdown(out, req.BaseURL); err != nil {
			return nil, err
		}
	}
	return &rewriteHTMLResp{Format: format, Content: out, Rewritten: n}, nil
}

func (s *Server) recent(ctx context.Context, limit int) ([]event.Rewrite, error) {
	if s.cfg.Ledger == nil {
		return nil, ErrNoLedger
	}
	return s.cfg.Ledger.Recent(ctx, limit)
}
