// Package rewrite swaps the watermark-selector token embedded in Zhihu image
// addresses for the watermark-free token the page publishes next to it.
//
// The package works on an abstract element tree (Element, Node, Document) so
// the same logic drives a live browser tab and an in-memory HTML document.
// Every failed precondition is a silent skip: one malformed image never
// affects another.
package rewrite

import (
	"net/url"
	"strings"
)

// Defaults matching the markup served by zhihu.com.
const (
	DefaultHostMarker    = "zhimg.com"
	DefaultTokenAttr     = "data-original-token"
	DefaultSecondaryAttr = "data-original"
	DefaultMarkerAttr    = "data-unwatermarked"
	DefaultMarkerValue   = "true"
)

// Element is the attribute surface of one image element.
type Element interface {
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	// Src returns the current source address ("" when unset).
	Src() string
	SetSrc(addr string) error
}

// Status names the result of one Process call.
type Status string

const (
	Rewritten       Status = "rewritten"
	SkipProcessed   Status = "skip_processed"    // marker already present
	SkipNoToken     Status = "skip_no_token"     // replacement-token attribute missing or empty
	SkipForeignHost Status = "skip_foreign_host" // src empty or not on the image host
	SkipNoEmbedded  Status = "skip_no_embedded"  // no v2 token inside src
	SkipBadToken    Status = "skip_bad_token"    // replacement token malformed
	SkipWriteFailed Status = "skip_write_failed" // host environment refused the write
)

// Outcome describes what Process did to an element.
type Outcome struct {
	Status    Status
	OldSrc    string
	NewSrc    string
	OldToken  string
	NewToken  string
	Secondary bool // secondary attribute rewritten too
}

// Config controls attribute names and host gating.
type Config struct {
	HostMarker    string
	TokenAttr     string
	SecondaryAttr string
	MarkerAttr    string
	MarkerValue   string

	// StrictHost additionally requires the URL host to be HostMarker or a
	// subdomain of it. Off by default: a substring match is enough.
	StrictHost bool

	// Report, if set, is called after every Process with its outcome.
	Report func(el Element, out Outcome)
}

func (c *Config) defaults() {
	if c.HostMarker == "" {
		c.HostMarker = DefaultHostMarker
	}
	if c.TokenAttr == "" {
		c.TokenAttr = DefaultTokenAttr
	}
	if c.SecondaryAttr == "" {
		c.SecondaryAttr = DefaultSecondaryAttr
	}
	if c.MarkerAttr == "" {
		c.MarkerAttr = DefaultMarkerAttr
	}
	if c.MarkerValue == "" {
		c.MarkerValue = DefaultMarkerValue
	}
}

// Rewriter applies the token substitution to image elements.
type Rewriter struct {
	cfg Config
}

// New creates a Rewriter. Zero fields in cfg take the package defaults.
func New(cfg Config) *Rewriter {
	cfg.defaults()
	return &Rewriter{cfg: cfg}
}

// Selector is the CSS selector of qualifying elements.
func (r *Rewriter) Selector() string {
	return "img[" + r.cfg.TokenAttr + "]"
}

// Config returns the effective configuration.
func (r *Rewriter) Config() Config {
	return r.cfg
}

// Process rewrites el once. Calling it again on the same element is a no-op.
func (r *Rewriter) Process(el Element) Outcome {
	out := r.process(el)
	if r.cfg.Report != nil {
		r.cfg.Report(el, out)
	}
	return out
}

func (r *Rewriter) process(el Element) Outcome {
	if _, ok := el.Attr(r.cfg.MarkerAttr); ok {
		return Outcome{Status: SkipProcessed}
	}

	token, _ := el.Attr(r.cfg.TokenAttr)
	if token == "" {
		return Outcome{Status: SkipNoToken}
	}

	src := el.Src()
	if src == "" || !r.onHost(src) {
		return Outcome{Status: SkipForeignHost, OldSrc: src}
	}

	oldTok, ok := ExtractToken(src)
	if !ok {
		return Outcome{Status: SkipNoEmbedded, OldSrc: src}
	}

	if !ValidToken(token) {
		return Outcome{Status: SkipBadToken, OldSrc: src, OldToken: oldTok}
	}

	out := Outcome{OldSrc: src, OldToken: oldTok, NewToken: token}

	newSrc := ReplaceToken(src, oldTok, token)
	if err := el.SetSrc(newSrc); err != nil {
		out.Status = SkipWriteFailed
		return out
	}
	out.NewSrc = newSrc

	if sec, ok := el.Attr(r.cfg.SecondaryAttr); ok && sec != "" && strings.Contains(sec, oldTok) {
		if err := el.SetAttr(r.cfg.SecondaryAttr, ReplaceToken(sec, oldTok, token)); err == nil {
			out.Secondary = true
		}
	}

	// A failed marker write leaves src already rewritten; a later pass finds
	// old == new and changes nothing.
	_ = el.SetAttr(r.cfg.MarkerAttr, r.cfg.MarkerValue)

	out.Status = Rewritten
	return out
}

func (r *Rewriter) onHost(src string) bool {
	if !strings.Contains(src, r.cfg.HostMarker) {
		return false
	}
	if !r.cfg.StrictHost {
		return true
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == r.cfg.HostMarker || strings.HasSuffix(host, "."+r.cfg.HostMarker)
}
