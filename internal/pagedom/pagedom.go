// Package pagedom implements rewrite.Document on a live Rod page.
//
// Insertions are collected in the page by a MutationObserver on
// document.body (bridge.js). Image load waits live in the page too: the
// bridge keeps a listener per pending image and forgets it when the image
// is detached. Either kind of news triggers a CDP runtime binding; the Go
// side then drains the queue on the task loop, hands insertions to the
// observer function as rewrite.Records and runs the settled load callbacks.
//
// Element handles are remote objects. Handles not waiting on a load are
// released after each drain and after ReleaseIdle.
package pagedom

import (
	"context"
	_ "embed"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/unmark/rewrite"
)

//go:embed bridge.js
var bridgeJS string

// BindingName is the runtime binding the bridge signals through.
const BindingName = "__unmark_binding"

// Config for creating a Document.
type Config struct {
	Page *rod.Page

	// Post schedules fn on the page's task loop. Observer batches and load
	// callbacks are delivered through it. Nil runs fn inline.
	Post func(fn func())

	Logger *slog.Logger
}

// Document is a Rod page seen as a rewrite.Document.
type Document struct {
	page   *rod.Page
	ctx    context.Context
	post   func(func())
	logger *slog.Logger

	mu      sync.Mutex
	observe func([]rewrite.Record)
	gen     int
	waits   map[int][]loadWait
	idle    []*Node
}

type loadWait struct {
	node *Node
	fn   func()
}

var _ rewrite.Document = (*Document)(nil)

// New wraps a page. The binding is registered once per page and survives
// navigations; signals are handled until ctx is done.
func New(ctx context.Context, cfg Config) *Document {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}

	d := &Document{
		page:   cfg.Page,
		ctx:    ctx,
		post:   cfg.Post,
		logger: cfg.Logger,
		waits:  make(map[int][]loadWait),
	}

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(d.page); err != nil {
		d.logger.Warn("pagedom: addBinding failed (may already exist)", "error", err)
	}
	wait := d.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == BindingName {
			d.post(d.drain)
		}
	})
	go wait()
	return d
}

// QueryAll returns every element currently matching selector.
func (d *Document) QueryAll(selector string) []rewrite.Node {
	els, err := d.page.Context(d.ctx).Elements(selector)
	if err != nil {
		d.logger.Debug("pagedom: query failed", "selector", selector, "error", err)
		return nil
	}
	return d.wrapAll(els)
}

// Observe connects the bridge and delivers insertion batches to fn through
// Post. Calling Observe again replaces the previous subscription.
func (d *Document) Observe(fn func([]rewrite.Record)) func() {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.observe = fn
	d.mu.Unlock()

	d.install()
	if _, err := d.page.Context(d.ctx).Eval(`() => window.__unmark && window.__unmark.connect()`); err != nil {
		d.logger.Warn("pagedom: connect bridge failed", "error", err)
	}

	return func() {
		d.mu.Lock()
		if d.gen == gen {
			d.observe = nil
		}
		d.mu.Unlock()
		if _, err := d.page.Context(d.ctx).Eval(`() => window.__unmark && window.__unmark.disconnect()`); err != nil {
			d.logger.Debug("pagedom: disconnect bridge failed", "error", err)
		}
	}
}

// ReleaseIdle releases every handle handed out since the last release that
// is not waiting on a load.
func (d *Document) ReleaseIdle() {
	d.mu.Lock()
	idle := d.idle
	d.idle = nil
	var free []*Node
	for _, n := range idle {
		if !n.pending {
			free = append(free, n)
		}
	}
	d.mu.Unlock()

	for _, n := range free {
		n.release()
	}
}

// install injects the bridge unless the current document has it. A fresh
// bridge means a new document, so waits from the old one can never settle.
func (d *Document) install() {
	res, err := d.page.Context(d.ctx).Eval(bridgeJS, BindingName)
	if err != nil {
		d.logger.Warn("pagedom: inject bridge failed", "error", err)
		return
	}
	if res.Value.Bool() {
		d.dropWaits()
	}
}

// drain collects queued insertions and settled loads. Runs on the loop.
func (d *Document) drain() {
	if d.ctx.Err() != nil {
		return
	}
	p := d.page.Context(d.ctx)

	res, err := p.Eval(`() => window.__unmark ? window.__unmark.drain() : null`)
	if err != nil {
		d.logger.Debug("pagedom: drain failed", "error", err)
		return
	}
	if res.Value.Nil() {
		return
	}
	sizes := ints(res.Value.Get("sizes"))

	var batch []rewrite.Record
	if total := sum(sizes); total > 0 {
		els, err := p.ElementsByJS(rod.Eval(`() => window.__unmark.last`))
		if err != nil {
			d.logger.Debug("pagedom: resolve drained nodes failed", "error", err)
		} else {
			if len(els) != total {
				d.logger.Debug("pagedom: drained node count mismatch", "want", total, "got", len(els))
			}
			batch = regroup(sizes, d.wrapAll(els))
		}
	}

	d.mu.Lock()
	fn := d.observe
	d.mu.Unlock()
	if fn != nil && len(batch) > 0 {
		fn(batch)
	}

	d.settle(ints(res.Value.Get("loaded")), ints(res.Value.Get("dropped")))
	d.ReleaseIdle()
}

// watchLoad registers el with the bridge, installing it if the document
// does not have it yet.
func (d *Document) watchLoad(n *Node) (int, error) {
	const js = `() => window.__unmark ? window.__unmark.watchLoad(this) : -1`
	res, err := n.el.Eval(js)
	if err != nil {
		return 0, err
	}
	if id := res.Value.Int(); id >= 0 {
		return id, nil
	}
	d.install()
	if res, err = n.el.Eval(js); err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (d *Document) await(id int, n *Node, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n.pending = true
	d.waits[id] = append(d.waits[id], loadWait{node: n, fn: fn})
}

// settle runs the callbacks of loaded ids and forgets dropped ones. Every
// settled handle is released.
func (d *Document) settle(loaded, dropped []int) {
	for _, id := range dropped {
		for _, w := range d.take(id) {
			w.node.release()
		}
	}
	for _, id := range loaded {
		for _, w := range d.take(id) {
			w.fn()
			w.node.release()
		}
	}
}

func (d *Document) take(id int) []loadWait {
	d.mu.Lock()
	defer d.mu.Unlock()
	ws := d.waits[id]
	delete(d.waits, id)
	for _, w := range ws {
		w.node.pending = false
	}
	return ws
}

func (d *Document) dropWaits() {
	d.mu.Lock()
	waits := d.waits
	d.waits = make(map[int][]loadWait)
	for _, ws := range waits {
		for _, w := range ws {
			w.node.pending = false
		}
	}
	d.mu.Unlock()

	for _, ws := range waits {
		for _, w := range ws {
			w.node.release()
		}
	}
}

func (d *Document) wrapAll(els rod.Elements) []rewrite.Node {
	out := make([]rewrite.Node, len(els))
	nodes := make([]*Node, len(els))
	for i, el := range els {
		nodes[i] = &Node{doc: d, el: el}
		out[i] = nodes[i]
	}
	d.track(nodes...)
	return out
}

func (d *Document) track(nodes ...*Node) {
	d.mu.Lock()
	d.idle = append(d.idle, nodes...)
	d.mu.Unlock()
}

// regroup splits the flat drained nodes back into records. A count mismatch
// (nodes gone between drain and resolve) yields a single record.
func regroup(sizes []int, nodes []rewrite.Node) []rewrite.Record {
	if len(nodes) == 0 {
		return nil
	}
	if sum(sizes) != len(nodes) {
		return []rewrite.Record{{Added: nodes}}
	}
	batch := make([]rewrite.Record, 0, len(sizes))
	off := 0
	for _, n := range sizes {
		if n == 0 {
			continue
		}
		batch = append(batch, rewrite.Record{Added: nodes[off : off+n]})
		off += n
	}
	return batch
}

func ints(v gson.JSON) []int {
	var out []int
	for _, x := range v.Arr() {
		out = append(out, x.Int())
	}
	return out
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}
