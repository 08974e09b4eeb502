// Package memdom is an in-memory rewrite.Document built on golang.org/x/net/html.
//
// It backs offline rewriting of saved pages and lets the rewriting logic be
// exercised without a browser. Insertions made through AppendChild notify
// observers synchronously; image loads complete when SetLoaded is called.
package memdom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/unmark/rewrite"
)

// Document is a parsed HTML document.
type Document struct {
	root  *html.Node
	body  *html.Node
	nodes map[*html.Node]*Node

	observers map[int]func([]rewrite.Record)
	nextObs   int

	batching bool
	pending  []rewrite.Record
}

// Parse reads an HTML document. Every element of a parsed document counts
// as loaded: a static page has nothing left to fetch.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	d := &Document{
		root:      root,
		nodes:     make(map[*html.Node]*Node),
		observers: make(map[int]func([]rewrite.Record)),
	}
	d.body = findFirst(root, atom.Body)
	if d.body == nil {
		d.body = root
	}
	walk(root, func(n *html.Node) {
		d.wrap(n).loaded = true
	})
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Body returns the content root insertions are observed under.
func (d *Document) Body() *Node {
	return d.wrap(d.body)
}

// Fragment parses markup in body context into detached nodes. The nodes are
// not loaded until SetLoaded is called on them.
func (d *Document) Fragment(markup string) ([]*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse fragment: %w", err)
	}
	out := make([]*Node, 0, len(parsed))
	for _, n := range parsed {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

// QueryAll returns every element under the document root matching selector.
func (d *Document) QueryAll(selector string) []rewrite.Node {
	sel := parseSelector(selector)
	var out []rewrite.Node
	walk(d.root, func(n *html.Node) {
		if sel.matches(n) {
			out = append(out, d.wrap(n))
		}
	})
	return out
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) *Node {
	sel := parseSelector(selector)
	var found *html.Node
	walk(d.root, func(n *html.Node) {
		if found == nil && sel.matches(n) {
			found = n
		}
	})
	if found == nil {
		return nil
	}
	return d.wrap(found)
}

// Observe subscribes fn to insertion batches.
func (d *Document) Observe(fn func([]rewrite.Record)) func() {
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

// Batch runs fn and delivers every insertion it makes as a single batch.
func (d *Document) Batch(fn func()) {
	d.batching = true
	fn()
	d.batching = false
	recs := d.pending
	d.pending = nil
	d.notify(recs)
}

// LoadAll marks every element loaded, firing pending load callbacks.
func (d *Document) LoadAll() {
	walk(d.root, func(n *html.Node) {
		d.wrap(n).SetLoaded()
	})
}

// Render serialises the document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, or "" on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) record(rec rewrite.Record) {
	if d.batching {
		d.pending = append(d.pending, rec)
		return
	}
	d.notify([]rewrite.Record{rec})
}

func (d *Document) notify(recs []rewrite.Record) {
	if len(recs) == 0 {
		return
	}
	for _, fn := range d.observers {
		fn(recs)
	}
}

// inBody reports whether n is attached under the observed content root.
func (d *Document) inBody(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.body {
			return true
		}
	}
	return false
}

func (d *Document) wrap(n *html.Node) *Node {
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &Node{doc: d, n: n}
	d.nodes[n] = w
	return w
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.DataAtom == a {
			found = n
		}
	})
	return found
}
