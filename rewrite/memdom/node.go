package memdom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/unmark/rewrite"
)

// Node wraps an html.Node with load state. It implements rewrite.Node.
type Node struct {
	doc    *Document
	n      *html.Node
	loaded bool
	onLoad []func()
}

var _ rewrite.Node = (*Node)(nil)

// HTML returns the underlying parse node.
func (n *Node) HTML() *html.Node { return n.n }

func (n *Node) IsElement() bool { return n.n.Type == html.ElementNode }

func (n *Node) Matches(selector string) bool {
	return parseSelector(selector).matches(n.n)
}

func (n *Node) Descendants(selector string) []rewrite.Node {
	sel := parseSelector(selector)
	var out []rewrite.Node
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(h *html.Node) {
			if sel.matches(h) {
				out = append(out, n.doc.wrap(h))
			}
		})
	}
	return out
}

func (n *Node) Attr(name string) (string, bool) {
	return lookup(n.n, strings.ToLower(name))
}

func (n *Node) SetAttr(name, value string) error {
	name = strings.ToLower(name)
	for i, a := range n.n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.n.Attr[i].Val = value
			return nil
		}
	}
	n.n.Attr = append(n.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (n *Node) Src() string {
	v, _ := n.Attr("src")
	return v
}

func (n *Node) SetSrc(addr string) error {
	return n.SetAttr("src", addr)
}

func (n *Node) Loaded() bool { return n.loaded }

func (n *Node) OnLoad(fn func()) {
	n.onLoad = append(n.onLoad, fn)
}

// SetLoaded completes loading. Each registered callback runs once.
func (n *Node) SetLoaded() {
	n.loaded = true
	fns := n.onLoad
	n.onLoad = nil
	for _, fn := range fns {
		fn()
	}
}

// AppendChild attaches children under n. When n is inside the body the
// insertion is reported to observers as one record.
func (n *Node) AppendChild(children ...*Node) {
	for _, c := range children {
		if c.n.Parent != nil {
			c.n.Parent.RemoveChild(c.n)
		}
		n.n.AppendChild(c.n)
	}
	if len(children) == 0 || !n.doc.inBody(n.n) {
		return
	}
	added := make([]rewrite.Node, len(children))
	for i, c := range children {
		added[i] = c
	}
	n.doc.record(rewrite.Record{Added: added})
}

// Remove detaches n from its parent. Pending load callbacks stay registered
// and simply never fire unless SetLoaded is called.
func (n *Node) Remove() {
	if n.n.Parent != nil {
		n.n.Parent.RemoveChild(n.n)
	}
}
