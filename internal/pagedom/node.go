package pagedom

import (
	"github.com/go-rod/rod"

	"github.com/hazyhaar/unmark/rewrite"
)

// Node is an element handle. Browser round trips can fail at any time (the
// node may be gone); failures read as absent and are logged at debug.
type Node struct {
	doc *Document
	el  *rod.Element

	pending  bool // guarded by doc.mu
	released bool
}

var _ rewrite.Node = (*Node)(nil)

// Element returns the Rod handle.
func (n *Node) Element() *rod.Element { return n.el }

// IsElement is always true: the bridge only queues element nodes.
func (n *Node) IsElement() bool { return true }

func (n *Node) Matches(selector string) bool {
	ok, err := n.el.Matches(selector)
	if err != nil {
		n.doc.logger.Debug("pagedom: matches failed", "selector", selector, "error", err)
		return false
	}
	return ok
}

func (n *Node) Descendants(selector string) []rewrite.Node {
	els, err := n.el.Elements(selector)
	if err != nil {
		n.doc.logger.Debug("pagedom: descendants failed", "selector", selector, "error", err)
		return nil
	}
	return n.doc.wrapAll(els)
}

func (n *Node) Attr(name string) (string, bool) {
	v, err := n.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (n *Node) SetAttr(name, value string) error {
	_, err := n.el.Eval(`(name, value) => this.setAttribute(name, value)`, name, value)
	return err
}

// Src reads the resolved src property, not the raw attribute.
func (n *Node) Src() string {
	v, err := n.el.Property("src")
	if err != nil {
		return ""
	}
	return v.Str()
}

func (n *Node) SetSrc(addr string) error {
	_, err := n.el.Eval(`(addr) => { this.src = addr }`, addr)
	return err
}

func (n *Node) Loaded() bool {
	v, err := n.el.Property("complete")
	if err != nil {
		return false
	}
	return v.Bool()
}

// OnLoad asks the bridge to report the image once it loads or fails and
// runs fn on the task loop when a drain sees it. If the element is detached
// first, fn never runs and the handle is released.
func (n *Node) OnLoad(fn func()) {
	id, err := n.doc.watchLoad(n)
	if err != nil {
		n.doc.logger.Debug("pagedom: watch load failed", "error", err)
		return
	}
	n.doc.await(id, n, fn)
}

func (n *Node) release() {
	if n.released {
		return
	}
	n.released = true
	if n.el == nil {
		return
	}
	if err := n.el.Release(); err != nil {
		n.doc.logger.Debug("pagedom: release handle", "error", err)
	}
}
