package rewrite

import "sync"

// Node is one node of a live element tree.
type Node interface {
	Loadable
	// IsElement is false for text, comment and other non-element nodes.
	IsElement() bool
	Matches(selector string) bool
	// Descendants returns matching nodes below this one, excluding itself.
	Descendants(selector string) []Node
}

// Record is one insertion observed under the document's content root.
type Record struct {
	Added []Node
}

// Document is an element tree that reports node insertions.
type Document interface {
	QueryAll(selector string) []Node
	// Observe subscribes fn to insertion batches under the content root
	// and returns a function that cancels the subscription.
	Observe(fn func(batch []Record)) (stop func())
}

// Sweep dispatches every qualifying element currently in doc and returns
// how many were dispatched.
func (r *Rewriter) Sweep(doc Document) int {
	nodes := doc.QueryAll(r.Selector())
	for _, n := range nodes {
		r.Dispatch(n)
	}
	return len(nodes)
}

// Watcher feeds qualifying inserted elements to a Rewriter.
type Watcher struct {
	rw  *Rewriter
	doc Document

	mu      sync.Mutex
	stop    func()
	stopped bool
}

// NewWatcher creates a Watcher. Call Start to subscribe.
func NewWatcher(rw *Rewriter, doc Document) *Watcher {
	return &Watcher{rw: rw, doc: doc}
}

// Activate sweeps doc, then starts watching it. The sweep completes before
// the subscription exists.
func Activate(rw *Rewriter, doc Document) *Watcher {
	rw.Sweep(doc)
	w := NewWatcher(rw, doc)
	w.Start()
	return w
}

// Start subscribes to insertions. Starting twice or after Stop does nothing.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil || w.stopped {
		return
	}
	w.stop = w.doc.Observe(w.Handle)
}

// Stop cancels the subscription.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop := w.stop
	w.stop = nil
	w.stopped = true
	w.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Handle processes one batch of insertion records. The inserted node and
// its descendants are checked independently; the processed marker absorbs
// any overlap.
func (w *Watcher) Handle(batch []Record) {
	sel := w.rw.Selector()
	for _, rec := range batch {
		for _, n := range rec.Added {
			if !n.IsElement() {
				continue
			}
			if n.Matches(sel) {
				w.rw.Dispatch(n)
			}
			for _, d := range n.Descendants(sel) {
				w.rw.Dispatch(d)
			}
		}
	}
}
