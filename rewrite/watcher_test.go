package rewrite_test

import (
	"strings"
	"testing"

	"github.com/hazyhaar/unmark/rewrite"
	"github.com/hazyhaar/unmark/rewrite/memdom"
)

var (
	tokA = "v2-" + strings.Repeat("a", 32)
	tokB = "v2-" + strings.Repeat("b", 32)
	tokC = "v2-" + strings.Repeat("c", 32)
	tokD = "v2-" + strings.Repeat("d", 32)
)

func img(old, repl string) string {
	return `<img src="https://pic1.zhimg.com/` + old + `_720w.jpg" data-original-token="` + repl + `">`
}

// countingRewriter counts successful rewrites per element.
func countingRewriter() (*rewrite.Rewriter, map[rewrite.Element]int) {
	counts := make(map[rewrite.Element]int)
	rw := rewrite.New(rewrite.Config{Report: func(el rewrite.Element, out rewrite.Outcome) {
		if out.Status == rewrite.Rewritten {
			counts[el]++
		}
	}})
	return rw, counts
}

func TestSweep_LoadedAndPending(t *testing.T) {
	doc, err := memdom.ParseString(`<html><body>` + img(tokA, tokB) + `<p>` + img(tokC, tokD) + `</p><img src="x.png"></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rw, counts := countingRewriter()

	if n := rw.Sweep(doc); n != 2 {
		t.Fatalf("Sweep: got %d dispatched, want 2", n)
	}
	if len(counts) != 2 {
		t.Errorf("rewritten: got %d, want 2", len(counts))
	}
	if !strings.Contains(doc.String(), tokB+"_720w.jpg") || !strings.Contains(doc.String(), tokD+"_720w.jpg") {
		t.Errorf("document not rewritten: %s", doc.String())
	}
}

func TestWatcher_DynamicInsertion(t *testing.T) {
	doc, err := memdom.ParseString(`<html><body><div id="feed"></div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rw, counts := countingRewriter()
	w := rewrite.Activate(rw, doc)
	defer w.Stop()

	// The inserted node is itself a qualifying image and is also reachable
	// from the wrapper's descendant scan.
	nodes, err := doc.Fragment(`<div class="answer">` + img(tokA, tokB) + img(tokC, tokD) + `</div>`)
	if err != nil {
		t.Fatal(err)
	}
	wrapper := nodes[0]
	imgs := wrapper.Descendants("img[data-original-token]")
	if len(imgs) != 2 {
		t.Fatalf("fragment images: got %d, want 2", len(imgs))
	}
	loose, err := doc.Fragment(img(tokB, tokC))
	if err != nil {
		t.Fatal(err)
	}
	self := loose[0]
	self.SetLoaded()

	feed := doc.First("div#feed")
	doc.Batch(func() {
		feed.AppendChild(wrapper)
		feed.AppendChild(self)
		wrapper.AppendChild(self) // moved under wrapper: reached again by descendant scans
	})

	if counts[self] != 1 {
		t.Errorf("loaded image: got %d rewrites, want 1", counts[self])
	}
	for _, n := range imgs {
		if counts[n] != 0 {
			t.Errorf("pending image rewritten before load")
		}
	}

	for _, n := range imgs {
		n.(*memdom.Node).SetLoaded()
	}

	for i, n := range append(imgs, rewrite.Node(self)) {
		if counts[n] != 1 {
			t.Errorf("image %d: got %d rewrites, want 1", i, counts[n])
		}
		if v, _ := n.Attr(rewrite.DefaultMarkerAttr); v != "true" {
			t.Errorf("image %d: marker %q", i, v)
		}
	}

	wantSrc := []string{tokB, tokD, tokC}
	for i, n := range append(imgs, rewrite.Node(self)) {
		if !strings.Contains(n.Src(), wantSrc[i]+"_720w.jpg") {
			t.Errorf("image %d: src %q, want token %s", i, n.Src(), wantSrc[i])
		}
	}
}

func TestWatcher_IgnoresTextAndNonQualifying(t *testing.T) {
	doc, err := memdom.ParseString(`<html><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rw, counts := countingRewriter()
	w := rewrite.Activate(rw, doc)
	defer w.Stop()

	nodes, err := doc.Fragment(`hello <img src="https://pic1.zhimg.com/` + tokA + `.jpg">`)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		n.SetLoaded()
	}
	doc.Body().AppendChild(nodes...)

	if len(counts) != 0 {
		t.Errorf("rewritten: got %d, want 0", len(counts))
	}
	if _, ok := nodes[1].Attr(rewrite.DefaultMarkerAttr); ok {
		t.Error("marker set on image without replacement token")
	}
}

func TestWatcher_Stop(t *testing.T) {
	doc, err := memdom.ParseString(`<html><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rw, counts := countingRewriter()
	w := rewrite.Activate(rw, doc)
	w.Stop()

	nodes, err := doc.Fragment(img(tokA, tokB))
	if err != nil {
		t.Fatal(err)
	}
	nodes[0].SetLoaded()
	doc.Body().AppendChild(nodes...)

	if len(counts) != 0 {
		t.Errorf("rewritten after Stop: got %d, want 0", len(counts))
	}
}

func TestDispatch_PendingFiresOnce(t *testing.T) {
	doc, err := memdom.ParseString(`<html><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rw, counts := countingRewriter()

	nodes, err := doc.Fragment(img(tokA, tokB))
	if err != nil {
		t.Fatal(err)
	}
	n := nodes[0]
	rw.Dispatch(n)
	rw.Dispatch(n)
	if counts[n] != 0 {
		t.Fatalf("rewritten before load")
	}
	n.SetLoaded()
	n.SetLoaded()
	if counts[n] != 1 {
		t.Errorf("rewrites: got %d, want 1", counts[n])
	}
}
