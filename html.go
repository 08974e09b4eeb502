package unmark

import (
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/unmark/rewrite"
	"github.com/hazyhaar/unmark/rewrite/memdom"
)

// RewriteHTML rewrites a saved HTML document: every qualifying image is
// treated as loaded and processed once. It returns the number of rewritten
// images. cfg.Report, if set, still sees every outcome.
func RewriteHTML(r io.Reader, w io.Writer, cfg rewrite.Config) (int, error) {
	doc, err := memdom.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("unmark: parse html: %w", err)
	}

	n := 0
	next := cfg.Report
	cfg.Report = func(el rewrite.Element, out rewrite.Outcome) {
		if out.Status == rewrite.Rewritten {
			n++
		}
		if next != nil {
			next(el, out)
		}
	}
	rewrite.New(cfg).Sweep(doc)

	if err := doc.Render(w); err != nil {
		return n, fmt.Errorf("unmark: render html: %w", err)
	}
	return n, nil
}

// RewriteHTMLString is RewriteHTML on strings.
func RewriteHTMLString(s string, cfg rewrite.Config) (string, int, error) {
	var b strings.Builder
	n, err := RewriteHTML(strings.NewReader(s), &b, cfg)
	if err != nil {
		return "", n, err
	}
	return b.String(), n, nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// RenderMarkdown converts (rewritten) HTML to Markdown. Relative links and
// image sources resolve against baseURL when it is set.
func RenderMarkdown(html, baseURL string) (string, error) {
	var (
		md  string
		err error
	)
	if baseURL != "" {
		md, err = mdConverter.ConvertString(html, converter.WithDomain(baseURL))
	} else {
		md, err = mdConverter.ConvertString(html)
	}
	if err != nil {
		return "", fmt.Errorf("unmark: markdown: %w", err)
	}
	return md, nil
}

// Sanitize strips scripts and unsafe markup with the UGC policy, keeping the
// image attributes the rewriter reads and writes.
func Sanitize(html string, cfg rewrite.Config) string {
	rcfg := rewrite.New(cfg).Config()
	p := bluemonday.UGCPolicy()
	p.AllowAttrs(rcfg.TokenAttr, rcfg.SecondaryAttr, rcfg.MarkerAttr).OnElements("img")
	return p.Sanitize(html)
}
