// Package match decides which page URLs the rewriter runs on, using
// userscript-style @match patterns such as "*://*.zhihu.com/*".
//
// A pattern is split into scheme, host and path, and each part is matched
// against the same part of the parsed URL, so a host pattern never matches
// text in a path or query.
package match

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns covers every Zhihu subdomain.
var DefaultPatterns = []string{"*://*.zhihu.com/*"}

// Set is a compiled list of patterns. A URL matches if any pattern does.
type Set struct {
	patterns []string
	rules    []rule
}

type rule struct {
	scheme string // "" matches http and https
	hosts  []glob.Glob
	path   glob.Glob
}

// Compile builds a Set. A "*." host prefix also matches the bare domain,
// as in userscript managers. An empty list matches every URL.
func Compile(patterns []string) (*Set, error) {
	s := &Set{patterns: patterns}
	for _, p := range patterns {
		r, err := compileRule(p)
		if err != nil {
			return nil, fmt.Errorf("match: compile %q: %w", p, err)
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

func compileRule(p string) (rule, error) {
	if p == "<all_urls>" {
		p = "*://*/*"
	}
	scheme, rest, ok := strings.Cut(p, "://")
	if !ok {
		return rule{}, fmt.Errorf("missing scheme separator")
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok || host == "" {
		return rule{}, fmt.Errorf("missing host or path")
	}

	var r rule
	switch scheme {
	case "*":
	case "http", "https":
		r.scheme = scheme
	default:
		return rule{}, fmt.Errorf("unsupported scheme %q", scheme)
	}

	hosts := []string{strings.ToLower(host)}
	switch {
	case host == "*":
		hosts = []string{"**"}
	case strings.HasPrefix(host, "*."):
		hosts = []string{hosts[0][2:], "**." + hosts[0][2:]}
	}
	for _, h := range hosts {
		g, err := glob.Compile(h, '.')
		if err != nil {
			return rule{}, err
		}
		r.hosts = append(r.hosts, g)
	}

	g, err := glob.Compile("/" + path)
	if err != nil {
		return rule{}, err
	}
	r.path = g
	return r, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(patterns []string) *Set {
	s, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return s
}

// Match reports whether raw is covered by the set. Unparseable URLs never
// match a non-empty set.
func (s *Set) Match(raw string) bool {
	if s == nil || len(s.rules) == 0 {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	for _, r := range s.rules {
		if r.match(u.Scheme, host, path) {
			return true
		}
	}
	return false
}

func (r rule) match(scheme, host, path string) bool {
	if r.scheme != "" && r.scheme != scheme {
		return false
	}
	if !r.path.Match(path) {
		return false
	}
	for _, g := range r.hosts {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (s *Set) Patterns() []string {
	return s.patterns
}
