// Package urlcheck guards the inputs that steer the browser: page URLs and
// page IDs accepted from the HTTP API.
package urlcheck

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrScheme is returned for URLs that are not http or https.
	ErrScheme = errors.New("urlcheck: only http and https URLs are allowed")
	// ErrPrivate is returned for URLs that reach a loopback, link-local or
	// private address.
	ErrPrivate = errors.New("urlcheck: URL targets a private or loopback address")
)

// Page checks a URL before a tab is opened on it. Hostnames are resolved;
// a DNS failure is let through since navigation will fail on its own.
func Page(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("urlcheck: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("urlcheck: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if private(ip) {
			return ErrPrivate
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrPrivate
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && private(ip) {
			return ErrPrivate
		}
	}
	return nil
}

// PageID rejects IDs unfit for a URL path segment.
func PageID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > 128 {
		return fmt.Errorf("urlcheck: page id too long (max 128)")
	}
	for _, r := range id {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("urlcheck: invalid character %q in page id", r)
		}
	}
	return nil
}

func private(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
