package rewrite

import (
	"regexp"
	"strings"
)

var (
	// embeddedPattern finds a token anywhere inside an image address.
	embeddedPattern = regexp.MustCompile(`v2-[0-9a-f]{32}`)
	// tokenPattern accepts a replacement token only as the whole value.
	tokenPattern = regexp.MustCompile(`^v2-[0-9a-f]{32}$`)
)

// ExtractToken returns the first v2 token embedded in addr.
func ExtractToken(addr string) (string, bool) {
	tok := embeddedPattern.FindString(addr)
	return tok, tok != ""
}

// ValidToken reports whether s is exactly one v2 token and nothing else.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// ReplaceToken swaps the first occurrence of oldTok in addr for newTok.
// Empty inputs and identical tokens return addr unchanged.
func ReplaceToken(addr, oldTok, newTok string) string {
	if addr == "" || oldTok == "" || newTok == "" || oldTok == newTok {
		return addr
	}
	return strings.Replace(addr, oldTok, newTok, 1)
}
