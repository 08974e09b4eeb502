package rewrite

import (
	"strings"
	"testing"
)

var (
	tokA = "v2-" + strings.Repeat("a", 32)
	tokB = "v2-" + strings.Repeat("b", 32)
	tokC = "v2-" + strings.Repeat("c", 32)
)

func TestExtractToken(t *testing.T) {
	got, ok := ExtractToken("https://pic1.zhimg.com/" + tokA + "_720w.jpg")
	if !ok || got != tokA {
		t.Errorf("ExtractToken: got %q (%v), want %q", got, ok, tokA)
	}
}

func TestExtractToken_FirstMatchOnly(t *testing.T) {
	got, _ := ExtractToken("https://pic1.zhimg.com/" + tokA + "/" + tokB + ".jpg")
	if got != tokA {
		t.Errorf("ExtractToken: got %q, want first token %q", got, tokA)
	}
}

func TestExtractToken_NotFound(t *testing.T) {
	for _, addr := range []string{
		"",
		"https://pic1.zhimg.com/plain.jpg",
		"https://pic1.zhimg.com/v2-123.jpg",
		"https://pic1.zhimg.com/v2-" + strings.Repeat("A", 32) + ".jpg",
	} {
		if tok, ok := ExtractToken(addr); ok {
			t.Errorf("ExtractToken(%q): got %q, want not found", addr, tok)
		}
	}
}

func TestValidToken(t *testing.T) {
	if !ValidToken(tokB) {
		t.Errorf("ValidToken(%q): got false", tokB)
	}
	for _, s := range []string{
		"",
		"v2-123",
		"v2-" + strings.Repeat("B", 32),
		"v2-" + strings.Repeat("g", 32),
		"v2-" + strings.Repeat("b", 33),
		" " + tokB,
		tokB + "_720w",
		"x" + tokB,
	} {
		if ValidToken(s) {
			t.Errorf("ValidToken(%q): got true, want false", s)
		}
	}
}

func TestReplaceToken(t *testing.T) {
	addr := "https://pic1.zhimg.com/" + tokA + "_" + tokA + ".jpg"
	got := ReplaceToken(addr, tokA, tokB)
	want := "https://pic1.zhimg.com/" + tokB + "_" + tokA + ".jpg"
	if got != want {
		t.Errorf("ReplaceToken: got %q, want %q", got, want)
	}
}

func TestReplaceToken_Unchanged(t *testing.T) {
	addr := "https://pic1.zhimg.com/" + tokA + ".jpg"
	cases := []struct{ addr, old, new string }{
		{"", tokA, tokB},
		{addr, "", tokB},
		{addr, tokA, ""},
		{addr, tokA, tokA},
		{addr, tokC, tokB},
	}
	for _, c := range cases {
		if got := ReplaceToken(c.addr, c.old, c.new); got != c.addr {
			t.Errorf("ReplaceToken(%q, %q, %q): got %q, want input", c.addr, c.old, c.new, got)
		}
	}
}
