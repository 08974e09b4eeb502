package browser

import (
	"log/slog"
	"testing"
	"time"
)

func TestBlockList_NeverImages(t *testing.T) {
	set := blockList([]string{"Images", "fonts", " media "}, slog.Default())
	if set["images"] {
		t.Error("images in block list")
	}
	if !set["fonts"] || !set["media"] {
		t.Errorf("block list: got %v", set)
	}
	if shouldBlock(map[string]bool{"images": true}, "Image") {
		t.Error("shouldBlock(Image): got true")
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"fonts": true, "stylesheets": true}
	for typ, want := range map[string]bool{
		"Font":       true,
		"Stylesheet": true,
		"Media":      false,
		"Script":     false,
		"Document":   false,
	} {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q): got %v, want %v", typ, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("headful") != ModeHeadful || ParseMode("") != ModeHeadless || ParseMode("x") != ModeHeadless {
		t.Error("ParseMode: unexpected mapping")
	}
	if ModeHeadful.String() != "headful" {
		t.Errorf("String: got %q", ModeHeadful.String())
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.RecycleInterval != 4*time.Hour || m.cfg.XvfbDisplay != ":99" || m.cfg.NavigateTimeout != 30*time.Second {
		t.Errorf("defaults: got %+v", m.cfg)
	}
	if m.Browser() != nil {
		t.Error("Browser before Start: got non-nil")
	}
	m.Close()
	if err := m.Recycle(); err != ErrClosed {
		t.Errorf("Recycle after Close: got %v, want ErrClosed", err)
	}
}

func TestWaitDisplay_Missing(t *testing.T) {
	start := time.Now()
	if waitDisplay(":65431", 100*time.Millisecond) {
		t.Fatal("waitDisplay: got true for a display nobody runs")
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("waitDisplay: returned before the timeout")
	}
}
