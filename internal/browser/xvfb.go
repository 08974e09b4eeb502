package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// xvfbScreen is large enough for Zhihu's desktop layout, so lazy images in
// the first viewport start loading without scrolling.
const xvfbScreen = "1920x1080x24"

// startXvfb runs a virtual display for headful tabs and waits until its
// socket appears.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", xvfbScreen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: start xvfb on %s: %w", display, err)
	}
	m.xvfb = cmd

	if !waitDisplay(display, 2*time.Second) {
		m.cfg.Logger.Warn("browser: xvfb socket not seen, continuing", "display", display)
	}
	m.cfg.Logger.Info("browser: xvfb running", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// waitDisplay polls for the X socket of display (":99" → /tmp/.X11-unix/X99).
func waitDisplay(display string, timeout time.Duration) bool {
	sock := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sock); err == nil {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		_ = p.Kill()
		_ = m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}
