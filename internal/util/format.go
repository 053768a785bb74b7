package util

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most width display cells, appending an ellipsis
// when anything was cut. Width is measured in terminal cells, not bytes.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// FirstLine returns the first line of s.
func FirstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// FormatClock renders a timestamp as a short wall-clock label.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}
