package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TruncateAddr shortens an address for display: 0x1234...abcd.
func TruncateAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// padR pads s with spaces to n visible columns. Styled text is measured
// without its escape codes.
func padR(s string, n int) string {
	w := lipgloss.Width(s)
	if w >= n {
		return s
	}
	return s + strings.Repeat(" ", n-w)
}

// clip shortens s to at most n runes, ending in an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
