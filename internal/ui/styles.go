// Package ui renders CLI output with optional ANSI colors.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent   = 74  // blue
	colorMuted    = 245 // medium gray
	colorUnlocked = 114 // green
	colorLocked   = 203 // red
	colorWarn     = 179 // amber
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderWarn returns s in the warning (amber) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderLockState returns "unlocked" in green or "locked" in red.
func RenderLockState(unlocked bool) string {
	if unlocked {
		return paint(colorUnlocked, "unlocked")
	}
	return paint(colorLocked, "locked")
}

// RenderBridgeStatus colors a bridge status by outcome.
func RenderBridgeStatus(status string) string {
	switch status {
	case "COMPLETE":
		return paint(colorUnlocked, status)
	case "FAILED":
		return paint(colorLocked, status)
	case "PENDING":
		return paint(colorWarn, status)
	}
	return RenderMuted(status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Init disables color when ShouldUseColor says so.
func Init() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}
