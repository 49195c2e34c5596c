package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 221 // yellow
	colorFail   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return render(colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return render(colorMuted, s)
}

// RenderOK returns s in green.
func RenderOK(s string) string {
	return render(colorOK, s)
}

// RenderWarn returns s in yellow.
func RenderWarn(s string) string {
	return render(colorWarn, s)
}

// RenderFail returns s in red.
func RenderFail(s string) string {
	return render(colorFail, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
