package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout output should carry ANSI colors.
func ShouldUseColor() bool {
	return colorEnabled(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

// colorEnabled applies NO_COLOR (https://no-color.org), then CLICOLOR_FORCE=1,
// then CLICOLOR=0, and otherwise follows whether the output is a terminal.
func colorEnabled(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return tty
}

// IsInteractive reports whether stdin is a terminal an operator can answer
// confirmation prompts on.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
