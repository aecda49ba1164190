package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Formatter applies semantic formatting to text.
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

// Sprint formats the arguments and returns the resulting string.
func (f Formatter) Sprint(a ...interface{}) string {
	text := fmt.Sprint(a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

// Sprintf is Sprint with a format string.
func (f Formatter) Sprintf(format string, a ...interface{}) string {
	return f.Sprint(fmt.Sprintf(format, a...))
}

// EnsureNewline ensures the string ends with a newline character.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// noColor returns true if color output should be disabled.
func noColor() bool {
	// Check NO_COLOR environment variable (https://no-color.org/).
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	// Also respect fatih/color's detection (terminal capability, TERM=dumb, etc.).
	return color.NoColor
}

// Semantic formatters for cipherroom output. Each has a plain-text fallback
// decoration so meaning survives when color is off.
var (
	// Code marks commands the user can run next, and invite codes.
	// `backticks` without color.
	Code = Formatter{color.New(color.FgYellow), "`", "`"}

	// Path marks config, audit and download paths.
	Path = Formatter{color.New(color.FgYellow), "", ""}

	// Flag marks CLI flags and environment variable names.
	Flag = Formatter{color.New(color.FgYellow), "", ""}

	// Success marks the ✓ of a completed operation.
	Success = Formatter{color.New(color.FgGreen), "", ""}

	// Error marks the ✗ of a failed operation.
	Error = Formatter{color.New(color.FgRed), "", ""}

	Warning = Formatter{color.New(color.FgYellow), "", ""}

	// Info marks the → of a follow-up hint.
	Info = Formatter{color.New(color.FgCyan), "", ""}

	// Highlight marks group names, display names and peer sender refs.
	// 'single quotes' without color.
	Highlight = Formatter{color.New(color.FgCyan), "'", "'"}

	// Muted marks timestamps, ids and sizes.
	// (parentheses) without color.
	Muted = Formatter{color.New(color.FgHiBlack), "(", ")"}

	// Match marks search hits inside message text.
	// Black on yellow with color, [square brackets] without.
	Match = Formatter{color.New(color.FgBlack, color.BgYellow), "[", "]"}

	// Self labels the local user's own messages.
	// Green with color, unchanged without.
	Self = Formatter{color.New(color.FgGreen, color.Bold), "", ""}

	// Pending marks records the relay has not confirmed yet.
	// Gray with color, (parentheses) without.
	Pending = Formatter{color.New(color.FgHiBlack, color.Italic), "(", ")"}
)
