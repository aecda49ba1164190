package search

import (
	"html"
	"strings"
	"unicode"

	"github.com/PolarWolf314/cipherroom/internal/ui"
)

// Marker decides how highlighted text is rendered.
type Marker struct {
	// Escape makes plain text safe for the target medium.
	Escape func(string) string
	// Wrap decorates an already escaped match.
	Wrap func(string) string
}

var (
	// HTMLMarker wraps matches in <mark> and escapes HTML special characters.
	HTMLMarker = Marker{
		Escape: html.EscapeString,
		Wrap:   func(s string) string { return "<mark>" + s + "</mark>" },
	}

	// TerminalMarker colors matches and strips control characters, so that
	// decrypted text can never drive the terminal.
	TerminalMarker = Marker{
		Escape: stripControl,
		Wrap:   func(s string) string { return ui.Match.Sprint(s) },
	}
)

// Highlight escapes text and wraps every occurrence of query with m.
// A blank query returns the escaped text unchanged.
func Highlight(text, query string, m Marker) string {
	spans := Spans(text, query)
	if len(spans) == 0 {
		return m.Escape(text)
	}

	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(m.Escape(text[last:s.Start]))
		b.WriteString(m.Wrap(m.Escape(text[s.Start:s.End])))
		last = s.End
	}
	b.WriteString(m.Escape(text[last:]))
	return b.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
