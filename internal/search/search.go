package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PolarWolf314/cipherroom/internal/transcript"
)

// Span is a half-open byte range [Start, End) of a match within a text.
type Span struct {
	Start int
	End   int
}

// Blank reports whether query matches everything.
func Blank(query string) bool {
	return strings.TrimSpace(query) == ""
}

// Search returns the records whose label contains query, ignoring case.
// A blank query matches every record. Results keep transcript order.
func Search(records []transcript.Record, query string) []transcript.Ref {
	refs := make([]transcript.Ref, 0, len(records))
	for i, r := range records {
		if Blank(query) || Contains(r.Label(), query) {
			refs = append(refs, transcript.Ref{GroupID: r.GroupID, ID: r.ID, Index: i})
		}
	}
	return refs
}

// Contains reports whether text contains query, ignoring case.
func Contains(text, query string) bool {
	if Blank(query) {
		return true
	}
	for i := 0; i < len(text); {
		if _, ok := matchAt(text, i, query); ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return false
}

// Spans returns every non-overlapping occurrence of query in text, ignoring
// case. A blank query has no occurrences.
func Spans(text, query string) []Span {
	if Blank(query) {
		return nil
	}
	var spans []Span
	for i := 0; i < len(text); {
		if end, ok := matchAt(text, i, query); ok {
			spans = append(spans, Span{Start: i, End: end})
			i = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return spans
}

// matchAt compares query against text starting at byte i, one rune at a time.
// It returns the byte offset just past the match.
func matchAt(text string, i int, query string) (int, bool) {
	j := 0
	for j < len(query) {
		if i >= len(text) {
			return 0, false
		}
		tr, tn := utf8.DecodeRuneInString(text[i:])
		qr, qn := utf8.DecodeRuneInString(query[j:])
		if !foldEqual(tr, qr) {
			return 0, false
		}
		i += tn
		j += qn
	}
	return i, true
}

func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}
