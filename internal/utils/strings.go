package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/ui"
)

// FormatList formats a slice of values into an indented bullet list.
func FormatList(items []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("    - ")
		b.WriteString(ui.Highlight.Sprint(item))
		b.WriteString("\n")
	}
	return b.String()
}

// IsValidGroupName checks that a group name is non-blank and fits on one line.
func IsValidGroupName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 80 {
		return false
	}
	return !strings.ContainsAny(name, "\r\n")
}

// FormatBytes renders a byte count in binary units, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatTimestamp renders a millisecond Unix timestamp in local time.
// Timestamps from today show only the time of day.
func FormatTimestamp(ms int64, now time.Time) string {
	t := time.UnixMilli(ms).In(now.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02 15:04")
}
