package ui

import (
	"strings"
	"time"
)

// FormatTime renders a timestamp the way the chat surfaces expect it:
// time-of-day for today, month and day within the current year, a full date
// otherwise.
func FormatTime(t time.Time) string {
	now := time.Now()
	t = t.Local()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2")
	}
	return t.Format("2006-01-02")
}

// TruncatePreview collapses text to a single line of at most max runes for
// list previews.
func TruncatePreview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return strings.TrimRight(string(runes[:max-1]), " ") + "…"
}
