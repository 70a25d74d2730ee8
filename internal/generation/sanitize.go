package generation

import (
	"regexp"
	"strings"
	"time"
)

var (
	markupRe     = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Sanitize strips markup tags, collapses whitespace runs and trims.
func Sanitize(text string) string {
	text = markupRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// DefaultDeckName renders "Deck YYYY-MM-DD HH:mm" in t's location.
func DefaultDeckName(t time.Time) string {
	return "Deck " + t.Format("2006-01-02 15:04")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
