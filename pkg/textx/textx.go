// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPromptRunes bounds any single piece of content sent upstream.
const MaxPromptRunes = 32000

var tagPattern = regexp.MustCompile(`</?[^>]+(>|$)`)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// StripTags removes HTML-like tags, including an unterminated trailing tag.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// SanitizePrompt prepares user-controlled content for an upstream prompt:
// tags are stripped, control characters removed and the result capped at
// MaxPromptRunes.
func SanitizePrompt(s string) string {
	if s == "" {
		return ""
	}
	return Truncate(SanitizeText(StripTags(s)), MaxPromptRunes)
}

// Preview returns the first n runes of s with an ellipsis when truncated. Used for logs.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}
