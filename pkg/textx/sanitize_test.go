// Package textx contains tests for the text utilities.
package textx

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestStripTags(t *testing.T) {
	cases := map[string]string{
		"<b>bold</b> text":             "bold text",
		"<script>alert(1)</script>ok":  "alert(1)ok",
		"plain":                        "plain",
		"trailing <img src=x":          "trailing ",
		"a < b and c > d":              "a  d",
	}
	for in, want := range cases {
		if got := StripTags(in); got != want {
			t.Fatalf("StripTags(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizePrompt_Truncates(t *testing.T) {
	in := strings.Repeat("ż", MaxPromptRunes+50)
	got := SanitizePrompt(in)
	if n := utf8.RuneCountInString(got); n != MaxPromptRunes {
		t.Fatalf("expected %d runes, got %d", MaxPromptRunes, n)
	}
}

func TestSanitizePrompt_EmptyAfterTags(t *testing.T) {
	if got := SanitizePrompt("<div></div>"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("abcdef", 3); got != "abc..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("ab", 3); got != "ab" {
		t.Fatalf("unexpected preview %q", got)
	}
}
