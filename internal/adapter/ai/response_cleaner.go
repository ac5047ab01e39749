package ai

import (
	"regexp"
	"strings"
)

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ResponseCleaner digs JSON out of completions that wrap it in prose or
// markdown.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// Candidates returns the substrings of response that may hold a JSON
// document, most specific first: fenced code blocks, the balanced object
// starting at the first brace, the span from the first to the last brace,
// and the span from the first to the last bracket. Each candidate is
// followed by a repaired variant when repair changes it.
func (rc *ResponseCleaner) Candidates(response string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
		if fixed := rc.fixCommonJSONIssues(s); fixed != s && !seen[fixed] {
			seen[fixed] = true
			out = append(out, fixed)
		}
	}

	for _, m := range fencedBlockRe.FindAllStringSubmatch(response, -1) {
		add(m[1])
	}
	add(rc.extractJSON(response))
	add(spanBetween(response, '{', '}'))
	add(spanBetween(response, '[', ']'))
	return out
}

// extractJSON returns the balanced object starting at the first '{', or ""
// when there is none. Braces inside string literals are ignored.
func (rc *ResponseCleaner) extractJSON(response string) string {
	start := strings.IndexByte(response, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// fixCommonJSONIssues fixes common JSON parsing issues.
func (rc *ResponseCleaner) fixCommonJSONIssues(response string) string {
	response = smartQuotes.Replace(response)
	// Fix trailing commas
	return trailingCommaRe.ReplaceAllString(response, "$1")
}

func spanBetween(s string, open, closing byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
