package ai

import (
	"regexp"
	"strings"

	"github.com/fiszki/kreator/internal/domain"
)

var (
	// "1. Q: What is X? A: Y" and "2) What is X? Y"
	numberedQARe = regexp.MustCompile(`(?i)\d+\s*[.)]\s*(?:Q:|Question:|Front:)?\s*([^\n?]+\??)\s*(?:A:|Answer:|Back:)?\s*([^\n]+)`)
	// "Q: ... A: ..." and "Front: ... Back: ..."
	labeledQARe = regexp.MustCompile(`(?i)(?:Q:|Question:|Front:)\s*([^\n?]+\??)\s*(?:A:|Answer:|Back:)\s*([^\n]+)`)
)

// cardsFromText scans free text for question/answer pairs. Numbered pairs
// win; labeled pairs are only tried when no numbered pair was found.
func cardsFromText(text string) []domain.GeneratedFlashcard {
	if cards := matchPairs(numberedQARe, text); len(cards) > 0 {
		return cards
	}
	return matchPairs(labeledQARe, text)
}

func matchPairs(re *regexp.Regexp, text string) []domain.GeneratedFlashcard {
	var cards []domain.GeneratedFlashcard
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		front, back := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if front == "" || back == "" {
			continue
		}
		cards = append(cards, domain.GeneratedFlashcard{Front: front, Back: back})
	}
	return cards
}
