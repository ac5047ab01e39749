// Package ai holds the provider-independent parts of the completion client:
// the circuit breaker and the flashcard extraction pipeline.
package ai

import (
	"encoding/json"
	"strings"

	"github.com/fiszki/kreator/internal/domain"
)

// CompletionResult is one completion as returned by the provider. Content is
// the first choice's message text; Raw is the undecoded response body.
type CompletionResult struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Content string          `json:"content"`
	Raw     json.RawMessage `json:"-"`
	Usage   Usage           `json:"usage"`
}

// Usage mirrors the provider's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Strategy names the extraction step that produced a set of cards.
type Strategy string

const (
	StrategyJSON         Strategy = "json"
	StrategyEmbeddedJSON Strategy = "embedded_json"
	StrategyText         Strategy = "text"
	StrategyFallback     Strategy = "fallback"
)

// Degraded reports whether the cards came from anything but well-formed JSON.
func (s Strategy) Degraded() bool { return s == StrategyText || s == StrategyFallback }

const (
	FallbackFront = "Error generating flashcards"
	FallbackBack  = "The AI service was unable to generate flashcards from your text. Please try again or use a different text."
)

// FallbackFlashcard is returned when nothing usable could be extracted.
func FallbackFlashcard() domain.GeneratedFlashcard {
	return domain.GeneratedFlashcard{Front: FallbackFront, Back: FallbackBack, Fallback: true}
}

// ExtractFlashcards turns a completion into cards. It never fails and never
// returns an empty slice.
func ExtractFlashcards(res CompletionResult) []domain.GeneratedFlashcard {
	cards, _ := Extract(res)
	return cards
}

// Extract is ExtractFlashcards that also reports the strategy used.
func Extract(res CompletionResult) ([]domain.GeneratedFlashcard, Strategy) {
	content := strings.TrimSpace(res.Content)
	if content == "" {
		content = strings.TrimSpace(contentFromRaw(res.Raw))
	}
	if content == "" {
		return []domain.GeneratedFlashcard{FallbackFlashcard()}, StrategyFallback
	}

	if v, err := parseJSON(content); err == nil {
		if cards, _ := cardsFromJSON(v); len(cards) > 0 {
			return cards, StrategyJSON
		}
	} else {
		for _, candidate := range NewResponseCleaner().Candidates(content) {
			v, err := parseJSON(candidate)
			if err != nil {
				continue
			}
			if cards, _ := cardsFromJSON(v); len(cards) > 0 {
				return cards, StrategyEmbeddedJSON
			}
		}
	}

	if cards := cardsFromText(content); len(cards) > 0 {
		return cards, StrategyText
	}
	return []domain.GeneratedFlashcard{FallbackFlashcard()}, StrategyFallback
}

// contentFromRaw recovers choices[0].message.content from the raw body.
// String content is returned as is; structured content as its JSON text,
// except for an array of text parts, which is concatenated.
func contentFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Choices) == 0 {
		return ""
	}
	return MessageText(body.Choices[0].Message.Content)
}

// MessageText renders a message content field as text. Providers send
// either a string or a list of typed parts.
func MessageText(content json.RawMessage) string {
	c := strings.TrimSpace(string(content))
	if c == "" || c == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return c
}
