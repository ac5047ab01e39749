package ai

import (
	"strings"

	"github.com/fiszki/kreator/internal/domain"
)

// ShapeMatcher recognizes one layout of a flashcard payload and returns its
// candidate records.
type ShapeMatcher struct {
	Name    string
	Match   func(v any) bool
	Extract func(v any) []any
}

// fieldPairs are the accepted front/back field names, in priority order.
var fieldPairs = [][2]string{
	{"front_content", "back_content"},
	{"front", "back"},
	{"question", "answer"},
}

// ShapeMatchers are tried in order; the first match wins.
var ShapeMatchers = []ShapeMatcher{
	{
		Name:    "array",
		Match:   func(v any) bool { _, ok := v.([]any); return ok },
		Extract: func(v any) []any { return v.([]any) },
	},
	arrayProperty("flashcards"),
	arrayProperty("data"),
	arrayProperty("results"),
	{
		Name: "single_flashcard",
		Match: func(v any) bool {
			obj, ok := v.(jsonObject)
			if !ok {
				return false
			}
			f, fok := obj.String("front_content")
			b, bok := obj.String("back_content")
			return fok && bok && strings.TrimSpace(f) != "" && strings.TrimSpace(b) != ""
		},
		Extract: func(v any) []any { return []any{v} },
	},
	{
		Name:    "object_properties",
		Match:   func(v any) bool { return len(scanProperties(v)) > 0 },
		Extract: scanProperties,
	},
}

func arrayProperty(key string) ShapeMatcher {
	get := func(v any) ([]any, bool) {
		obj, ok := v.(jsonObject)
		if !ok {
			return nil, false
		}
		raw, ok := obj.Get(key)
		if !ok {
			return nil, false
		}
		arr, ok := raw.([]any)
		return arr, ok
	}
	return ShapeMatcher{
		Name:    key + "_property",
		Match:   func(v any) bool { _, ok := get(v); return ok },
		Extract: func(v any) []any { arr, _ := get(v); return arr },
	}
}

// scanProperties collects object-valued properties that normalize to a card.
func scanProperties(v any) []any {
	obj, ok := v.(jsonObject)
	if !ok {
		return nil
	}
	var out []any
	for _, f := range obj {
		if sub, ok := f.Value.(jsonObject); ok {
			if _, ok := normalizeRecord(sub); ok {
				out = append(out, sub)
			}
		}
	}
	return out
}

// cardsFromJSON locates the flashcard records in v and normalizes them.
// It returns the matcher name, or "" when no matcher applied.
func cardsFromJSON(v any) ([]domain.GeneratedFlashcard, string) {
	for _, m := range ShapeMatchers {
		if !m.Match(v) {
			continue
		}
		var cards []domain.GeneratedFlashcard
		for _, rec := range m.Extract(v) {
			if c, ok := normalizeRecord(rec); ok {
				cards = append(cards, c)
			}
		}
		return cards, m.Name
	}
	return nil, ""
}

// normalizeRecord maps the first accepted field pair whose sides are both
// non-empty strings to a card.
func normalizeRecord(rec any) (domain.GeneratedFlashcard, bool) {
	obj, ok := rec.(jsonObject)
	if !ok {
		return domain.GeneratedFlashcard{}, false
	}
	for _, p := range fieldPairs {
		front, fok := obj.String(p[0])
		back, bok := obj.String(p[1])
		if !fok || !bok {
			continue
		}
		front, back = strings.TrimSpace(front), strings.TrimSpace(back)
		if front != "" && back != "" {
			return domain.GeneratedFlashcard{Front: front, Back: back}, true
		}
	}
	return domain.GeneratedFlashcard{}, false
}
