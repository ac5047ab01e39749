package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/fiszki/kreator/internal/domain"
)

type stubSourceTexts struct {
	mu      sync.Mutex
	created []domain.SourceText
	byID    map[string]domain.SourceText
	err     error
}

func (r *stubSourceTexts) Create(_ domain.Context, st domain.SourceText) (domain.SourceText, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.SourceText{}, r.err
	}
	st.ID = "st-1"
	r.created = append(r.created, st)
	return st, nil
}

func (r *stubSourceTexts) FetchSourceTextByID(_ domain.Context, id string) (domain.SourceText, error) {
	if r.err != nil {
		return domain.SourceText{}, r.err
	}
	st, ok := r.byID[id]
	if !ok {
		return domain.SourceText{}, domain.ErrNotFound
	}
	return st, nil
}

type stubCards struct {
	saved        []domain.Flashcard
	sourceTextID string
	ownerID      string
	err          error
}

func (r *stubCards) SaveFlashcards(_ domain.Context, records []domain.Flashcard, sourceTextID, ownerID string) ([]domain.Flashcard, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.sourceTextID, r.ownerID = sourceTextID, ownerID
	out := make([]domain.Flashcard, len(records))
	for i, rec := range records {
		rec.ID = "fc-" + string(rune('a'+i))
		rec.OwnerID = ownerID
		rec.SourceTextID = sourceTextID
		out[i] = rec
	}
	r.saved = out
	return out, nil
}

type stubGenerator struct {
	text  string
	count int
	calls int
	cards []domain.GeneratedFlashcard
	err   error
}

func (g *stubGenerator) GenerateFlashcards(_ context.Context, text string, count int) ([]domain.GeneratedFlashcard, error) {
	g.calls++
	g.text, g.count = text, count
	return g.cards, g.err
}

type stubLimiter struct {
	key        string
	allowed    bool
	retryAfter time.Duration
	err        error
}

func (l *stubLimiter) Allow(_ domain.Context, key string, _ int64) (bool, time.Duration, error) {
	l.key = key
	return l.allowed, l.retryAfter, l.err
}
