package httpserver

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiszki/kreator/internal/config"
	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/internal/usecase"
)

const (
	testSourceID = "7b0e3a52-4f0e-4a51-9d7a-2d1d9b1f0c11"
	testOwner    = "user-1"
)

type memTexts struct {
	byID map[string]domain.SourceText
	err  error
}

func (m *memTexts) Create(_ domain.Context, st domain.SourceText) (domain.SourceText, error) {
	if m.err != nil {
		return domain.SourceText{}, m.err
	}
	st.ID = testSourceID
	st.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st.UpdatedAt = st.CreatedAt
	if m.byID == nil {
		m.byID = map[string]domain.SourceText{}
	}
	m.byID[st.ID] = st
	return st, nil
}

func (m *memTexts) FetchSourceTextByID(_ domain.Context, id string) (domain.SourceText, error) {
	if m.err != nil {
		return domain.SourceText{}, m.err
	}
	st, ok := m.byID[id]
	if !ok {
		return domain.SourceText{}, domain.ErrNotFound
	}
	return st, nil
}

type memCards struct{ err error }

func (m *memCards) SaveFlashcards(_ domain.Context, records []domain.Flashcard, sourceTextID, ownerID string) ([]domain.Flashcard, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Flashcard, len(records))
	for i, rec := range records {
		rec.ID = "fc-" + string(rune('a'+i))
		rec.SourceTextID = sourceTextID
		rec.OwnerID = ownerID
		out[i] = rec
	}
	return out, nil
}

type fakeGenerator struct {
	count int
	cards []domain.GeneratedFlashcard
	err   error
}

func (g *fakeGenerator) GenerateFlashcards(_ context.Context, _ string, count int) ([]domain.GeneratedFlashcard, error) {
	g.count = count
	if g.err != nil {
		return nil, g.err
	}
	if g.cards != nil {
		return g.cards, nil
	}
	out := make([]domain.GeneratedFlashcard, count)
	for i := range out {
		out[i] = domain.GeneratedFlashcard{Front: "Q", Back: "A"}
	}
	return out, nil
}

type denyLimiter struct{ retryAfter time.Duration }

func (l denyLimiter) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return false, l.retryAfter, nil
}

type fixture struct {
	texts *memTexts
	cards *memCards
	gen   *fakeGenerator
	srv   *Server
}

func newFixture() *fixture {
	f := &fixture{
		texts: &memTexts{byID: map[string]domain.SourceText{}},
		cards: &memCards{},
		gen:   &fakeGenerator{},
	}
	f.texts.byID[testSourceID] = domain.SourceText{ID: testSourceID, OwnerID: testOwner, Content: "content"}
	cfg := config.Config{DefaultUserID: testOwner}
	f.srv = NewServer(cfg,
		usecase.NewSourceTextService(f.texts),
		usecase.NewGenerateService(f.texts, f.cards, f.gen, nil),
		nil, nil, nil)
	return f
}

func (f *fixture) router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Post("/v1/source-texts", f.srv.CreateSourceTextHandler())
	r.Post("/v1/source-texts/{id}/generate-flashcards", f.srv.GenerateFlashcardsHandler())
	r.Get("/readyz", f.srv.ReadyzHandler())
	return r
}
