package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiszki/kreator/internal/domain"
)

type countingGenerator struct {
	mu    sync.Mutex
	calls int
	cards []domain.GeneratedFlashcard
	err   error
}

func (g *countingGenerator) GenerateFlashcards(_ context.Context, _ string, _ int) ([]domain.GeneratedFlashcard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.cards, g.err
}

func (g *countingGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func setup(t *testing.T, gen domain.FlashcardGenerator) (domain.FlashcardGenerator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewGenerationCache(rdb, gen, "openai/gpt-4o-mini", time.Hour), mr
}

func TestGenerationCache_HitAfterMiss(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Q", Back: "A"}}}
	cache, mr := setup(t, gen)
	ctx := context.Background()

	first, err := cache.GenerateFlashcards(ctx, "Mitochondria produce ATP.", 5)
	require.NoError(t, err)
	second, err := cache.GenerateFlashcards(ctx, "  Mitochondria produce ATP.  ", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.Calls())

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], keyPrefix)
	assert.Equal(t, time.Hour, mr.TTL(keys[0]))
}

func TestGenerationCache_KeyIncludesCount(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Q", Back: "A"}}}
	cache, _ := setup(t, gen)

	_, _ = cache.GenerateFlashcards(context.Background(), "text", 3)
	_, _ = cache.GenerateFlashcards(context.Background(), "text", 4)
	assert.Equal(t, 2, gen.Calls())
}

func TestGenerationCache_ExpiresAfterTTL(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Q", Back: "A"}}}
	cache, mr := setup(t, gen)

	_, _ = cache.GenerateFlashcards(context.Background(), "text", 3)
	mr.FastForward(2 * time.Hour)
	_, _ = cache.GenerateFlashcards(context.Background(), "text", 3)
	assert.Equal(t, 2, gen.Calls())
}

func TestGenerationCache_SkipsFallbackAndErrors(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Error generating flashcards", Back: "x", Fallback: true}}}
	cache, mr := setup(t, gen)

	cards, err := cache.GenerateFlashcards(context.Background(), "text", 3)
	require.NoError(t, err)
	assert.True(t, cards[0].Fallback)
	assert.Empty(t, mr.Keys())

	gen.cards, gen.err = nil, domain.NewAIError(domain.ErrAuth, "bad key")
	_, err = cache.GenerateFlashcards(context.Background(), "other", 3)
	assert.True(t, errors.Is(err, domain.ErrAuth))
	assert.Empty(t, mr.Keys())
}

func TestGenerationCache_FailsOpen(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Q", Back: "A"}}}
	cache, mr := setup(t, gen)
	mr.Close()

	cards, err := cache.GenerateFlashcards(context.Background(), "text", 3)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
	assert.Equal(t, 1, gen.Calls())
}

func TestGenerationCache_CorruptEntryIsRegenerated(t *testing.T) {
	gen := &countingGenerator{cards: []domain.GeneratedFlashcard{{Front: "Q", Back: "A"}}}
	cache, mr := setup(t, gen)
	gc := cache.(*GenerationCache)
	require.NoError(t, mr.Set(gc.key("text", 3), "{not json"))

	cards, err := cache.GenerateFlashcards(context.Background(), "text", 3)
	require.NoError(t, err)
	assert.Equal(t, "Q", cards[0].Front)
	assert.Equal(t, 1, gen.Calls())
}

func TestNewGenerationCache_Passthrough(t *testing.T) {
	gen := &countingGenerator{}
	assert.Same(t, gen, NewGenerationCache(nil, gen, "m", time.Hour))
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	assert.Same(t, gen, NewGenerationCache(rdb, gen, "m", 0))
}
