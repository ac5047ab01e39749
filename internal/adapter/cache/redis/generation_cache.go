// Package redis caches flashcard generation results in Redis.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fiszki/kreator/internal/domain"
	obsctx "github.com/fiszki/kreator/internal/observability"
	"github.com/fiszki/kreator/pkg/textx"
)

const keyPrefix = "flashcards:gen:"

// GenerationCache wraps a FlashcardGenerator and caches its results by
// model, count and text. Degraded results are never cached and Redis
// failures fall through to the wrapped generator.
type GenerationCache struct {
	rdb   *goredis.Client
	next  domain.FlashcardGenerator
	model string
	ttl   time.Duration
}

var _ domain.FlashcardGenerator = (*GenerationCache)(nil)

// NewGenerationCache wraps next. With a nil client or a non-positive ttl,
// next is returned unmodified.
func NewGenerationCache(rdb *goredis.Client, next domain.FlashcardGenerator, model string, ttl time.Duration) domain.FlashcardGenerator {
	if rdb == nil || next == nil || ttl <= 0 {
		return next
	}
	return &GenerationCache{rdb: rdb, next: next, model: model, ttl: ttl}
}

// GenerateFlashcards implements domain.FlashcardGenerator.
func (c *GenerationCache) GenerateFlashcards(ctx context.Context, text string, count int) ([]domain.GeneratedFlashcard, error) {
	lg := obsctx.LoggerFromContext(ctx)
	key := c.key(text, count)

	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cards []domain.GeneratedFlashcard
		if uerr := json.Unmarshal(b, &cards); uerr == nil && len(cards) > 0 {
			lg.Debug("generation cache hit", slog.String("key", key), slog.Int("cards", len(cards)))
			return cards, nil
		}
		lg.Warn("generation cache entry unreadable", slog.String("key", key))
	case errors.Is(err, goredis.Nil):
	default:
		lg.Warn("generation cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	cards, err := c.next.GenerateFlashcards(ctx, text, count)
	if err != nil {
		return nil, err
	}
	if degraded(cards) {
		return cards, nil
	}
	payload, err := json.Marshal(cards)
	if err != nil {
		return cards, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		lg.Warn("generation cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return cards, nil
}

func (c *GenerationCache) key(text string, count int) string {
	sum := sha256.Sum256([]byte(c.model + "|" + strconv.Itoa(count) + "|" + textx.SanitizePrompt(text)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func degraded(cards []domain.GeneratedFlashcard) bool {
	if len(cards) == 0 {
		return true
	}
	for _, c := range cards {
		if c.Fallback {
			return true
		}
	}
	return false
}
