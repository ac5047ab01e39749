package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiszki/kreator/internal/domain"
	obsctx "github.com/fiszki/kreator/internal/observability"
)

// DefaultFlashcardCount is used when a request does not name a count.
const DefaultFlashcardCount = 5

// ErrInvalidCount rejects a non-positive flashcard count.
var ErrInvalidCount = fmt.Errorf("%w: count must be a positive integer", domain.ErrInvalidArgument)

// ErrAIDisabled is returned when no generator is configured.
var ErrAIDisabled = domain.NewAIError(domain.ErrAuth, "AI service is not configured")

const generateBucket = "generate"

// GenerateResult is the outcome of one generation request.
type GenerateResult struct {
	Flashcards []domain.Flashcard     `json:"flashcards"`
	Stats      domain.GenerationStats `json:"generation_stats"`
}

// GenerateService generates flashcards for a stored source text and saves
// them as unaccepted AI-generated cards.
type GenerateService struct {
	Texts     domain.SourceTextRepository
	Cards     domain.FlashcardRepository
	Generator domain.FlashcardGenerator
	Limiter   domain.RateLimiter
}

// NewGenerateService constructs a GenerateService. gen and limiter may be nil:
// without a generator every request fails with ErrAIDisabled, without a
// limiter requests are not throttled.
func NewGenerateService(texts domain.SourceTextRepository, cards domain.FlashcardRepository, gen domain.FlashcardGenerator, limiter domain.RateLimiter) GenerateService {
	return GenerateService{Texts: texts, Cards: cards, Generator: gen, Limiter: limiter}
}

// Generate asks the generator for count cards from the source text and
// saves them. A source text owned by someone else is reported as not found.
func (s GenerateService) Generate(ctx domain.Context, sourceTextID, ownerID string, count int) (GenerateResult, error) {
	start := time.Now()
	ctx, lg := obsctx.WithLogAttrs(ctx, slog.String("source_text_id", sourceTextID))
	if count <= 0 {
		return GenerateResult{}, ErrInvalidCount
	}
	if sourceTextID == "" {
		return GenerateResult{}, fmt.Errorf("%w: source text id is required", domain.ErrInvalidArgument)
	}

	if s.Limiter != nil {
		allowed, retryAfter, err := s.Limiter.Allow(ctx, generateBucket+":"+ownerID, 1)
		if err != nil {
			lg.Warn("rate limiter unavailable, allowing request", slog.Any("error", err))
		}
		if !allowed {
			return GenerateResult{}, fmt.Errorf("op=generate: %w", &domain.RateLimitedError{RetryAfter: retryAfter})
		}
	}

	st, err := s.Texts.FetchSourceTextByID(ctx, sourceTextID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("op=generate.fetch_source: %w", err)
	}
	if st.OwnerID != ownerID {
		lg.Warn("source text requested by non-owner")
		return GenerateResult{}, fmt.Errorf("op=generate.fetch_source: %w", domain.ErrNotFound)
	}

	if s.Generator == nil {
		return GenerateResult{}, ErrAIDisabled
	}
	genStart := time.Now()
	generated, err := s.Generator.GenerateFlashcards(ctx, st.Content, count)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("op=generate.ai: %w", err)
	}
	if len(generated) == 0 {
		return GenerateResult{}, fmt.Errorf("op=generate.ai: %w", domain.NewAIError(domain.ErrService, "no flashcards generated"))
	}
	genMS := time.Since(genStart).Milliseconds()

	records := make([]domain.Flashcard, 0, len(generated))
	for _, g := range generated {
		records = append(records, domain.Flashcard{
			FrontContent:     g.Front,
			BackContent:      g.Back,
			Accepted:         false,
			CreationType:     domain.CreationAIGenerated,
			GenerationTimeMS: &genMS,
		})
	}
	saved, err := s.Cards.SaveFlashcards(ctx, records, st.ID, ownerID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("op=generate.save: %w", err)
	}

	res := GenerateResult{
		Flashcards: saved,
		Stats: domain.GenerationStats{
			RequestedCount: count,
			GeneratedCount: len(saved),
			TotalTimeMS:    time.Since(start).Milliseconds(),
		},
	}
	lg.Info("flashcards generated",
		slog.Int("requested", count),
		slog.Int("generated", len(saved)),
		slog.Int64("generation_ms", genMS),
		slog.Int64("total_ms", res.Stats.TotalTimeMS))
	return res, nil
}

// IsAIUnavailable reports whether err means the AI service could not be
// reached or used at all, as opposed to a failed generation.
func IsAIUnavailable(err error) bool {
	return errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrRateLimit)
}

// IsAIGenerationFailure reports whether err is any other AI error.
func IsAIGenerationFailure(err error) bool {
	_, ok := domain.AsAIError(err)
	return ok && !IsAIUnavailable(err)
}
