// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fiszki/kreator/internal/domain"
	"github.com/fiszki/kreator/pkg/textx"
)

// Source text length bounds, in characters.
const (
	MinSourceTextChars = 1000
	MaxSourceTextChars = 10000
)

// SourceTextService validates and stores source texts.
type SourceTextService struct {
	Repo domain.SourceTextRepository
}

// NewSourceTextService constructs a SourceTextService with the given repo.
func NewSourceTextService(r domain.SourceTextRepository) SourceTextService {
	return SourceTextService{Repo: r}
}

// CreateSourceText sanitizes content, checks its length and stores it for ownerID.
func (s SourceTextService) CreateSourceText(ctx domain.Context, content, ownerID string) (domain.SourceText, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.SourceText{}, fmt.Errorf("%w: owner is required", domain.ErrInvalidArgument)
	}
	content = textx.SanitizeText(content)
	if n := utf8.RuneCountInString(content); n < MinSourceTextChars || n > MaxSourceTextChars {
		return domain.SourceText{}, fmt.Errorf("%w: content must be between %d and %d characters, got %d",
			domain.ErrInvalidArgument, MinSourceTextChars, MaxSourceTextChars, n)
	}
	now := time.Now().UTC()
	st, err := s.Repo.Create(ctx, domain.SourceText{OwnerID: ownerID, Content: content, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return domain.SourceText{}, fmt.Errorf("op=source_text.create: %w", err)
	}
	return st, nil
}

// FetchSourceTextByID returns the source text or domain.ErrNotFound.
func (s SourceTextService) FetchSourceTextByID(ctx domain.Context, id string) (domain.SourceText, error) {
	if strings.TrimSpace(id) == "" {
		return domain.SourceText{}, fmt.Errorf("%w: source text id is required", domain.ErrInvalidArgument)
	}
	return s.Repo.FetchSourceTextByID(ctx, id)
}
