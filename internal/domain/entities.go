// Package domain holds the entities, ports and error taxonomy shared by the
// use cases and adapters.
package domain

import (
	"context"
	"time"
)

// CreationType records how a flashcard came to exist.
type CreationType string

const (
	CreationAIGenerated CreationType = "ai_generated"
	CreationAIEdited    CreationType = "ai_edited"
	CreationManual      CreationType = "manual"
)

// SourceText is the user-supplied material flashcards are generated from.
// OwnerID is never empty and Content holds 1000..10000 characters.
type SourceText struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GeneratedFlashcard is one front/back pair produced by the AI layer.
// Front and Back are never empty. Fallback marks the degraded card emitted
// when a completion could not be parsed.
type GeneratedFlashcard struct {
	Front    string `json:"front"`
	Back     string `json:"back"`
	Fallback bool   `json:"-"`
}

// Flashcard is a persisted card.
type Flashcard struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"user_id"`
	SourceTextID     string       `json:"source_text_id,omitempty"`
	FrontContent     string       `json:"front_content"`
	BackContent      string       `json:"back_content"`
	Accepted         bool         `json:"accepted"`
	CreationType     CreationType `json:"creation_type"`
	GenerationTimeMS *int64       `json:"generation_time_ms,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// GenerationStats summarizes one generation request.
type GenerationStats struct {
	RequestedCount int   `json:"requested_count"`
	GeneratedCount int   `json:"generated_count"`
	TotalTimeMS    int64 `json:"total_time_ms"`
}

// Repositories (ports)

type SourceTextRepository interface {
	Create(ctx Context, st SourceText) (SourceText, error)
	// FetchSourceTextByID returns ErrNotFound when no row matches.
	FetchSourceTextByID(ctx Context, id string) (SourceText, error)
}

type FlashcardRepository interface {
	SaveFlashcards(ctx Context, records []Flashcard, sourceTextID, ownerID string) ([]Flashcard, error)
}

// FlashcardGenerator (port) turns source text into flashcards. The result is
// never empty when err is nil.
type FlashcardGenerator interface {
	GenerateFlashcards(ctx Context, text string, count int) ([]GeneratedFlashcard, error)
}

// RateLimiter (port) is a keyed token bucket.
type RateLimiter interface {
	Allow(ctx Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// Context is an alias to keep the ports readable; adapters pass context.Context through.
type Context = context.Context
