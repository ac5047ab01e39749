package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fiszki/kreator/internal/domain"
)

// FlashcardRepo persists flashcards.
type FlashcardRepo struct{ Pool PgxPool }

// NewFlashcardRepo constructs a FlashcardRepo with the given pool.
func NewFlashcardRepo(p PgxPool) *FlashcardRepo { return &FlashcardRepo{Pool: p} }

var _ domain.FlashcardRepository = (*FlashcardRepo)(nil)

// SaveFlashcards inserts records in one transaction, all owned by ownerID and
// linked to sourceTextID (which may be empty). It returns the stored rows in
// input order.
func (r *FlashcardRepo) SaveFlashcards(ctx domain.Context, records []domain.Flashcard, sourceTextID, ownerID string) ([]domain.Flashcard, error) {
	tracer := otel.Tracer("repo.flashcards")
	ctx, span := tracer.Start(ctx, "flashcards.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "flashcards"),
		attribute.Int("flashcards.count", len(records)),
	)
	if len(records) == 0 {
		return []domain.Flashcard{}, nil
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=flashcard.save: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var srcID *string
	if sourceTextID != "" {
		srcID = &sourceTextID
	}
	now := time.Now().UTC()
	q := `INSERT INTO flashcards (id, user_id, source_text_id, front_content, back_content, accepted, creation_type, generation_time_ms, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
	RETURNING created_at, updated_at`

	out := make([]domain.Flashcard, 0, len(records))
	for _, rec := range records {
		fc := rec
		if fc.ID == "" {
			fc.ID = uuid.New().String()
		}
		if fc.CreationType == "" {
			fc.CreationType = domain.CreationManual
		}
		fc.OwnerID = ownerID
		fc.SourceTextID = sourceTextID
		row := tx.QueryRow(ctx, q, fc.ID, ownerID, srcID, fc.FrontContent, fc.BackContent, fc.Accepted, string(fc.CreationType), fc.GenerationTimeMS, now)
		if err := row.Scan(&fc.CreatedAt, &fc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=flashcard.save: %w", err)
		}
		out = append(out, fc)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=flashcard.save: commit: %w", err)
	}
	return out, nil
}
