package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fiszki/kreator/internal/domain"
)

// SourceTextRepo persists and loads source texts.
type SourceTextRepo struct{ Pool PgxPool }

// NewSourceTextRepo constructs a SourceTextRepo with the given pool.
func NewSourceTextRepo(p PgxPool) *SourceTextRepo { return &SourceTextRepo{Pool: p} }

var _ domain.SourceTextRepository = (*SourceTextRepo)(nil)

// Create stores st and returns it with id and timestamps filled in. An id is
// generated when st.ID is empty.
func (r *SourceTextRepo) Create(ctx domain.Context, st domain.SourceText) (domain.SourceText, error) {
	tracer := otel.Tracer("repo.source_texts")
	ctx, span := tracer.Start(ctx, "source_texts.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "source_texts"),
	)
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO source_texts (id, user_id, content, created_at, updated_at) VALUES ($1,$2,$3,$4,$4)
	RETURNING created_at, updated_at`
	if err := r.Pool.QueryRow(ctx, q, st.ID, st.OwnerID, st.Content, now).Scan(&st.CreatedAt, &st.UpdatedAt); err != nil {
		return domain.SourceText{}, fmt.Errorf("op=source_text.create: %w", err)
	}
	return st, nil
}

// FetchSourceTextByID loads a source text. A malformed id is reported as not
// found since it cannot match any row.
func (r *SourceTextRepo) FetchSourceTextByID(ctx domain.Context, id string) (domain.SourceText, error) {
	tracer := otel.Tracer("repo.source_texts")
	ctx, span := tracer.Start(ctx, "source_texts.FetchByID")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "source_texts"),
	)
	if _, err := uuid.Parse(id); err != nil {
		return domain.SourceText{}, fmt.Errorf("op=source_text.get: %w", domain.ErrNotFound)
	}
	q := `SELECT id, user_id, content, created_at, updated_at FROM source_texts WHERE id=$1`
	var st domain.SourceText
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&st.ID, &st.OwnerID, &st.Content, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SourceText{}, fmt.Errorf("op=source_text.get: %w", domain.ErrNotFound)
		}
		return domain.SourceText{}, fmt.Errorf("op=source_text.get: %w", err)
	}
	return st, nil
}
