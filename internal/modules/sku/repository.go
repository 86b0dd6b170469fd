package sku

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// Repository handles sku_sequences persistence.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new sequence repository.
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{log: log.With().Str("repo", "sku_sequence").Logger()}
}

const sequenceColumns = `id, brand_id, category_id, prefix, suffix, padding_length,
	format_template, next_sequence, total_generated, last_generated_sku, last_generated_at,
	created_at, updated_at, created_by, updated_by, is_active, version`

// GetForUpdate loads a sequence row under a row-level write lock. This is the
// serialization point for number issuance on the sequence.
func (r *Repository) GetForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*Sequence, error) {
	var seq Sequence
	query := fmt.Sprintf(`SELECT %s FROM sku_sequences WHERE id = $1 FOR UPDATE`, sequenceColumns)
	if err := sqlx.GetContext(ctx, q, &seq, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.NewNotFoundError("sku sequence", id)
		}
		return nil, &domain.DatabaseError{Op: "sku_sequence.get_for_update", Err: err}
	}
	return &seq, nil
}

// GetByScope finds the sequence for a (brand, category) tuple. Nil ids match
// NULL columns.
func (r *Repository) GetByScope(ctx context.Context, q database.Querier, brandID, categoryID *uuid.UUID) (*Sequence, error) {
	var seq Sequence
	query := fmt.Sprintf(`SELECT %s FROM sku_sequences
		WHERE brand_id IS NOT DISTINCT FROM $1 AND category_id IS NOT DISTINCT FROM $2`, sequenceColumns)
	if err := sqlx.GetContext(ctx, q, &seq, query, brandID, categoryID); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "sku_sequence.get_by_scope", Err: err}
	}
	return &seq, nil
}

// Insert persists a new sequence. A scope-tuple collision inserts nothing and
// is reported as ConflictError. ON CONFLICT DO NOTHING keeps the enclosing
// transaction usable, so the caller can re-read the winner's row in the same
// transaction.
func (r *Repository) Insert(ctx context.Context, q database.Querier, seq *Sequence) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO sku_sequences
		(id, brand_id, category_id, prefix, suffix, padding_length, format_template,
		 next_sequence, total_generated, created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT ON CONSTRAINT uq_sku_sequences_scope DO NOTHING`,
		seq.ID, seq.BrandID, seq.CategoryID, seq.Prefix, seq.Suffix, seq.PaddingLength,
		seq.FormatTemplate, seq.NextSequence, seq.TotalGenerated,
		seq.CreatedAt, seq.UpdatedAt, seq.CreatedBy, seq.IsActive, seq.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "sku_sequence.insert", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ConflictError{Entity: "sku sequence", Key: scopeKey(seq.BrandID, seq.CategoryID)}
	}
	return nil
}

// Save writes counters, template and generation metadata back to the locked
// row, bumping the optimistic-lock version.
func (r *Repository) Save(ctx context.Context, q database.Querier, seq *Sequence) error {
	_, err := q.ExecContext(ctx, `
		UPDATE sku_sequences
		SET prefix = $2, suffix = $3, padding_length = $4, format_template = $5,
		    next_sequence = $6, total_generated = $7, last_generated_sku = $8,
		    last_generated_at = $9, is_active = $10, updated_at = $11, updated_by = $12,
		    version = $13
		WHERE id = $1`,
		seq.ID, seq.Prefix, seq.Suffix, seq.PaddingLength, seq.FormatTemplate,
		seq.NextSequence, seq.TotalGenerated, seq.LastGeneratedSKU, seq.LastGeneratedAt,
		seq.IsActive, seq.UpdatedAt, seq.UpdatedBy, seq.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "sku_sequence.save", Err: err}
	}
	return nil
}

// SKUExists checks whether a candidate SKU is already used anywhere it must
// be unique: the item catalog and the serialized unit table.
func (r *Repository) SKUExists(ctx context.Context, q database.Querier, sku string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, `
		SELECT EXISTS (SELECT 1 FROM items WHERE sku = $1)
		    OR EXISTS (SELECT 1 FROM inventory_units WHERE sku = $1)`, sku)
	if err != nil {
		return false, &domain.DatabaseError{Op: "sku_sequence.sku_exists", Err: err}
	}
	return exists, nil
}

func scopeKey(brandID, categoryID *uuid.UUID) string {
	b, c := "nil", "nil"
	if brandID != nil {
		b = brandID.String()
	}
	if categoryID != nil {
		c = categoryID.String()
	}
	return fmt.Sprintf("(%s,%s)", b, c)
}
