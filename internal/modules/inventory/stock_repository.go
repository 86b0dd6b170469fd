package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// StockRepository handles stock_levels persistence. All mutating reads go
// through GetForUpdate so bucket transitions for one (item, location) are
// totally ordered by the row lock.
type StockRepository struct {
	log zerolog.Logger
}

// NewStockRepository creates a new stock-level repository.
func NewStockRepository(log zerolog.Logger) *StockRepository {
	return &StockRepository{log: log.With().Str("repo", "stock_level").Logger()}
}

const stockLevelColumns = `id, item_id, location_id, quantity_available, quantity_reserved,
	quantity_on_rent, quantity_damaged, quantity_under_repair, quantity_beyond_repair,
	quantity_on_hand, average_cost, total_value, reorder_point, maximum_stock, stock_status,
	created_at, updated_at, created_by, updated_by, is_active, version`

// GetForUpdate loads the stock level for an (item, location) pair under a
// row-level write lock.
func (r *StockRepository) GetForUpdate(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error) {
	var level StockLevel
	query := fmt.Sprintf(`SELECT %s FROM stock_levels
		WHERE item_id = $1 AND location_id = $2 FOR UPDATE`, stockLevelColumns)
	if err := sqlx.GetContext(ctx, q, &level, query, itemID, locationID); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "stock_level.get_for_update", Err: err}
	}
	return &level, nil
}

// Get loads a stock level without locking (read-only queries).
func (r *StockRepository) Get(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error) {
	var level StockLevel
	query := fmt.Sprintf(`SELECT %s FROM stock_levels
		WHERE item_id = $1 AND location_id = $2`, stockLevelColumns)
	if err := sqlx.GetContext(ctx, q, &level, query, itemID, locationID); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "stock_level.get", Err: err}
	}
	return &level, nil
}

// Insert persists a new stock level. A collision on the (item, location)
// tuple inserts nothing and is reported as ConflictError. ON CONFLICT DO
// NOTHING keeps the enclosing transaction usable, so the caller retries once
// by re-reading the winner's row under lock.
func (r *StockRepository) Insert(ctx context.Context, q database.Querier, level *StockLevel) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO stock_levels
		(id, item_id, location_id, quantity_available, quantity_reserved, quantity_on_rent,
		 quantity_damaged, quantity_under_repair, quantity_beyond_repair, quantity_on_hand,
		 average_cost, total_value, reorder_point, maximum_stock, stock_status,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (item_id, location_id) DO NOTHING`,
		level.ID, level.ItemID, level.LocationID, level.Available, level.Reserved, level.OnRent,
		level.Damaged, level.UnderRepair, level.BeyondRepair, level.OnHand,
		level.AverageCost, level.TotalValue, level.ReorderPoint, level.MaximumStock, level.StockStatus,
		level.CreatedAt, level.UpdatedAt, level.CreatedBy, level.IsActive, level.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "stock_level.insert", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ConflictError{
			Entity: "stock level",
			Key:    fmt.Sprintf("(%s,%s)", level.ItemID, level.LocationID),
		}
	}
	return nil
}

// Save writes the mutated buckets back to the locked row.
func (r *StockRepository) Save(ctx context.Context, q database.Querier, level *StockLevel) error {
	_, err := q.ExecContext(ctx, `
		UPDATE stock_levels
		SET quantity_available = $2, quantity_reserved = $3, quantity_on_rent = $4,
		    quantity_damaged = $5, quantity_under_repair = $6, quantity_beyond_repair = $7,
		    quantity_on_hand = $8, average_cost = $9, total_value = $10,
		    reorder_point = $11, maximum_stock = $12, stock_status = $13,
		    updated_at = $14, updated_by = $15, version = $16
		WHERE id = $1`,
		level.ID, level.Available, level.Reserved, level.OnRent,
		level.Damaged, level.UnderRepair, level.BeyondRepair,
		level.OnHand, level.AverageCost, level.TotalValue,
		level.ReorderPoint, level.MaximumStock, level.StockStatus,
		level.UpdatedAt, level.UpdatedBy, level.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "stock_level.save", Err: err}
	}
	return nil
}

// ListLowStock returns levels whose available quantity has fallen to the
// reorder point, optionally scoped to a location.
func (r *StockRepository) ListLowStock(ctx context.Context, q database.Querier, locationID *uuid.UUID) ([]StockLevel, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_levels
		WHERE reorder_point IS NOT NULL AND quantity_available <= reorder_point AND is_active`, stockLevelColumns)
	args := []interface{}{}
	if locationID != nil {
		query += ` AND location_id = $1`
		args = append(args, *locationID)
	}

	var levels []StockLevel
	if err := sqlx.SelectContext(ctx, q, &levels, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "stock_level.list_low_stock", Err: err}
	}
	return levels, nil
}
