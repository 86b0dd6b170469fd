package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// MovementRepository handles the append-only stock_movements ledger.
type MovementRepository struct {
	log zerolog.Logger
}

// NewMovementRepository creates a new movement repository.
func NewMovementRepository(log zerolog.Logger) *MovementRepository {
	return &MovementRepository{log: log.With().Str("repo", "stock_movement").Logger()}
}

const movementColumns = `id, stock_level_id, item_id, location_id, movement_type,
	quantity_change, quantity_before, quantity_after, on_hand_change, transaction_header_id,
	transaction_line_id, unit_cost, reason, notes, correlation_id, approved_by,
	requires_approval, performed_by, created_at`

// Append inserts one ledger entry. There is no update or delete path for
// business code.
func (r *MovementRepository) Append(ctx context.Context, q database.Querier, m *StockMovement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements
		(id, stock_level_id, item_id, location_id, movement_type, quantity_change,
		 quantity_before, quantity_after, on_hand_change, transaction_header_id,
		 transaction_line_id, unit_cost, reason, notes, correlation_id, approved_by,
		 requires_approval, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		m.ID, m.StockLevelID, m.ItemID, m.LocationID, m.MovementType, m.QuantityChange,
		m.QuantityBefore, m.QuantityAfter, m.OnHandChange, m.TransactionHeaderID, m.TransactionLineID,
		m.UnitCost, m.Reason, m.Notes, m.CorrelationID, m.ApprovedBy, m.RequiresApproval,
		m.PerformedBy, m.CreatedAt)
	if err != nil {
		return &domain.DatabaseError{Op: "stock_movement.append", Err: err}
	}
	return nil
}

// List returns ledger entries matching the filter, newest first.
func (r *MovementRepository) List(ctx context.Context, q database.Querier, filter MovementFilter) ([]StockMovement, error) {
	where, args := buildMovementWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM stock_movements %s ORDER BY created_at DESC`, movementColumns, where)
	if filter.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, filter.Limit)
	}

	var movements []StockMovement
	if err := sqlx.SelectContext(ctx, q, &movements, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "stock_movement.list", Err: err}
	}
	return movements, nil
}

// Summarize aggregates signed quantity_change by movement type over the
// filter window.
func (r *MovementRepository) Summarize(ctx context.Context, q database.Querier, filter MovementFilter) (map[domain.StockMovementType]decimal.Decimal, error) {
	where, args := buildMovementWhere(filter)
	query := fmt.Sprintf(`
		SELECT movement_type, COALESCE(SUM(quantity_change), 0) AS total
		FROM stock_movements %s
		GROUP BY movement_type`, where)

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "stock_movement.summarize", Err: err}
	}
	defer rows.Close()

	result := make(map[domain.StockMovementType]decimal.Decimal)
	for rows.Next() {
		var movementType domain.StockMovementType
		var total decimal.Decimal
		if err := rows.Scan(&movementType, &total); err != nil {
			return nil, &domain.DatabaseError{Op: "stock_movement.summarize", Err: err}
		}
		result[movementType] = total
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.DatabaseError{Op: "stock_movement.summarize", Err: err}
	}
	return result, nil
}

// SelectOlderThan returns movements created before the cutoff, oldest first,
// capped at limit. Used by the retention job to archive before purging.
func (r *MovementRepository) SelectOlderThan(ctx context.Context, q database.Querier, cutoff time.Time, limit int) ([]StockMovement, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_movements
		WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`, movementColumns)

	var movements []StockMovement
	if err := sqlx.SelectContext(ctx, q, &movements, query, cutoff, limit); err != nil {
		return nil, &domain.DatabaseError{Op: "stock_movement.select_older_than", Err: err}
	}
	return movements, nil
}

// DeleteByIDs removes archived movements. Only the retention job calls this,
// and only after the batch is durably archived.
func (r *MovementRepository) DeleteByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM stock_movements WHERE id IN (?)`, ids)
	if err != nil {
		return 0, &domain.DatabaseError{Op: "stock_movement.delete_by_ids", Err: err}
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &domain.DatabaseError{Op: "stock_movement.delete_by_ids", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func buildMovementWhere(filter MovementFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ItemID != nil {
		add("item_id = $%d", *filter.ItemID)
	}
	if filter.LocationID != nil {
		add("location_id = $%d", *filter.LocationID)
	}
	if filter.StockLevelID != nil {
		add("stock_level_id = $%d", *filter.StockLevelID)
	}
	if filter.MovementType != nil {
		add("movement_type = $%d", *filter.MovementType)
	}
	if filter.TransactionHeaderID != nil {
		add("transaction_header_id = $%d", *filter.TransactionHeaderID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
