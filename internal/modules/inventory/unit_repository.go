package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// UnitRepository handles inventory_units persistence.
type UnitRepository struct {
	log zerolog.Logger
}

// NewUnitRepository creates a new inventory-unit repository.
func NewUnitRepository(log zerolog.Logger) *UnitRepository {
	return &UnitRepository{log: log.With().Str("repo", "inventory_unit").Logger()}
}

const unitColumns = `id, item_id, location_id, sku, serial_number, batch_code, status,
	condition, purchase_price, warranty_expiry, next_maintenance_date, is_rental_blocked,
	acquired_at, created_at, updated_at, created_by, updated_by, is_active, version`

// Insert persists a new unit. Serial and SKU collisions surface as
// ConflictError.
func (r *UnitRepository) Insert(ctx context.Context, q database.Querier, unit *InventoryUnit) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO inventory_units
		(id, item_id, location_id, sku, serial_number, batch_code, status, condition,
		 purchase_price, warranty_expiry, next_maintenance_date, is_rental_blocked,
		 acquired_at, created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		unit.ID, unit.ItemID, unit.LocationID, unit.SKU, unit.SerialNumber, unit.BatchCode,
		unit.Status, unit.Condition, unit.PurchasePrice, unit.WarrantyExpiry,
		unit.NextMaintenanceDate, unit.IsRentalBlocked, unit.AcquiredAt,
		unit.CreatedAt, unit.UpdatedAt, unit.CreatedBy, unit.IsActive, unit.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			key := unit.SKU
			if unit.SerialNumber != nil {
				key = fmt.Sprintf("%s/%s", unit.SKU, *unit.SerialNumber)
			}
			return &domain.ConflictError{Entity: "inventory unit", Key: key}
		}
		return &domain.DatabaseError{Op: "inventory_unit.insert", Err: err}
	}
	return nil
}

// SelectForRental locks the count oldest available, non-blocked units at a
// location (FIFO by acquisition date, id ascending as tie-break so lock
// order is deterministic).
func (r *UnitRepository) SelectForRental(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM inventory_units
		WHERE item_id = $1 AND location_id = $2
		  AND status = $3 AND NOT is_rental_blocked AND is_active
		ORDER BY acquired_at ASC, id ASC
		LIMIT $4
		FOR UPDATE`, unitColumns)

	var units []InventoryUnit
	err := sqlx.SelectContext(ctx, q, &units, query, itemID, locationID, domain.UnitStatusAvailable, count)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.select_for_rental", Err: err}
	}
	return units, nil
}

// SelectForSale locks the count oldest available units at a location. Unlike
// rental selection there is no rental-block filter: a rental-blocked unit is
// still sellable and still counted in the available bucket.
func (r *UnitRepository) SelectForSale(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM inventory_units
		WHERE item_id = $1 AND location_id = $2
		  AND status = $3 AND is_active
		ORDER BY acquired_at ASC, id ASC
		LIMIT $4
		FOR UPDATE`, unitColumns)

	var units []InventoryUnit
	err := sqlx.SelectContext(ctx, q, &units, query, itemID, locationID, domain.UnitStatusAvailable, count)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.select_for_sale", Err: err}
	}
	return units, nil
}

// GetByIDsForUpdate locks the named units in ascending id order.
func (r *UnitRepository) GetByIDsForUpdate(ctx context.Context, q database.Querier, ids []uuid.UUID) ([]InventoryUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM inventory_units WHERE id IN (?) ORDER BY id ASC FOR UPDATE`, unitColumns), ids)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.get_by_ids", Err: err}
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var units []InventoryUnit
	if err := sqlx.SelectContext(ctx, q, &units, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.get_by_ids", Err: err}
	}
	return units, nil
}

// GetBySerials resolves units by serial number.
func (r *UnitRepository) GetBySerials(ctx context.Context, q database.Querier, serials []string) ([]InventoryUnit, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM inventory_units WHERE serial_number IN (?)`, unitColumns), serials)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.get_by_serials", Err: err}
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var units []InventoryUnit
	if err := sqlx.SelectContext(ctx, q, &units, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "inventory_unit.get_by_serials", Err: err}
	}
	return units, nil
}

// Save writes status, condition, location and maintenance fields back.
func (r *UnitRepository) Save(ctx context.Context, q database.Querier, unit *InventoryUnit) error {
	_, err := q.ExecContext(ctx, `
		UPDATE inventory_units
		SET location_id = $2, status = $3, condition = $4, is_rental_blocked = $5,
		    warranty_expiry = $6, next_maintenance_date = $7,
		    updated_at = $8, updated_by = $9, version = $10
		WHERE id = $1`,
		unit.ID, unit.LocationID, unit.Status, unit.Condition, unit.IsRentalBlocked,
		unit.WarrantyExpiry, unit.NextMaintenanceDate,
		unit.UpdatedAt, unit.UpdatedBy, unit.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "inventory_unit.save", Err: err}
	}
	return nil
}

// RecordStatusChange appends a unit transition to the history table.
func (r *UnitRepository) RecordStatusChange(ctx context.Context, q database.Querier, change StatusChange) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO unit_status_history
		(id, unit_id, old_status, new_status, old_condition, new_condition, reason, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		change.ID, change.UnitID, change.OldStatus, change.NewStatus,
		change.OldCondition, change.NewCondition, change.Reason, change.PerformedBy, change.CreatedAt)
	if err != nil {
		return &domain.DatabaseError{Op: "inventory_unit.record_status_change", Err: err}
	}
	return nil
}

// SerialExists checks global serial-number uniqueness.
func (r *UnitRepository) SerialExists(ctx context.Context, q database.Querier, serial string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS (SELECT 1 FROM inventory_units WHERE serial_number = $1)`, serial)
	if err != nil {
		return false, &domain.DatabaseError{Op: "inventory_unit.serial_exists", Err: err}
	}
	return exists, nil
}

// ListMaintenanceDue returns active units whose next maintenance date falls
// on or before the horizon.
func (r *UnitRepository) ListMaintenanceDue(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error) {
	return r.listByDateColumn(ctx, q, "next_maintenance_date", locationID, horizon)
}

// ListWarrantyExpiring returns active units whose warranty expires on or
// before the horizon.
func (r *UnitRepository) ListWarrantyExpiring(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error) {
	return r.listByDateColumn(ctx, q, "warranty_expiry", locationID, horizon)
}

func (r *UnitRepository) listByDateColumn(ctx context.Context, q database.Querier, column string, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM inventory_units
		WHERE %s IS NOT NULL AND %s <= $1 AND is_active`, unitColumns, column, column)
	args := []interface{}{horizon}
	if locationID != nil {
		query += ` AND location_id = $2`
		args = append(args, *locationID)
	}

	var units []InventoryUnit
	if err := sqlx.SelectContext(ctx, q, &units, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: fmt.Sprintf("inventory_unit.list_by_%s", column), Err: err}
	}
	return units, nil
}
