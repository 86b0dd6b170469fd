package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// RentalLifecycle tracks one rental from checkout to completion: current
// status, expected return date, and the fees accumulated across returns.
type RentalLifecycle struct {
	domain.Audit
	TransactionHeaderID uuid.UUID           `db:"transaction_header_id" json:"transaction_header_id"`
	CurrentStatus       domain.RentalStatus `db:"current_status" json:"current_status"`
	ExpectedReturnDate  *time.Time          `db:"expected_return_date" json:"expected_return_date,omitempty"`
	TotalLateFees       decimal.Decimal     `db:"total_late_fees" json:"total_late_fees"`
	TotalDamageFees     decimal.Decimal     `db:"total_damage_fees" json:"total_damage_fees"`
	TotalOtherFees      decimal.Decimal     `db:"total_other_fees" json:"total_other_fees"`
	TotalFees           decimal.Decimal     `db:"total_fees" json:"total_fees"`
}

// AddFees accumulates fees from one return event and keeps the sum current.
func (lc *RentalLifecycle) AddFees(late, damage, other decimal.Decimal) {
	lc.TotalLateFees = domain.RoundMoney(lc.TotalLateFees.Add(late))
	lc.TotalDamageFees = domain.RoundMoney(lc.TotalDamageFees.Add(damage))
	lc.TotalOtherFees = domain.RoundMoney(lc.TotalOtherFees.Add(other))
	lc.TotalFees = lc.TotalLateFees.Add(lc.TotalDamageFees).Add(lc.TotalOtherFees)
}

// Inspection is one damage-assessment record captured during a return.
type Inspection struct {
	ID                  uuid.UUID        `db:"id"`
	TransactionHeaderID uuid.UUID        `db:"transaction_header_id"`
	TransactionLineID   uuid.UUID        `db:"transaction_line_id"`
	DamageType          string           `db:"damage_type"`
	Severity            string           `db:"severity"`
	RepairCostEstimate  *decimal.Decimal `db:"repair_cost_estimate"`
	SerialNumbers       *string          `db:"serial_numbers"`
	Notes               *string          `db:"notes"`
	InspectedBy         uuid.UUID        `db:"inspected_by"`
	InspectedAt         time.Time        `db:"inspected_at"`
}

// LifecycleRepository handles rental lifecycle and inspection persistence.
type LifecycleRepository struct {
	log zerolog.Logger
}

// NewLifecycleRepository creates a new lifecycle repository.
func NewLifecycleRepository(log zerolog.Logger) *LifecycleRepository {
	return &LifecycleRepository{log: log.With().Str("repo", "rental_lifecycle").Logger()}
}

const lifecycleColumns = `id, transaction_header_id, current_status, expected_return_date,
	total_late_fees, total_damage_fees, total_other_fees, total_fees,
	created_at, updated_at, created_by, updated_by, is_active, version`

// Insert persists a new lifecycle for a rental header.
func (r *LifecycleRepository) Insert(ctx context.Context, q database.Querier, lc *RentalLifecycle) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rental_lifecycles
		(id, transaction_header_id, current_status, expected_return_date,
		 total_late_fees, total_damage_fees, total_other_fees, total_fees,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		lc.ID, lc.TransactionHeaderID, lc.CurrentStatus, lc.ExpectedReturnDate,
		lc.TotalLateFees, lc.TotalDamageFees, lc.TotalOtherFees, lc.TotalFees,
		lc.CreatedAt, lc.UpdatedAt, lc.CreatedBy, lc.IsActive, lc.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &domain.ConflictError{Entity: "rental lifecycle", Key: lc.TransactionHeaderID.String()}
		}
		return &domain.DatabaseError{Op: "rental_lifecycle.insert", Err: err}
	}
	return nil
}

// GetForUpdate locks and loads the lifecycle for a rental header.
func (r *LifecycleRepository) GetForUpdate(ctx context.Context, q database.Querier, headerID uuid.UUID) (*RentalLifecycle, error) {
	var lc RentalLifecycle
	err := sqlx.GetContext(ctx, q, &lc, `
		SELECT `+lifecycleColumns+` FROM rental_lifecycles
		WHERE transaction_header_id = $1 FOR UPDATE`, headerID)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.NewNotFoundError("rental lifecycle", headerID)
		}
		return nil, &domain.DatabaseError{Op: "rental_lifecycle.get_for_update", Err: err}
	}
	return &lc, nil
}

// Save writes the lifecycle status and fee totals back.
func (r *LifecycleRepository) Save(ctx context.Context, q database.Querier, lc *RentalLifecycle) error {
	_, err := q.ExecContext(ctx, `
		UPDATE rental_lifecycles
		SET current_status = $2, expected_return_date = $3,
		    total_late_fees = $4, total_damage_fees = $5, total_other_fees = $6, total_fees = $7,
		    updated_at = $8, updated_by = $9, version = $10
		WHERE id = $1`,
		lc.ID, lc.CurrentStatus, lc.ExpectedReturnDate,
		lc.TotalLateFees, lc.TotalDamageFees, lc.TotalOtherFees, lc.TotalFees,
		lc.UpdatedAt, lc.UpdatedBy, lc.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "rental_lifecycle.save", Err: err}
	}
	return nil
}

// InsertInspection records one damage assessment.
func (r *LifecycleRepository) InsertInspection(ctx context.Context, q database.Querier, ins *Inspection) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rental_inspections
		(id, transaction_header_id, transaction_line_id, damage_type, severity,
		 repair_cost_estimate, serial_numbers, notes, inspected_by, inspected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ins.ID, ins.TransactionHeaderID, ins.TransactionLineID, ins.DamageType, ins.Severity,
		ins.RepairCostEstimate, ins.SerialNumbers, ins.Notes, ins.InspectedBy, ins.InspectedAt)
	if err != nil {
		return &domain.DatabaseError{Op: "rental_inspection.insert", Err: err}
	}
	return nil
}
