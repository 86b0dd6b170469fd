package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// InventoryUnit is one serialized physical asset with its own lifecycle.
type InventoryUnit struct {
	domain.Audit
	ItemID              uuid.UUID            `db:"item_id" json:"item_id"`
	LocationID          uuid.UUID            `db:"location_id" json:"location_id"`
	SKU                 string               `db:"sku" json:"sku"`
	SerialNumber        *string              `db:"serial_number" json:"serial_number,omitempty"`
	BatchCode           *string              `db:"batch_code" json:"batch_code,omitempty"`
	Status              domain.UnitStatus    `db:"status" json:"status"`
	Condition           domain.UnitCondition `db:"condition" json:"condition"`
	PurchasePrice       decimal.Decimal      `db:"purchase_price" json:"purchase_price"`
	WarrantyExpiry      *time.Time           `db:"warranty_expiry" json:"warranty_expiry,omitempty"`
	NextMaintenanceDate *time.Time           `db:"next_maintenance_date" json:"next_maintenance_date,omitempty"`
	IsRentalBlocked     bool                 `db:"is_rental_blocked" json:"is_rental_blocked"`
	AcquiredAt          time.Time            `db:"acquired_at" json:"acquired_at"`
}

// allowedTransitions enumerates the status state machine. Missing sources
// (BEYOND_REPAIR, SOLD, LOST) are terminal.
var allowedTransitions = map[domain.UnitStatus][]domain.UnitStatus{
	domain.UnitStatusAvailable: {
		domain.UnitStatusReserved, domain.UnitStatusRented, domain.UnitStatusSold,
		domain.UnitStatusUnderRepair, domain.UnitStatusDamaged, domain.UnitStatusLost,
	},
	domain.UnitStatusReserved: {
		domain.UnitStatusAvailable, domain.UnitStatusRented, domain.UnitStatusSold,
	},
	domain.UnitStatusRented: {
		domain.UnitStatusAvailable, domain.UnitStatusDamaged, domain.UnitStatusBeyondRepair,
		domain.UnitStatusLost, domain.UnitStatusUnderRepair,
	},
	domain.UnitStatusUnderRepair: {
		domain.UnitStatusAvailable, domain.UnitStatusBeyondRepair,
	},
	domain.UnitStatusDamaged: {
		domain.UnitStatusUnderRepair, domain.UnitStatusBeyondRepair, domain.UnitStatusAvailable,
	},
}

// CanTransition reports whether the move is in the allowed set. A damaged
// unit may only go back to available once a repair has been recorded.
func (u *InventoryUnit) CanTransition(to domain.UnitStatus, repaired bool) bool {
	if u.Status == domain.UnitStatusDamaged && to == domain.UnitStatusAvailable && !repaired {
		return false
	}
	for _, allowed := range allowedTransitions[u.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusChange records one unit transition for the audit history.
type StatusChange struct {
	ID           uuid.UUID             `db:"id"`
	UnitID       uuid.UUID             `db:"unit_id"`
	OldStatus    domain.UnitStatus     `db:"old_status"`
	NewStatus    domain.UnitStatus     `db:"new_status"`
	OldCondition *domain.UnitCondition `db:"old_condition"`
	NewCondition *domain.UnitCondition `db:"new_condition"`
	Reason       string                `db:"reason"`
	PerformedBy  uuid.UUID             `db:"performed_by"`
	CreatedAt    time.Time             `db:"created_at"`
}

// TransitionOptions modifies a status transition.
type TransitionOptions struct {
	// Condition, when set, updates the unit condition alongside the status.
	Condition *domain.UnitCondition
	// Repaired marks that a repair record exists, unlocking DAMAGED -> AVAILABLE.
	Repaired bool
}

// Transition moves the unit to a new status, recording old and new state.
func (u *InventoryUnit) Transition(to domain.UnitStatus, actor uuid.UUID, reason string, now time.Time, opts TransitionOptions) (StatusChange, error) {
	if !to.IsValid() {
		return StatusChange{}, domain.NewValidationError("status", "unknown unit status")
	}
	if !u.CanTransition(to, opts.Repaired) {
		return StatusChange{}, &domain.IllegalStateTransitionError{
			Entity: "inventory unit",
			From:   string(u.Status),
			To:     string(to),
		}
	}

	change := StatusChange{
		ID:          uuid.New(),
		UnitID:      u.ID,
		OldStatus:   u.Status,
		NewStatus:   to,
		Reason:      reason,
		PerformedBy: actor,
		CreatedAt:   now,
	}
	oldCondition := u.Condition
	change.OldCondition = &oldCondition

	u.Status = to
	if opts.Condition != nil {
		u.Condition = *opts.Condition
	}
	newCondition := u.Condition
	change.NewCondition = &newCondition
	u.Touch(actor, now)
	return change, nil
}

// IsRentalEligible reports whether the unit can be checked out for rental.
func (u *InventoryUnit) IsRentalEligible() bool {
	return u.Status == domain.UnitStatusAvailable && !u.IsRentalBlocked
}
