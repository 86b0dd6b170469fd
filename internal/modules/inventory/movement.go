package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// StockMovement is one immutable ledger entry. Movements are INSERT-only:
// business code never updates or deletes them; only the retention job purges
// entries past the configured horizon after archiving them.
type StockMovement struct {
	ID                  uuid.UUID                `db:"id" json:"id"`
	StockLevelID        uuid.UUID                `db:"stock_level_id" json:"stock_level_id"`
	ItemID              uuid.UUID                `db:"item_id" json:"item_id"`
	LocationID          uuid.UUID                `db:"location_id" json:"location_id"`
	MovementType        domain.StockMovementType `db:"movement_type" json:"movement_type"`
	QuantityChange      decimal.Decimal          `db:"quantity_change" json:"quantity_change"`
	QuantityBefore      decimal.Decimal          `db:"quantity_before" json:"quantity_before"`
	QuantityAfter       decimal.Decimal          `db:"quantity_after" json:"quantity_after"`
	OnHandChange        decimal.Decimal          `db:"on_hand_change" json:"on_hand_change"`
	TransactionHeaderID *uuid.UUID               `db:"transaction_header_id" json:"transaction_header_id,omitempty"`
	TransactionLineID   *uuid.UUID               `db:"transaction_line_id" json:"transaction_line_id,omitempty"`
	UnitCost            *decimal.Decimal         `db:"unit_cost" json:"unit_cost,omitempty"`
	Reason              string                   `db:"reason" json:"reason"`
	Notes               *string                  `db:"notes" json:"notes,omitempty"`
	CorrelationID       *uuid.UUID               `db:"correlation_id" json:"correlation_id,omitempty"`
	ApprovedBy          *uuid.UUID               `db:"approved_by" json:"approved_by,omitempty"`
	RequiresApproval    bool                     `db:"requires_approval" json:"requires_approval"`
	PerformedBy         uuid.UUID                `db:"performed_by" json:"performed_by"`
	CreatedAt           time.Time                `db:"created_at" json:"created_at"`
}

// MovementContext carries the reference fields a composite operation stamps
// onto the movements it produces.
type MovementContext struct {
	TransactionHeaderID *uuid.UUID
	TransactionLineID   *uuid.UUID
	UnitCost            *decimal.Decimal
	Reason              string
	Notes               *string
	CorrelationID       *uuid.UUID
	RequiresApproval    bool
}

// buildMovement materializes a draft into a full ledger entry for a level.
func buildMovement(level *StockLevel, draft MovementDraft, mctx MovementContext, actor uuid.UUID, now time.Time) *StockMovement {
	return &StockMovement{
		ID:                  uuid.New(),
		StockLevelID:        level.ID,
		ItemID:              level.ItemID,
		LocationID:          level.LocationID,
		MovementType:        draft.Type,
		QuantityChange:      draft.QuantityChange,
		QuantityBefore:      draft.QuantityBefore,
		QuantityAfter:       draft.QuantityAfter,
		OnHandChange:        draft.OnHandChange,
		TransactionHeaderID: mctx.TransactionHeaderID,
		TransactionLineID:   mctx.TransactionLineID,
		UnitCost:            mctx.UnitCost,
		Reason:              mctx.Reason,
		Notes:               mctx.Notes,
		CorrelationID:       mctx.CorrelationID,
		RequiresApproval:    mctx.RequiresApproval,
		PerformedBy:         actor,
		CreatedAt:           now,
	}
}

// MovementFilter narrows ledger queries.
type MovementFilter struct {
	ItemID              *uuid.UUID
	LocationID          *uuid.UUID
	StockLevelID        *uuid.UUID
	MovementType        *domain.StockMovementType
	TransactionHeaderID *uuid.UUID
	From                *time.Time
	To                  *time.Time
	Limit               int
}
