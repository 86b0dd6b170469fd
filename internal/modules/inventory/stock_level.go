// Package inventory maintains per-(item,location) stock levels, serialized
// unit lifecycles and the append-only stock-movement ledger.
package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// StockLevel is the per-(item,location) aggregate holding the six quantity
// buckets. Invariant after every committed mutation:
//
//	on_hand = available + reserved + on_rent + damaged + under_repair + beyond_repair
//
// with every bucket non-negative. Mutating methods validate preconditions,
// update the buckets in memory and return a MovementDraft the service layer
// persists alongside the level inside the same database transaction.
type StockLevel struct {
	domain.Audit
	ItemID       uuid.UUID       `db:"item_id" json:"item_id"`
	LocationID   uuid.UUID       `db:"location_id" json:"location_id"`
	Available    decimal.Decimal `db:"quantity_available" json:"quantity_available"`
	Reserved     decimal.Decimal `db:"quantity_reserved" json:"quantity_reserved"`
	OnRent       decimal.Decimal `db:"quantity_on_rent" json:"quantity_on_rent"`
	Damaged      decimal.Decimal `db:"quantity_damaged" json:"quantity_damaged"`
	UnderRepair  decimal.Decimal `db:"quantity_under_repair" json:"quantity_under_repair"`
	BeyondRepair decimal.Decimal `db:"quantity_beyond_repair" json:"quantity_beyond_repair"`
	OnHand       decimal.Decimal `db:"quantity_on_hand" json:"quantity_on_hand"`
	AverageCost  decimal.Decimal `db:"average_cost" json:"average_cost"`
	TotalValue   decimal.Decimal `db:"total_value" json:"total_value"`
	ReorderPoint *decimal.Decimal `db:"reorder_point" json:"reorder_point,omitempty"`
	MaximumStock *decimal.Decimal `db:"maximum_stock" json:"maximum_stock,omitempty"`
	StockStatus  domain.StockStatus `db:"stock_status" json:"stock_status"`
}

// MovementDraft captures the ledger entry a bucket transition produced.
// QuantityBefore/After snapshot the available bucket under the row lock, so
// consecutive movements for one level chain without gaps. OnHandChange
// carries the on-hand delta so transitions that bypass available (write-offs,
// lost units) still ledger their physical effect.
type MovementDraft struct {
	Type           domain.StockMovementType
	QuantityChange decimal.Decimal
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
	OnHandChange   decimal.Decimal

	onHandBefore decimal.Decimal
}

// NewStockLevel creates an empty stock level for an (item, location) pair.
func NewStockLevel(itemID, locationID uuid.UUID, audit domain.Audit) *StockLevel {
	return &StockLevel{
		Audit:       audit,
		ItemID:      itemID,
		LocationID:  locationID,
		StockStatus: domain.StockStatusOutOfStock,
	}
}

// snapshot starts a draft from the current available and on-hand buckets.
func (s *StockLevel) snapshot(t domain.StockMovementType) MovementDraft {
	return MovementDraft{Type: t, QuantityBefore: s.Available, onHandBefore: s.OnHand}
}

// seal closes a draft against the mutated buckets.
func (s *StockLevel) seal(d MovementDraft) MovementDraft {
	d.QuantityAfter = s.Available
	d.QuantityChange = d.QuantityAfter.Sub(d.QuantityBefore)
	d.OnHandChange = s.OnHand.Sub(d.onHandBefore)
	s.RecomputeStatus()
	return d
}

// Adjust applies a signed on-hand delta. When affectAvailable is set the
// available bucket moves with it; otherwise the delta lands in the damaged
// bucket (write-offs and found damaged stock), so the bucket-sum identity
// holds either way.
func (s *StockLevel) Adjust(delta decimal.Decimal, affectAvailable bool) (MovementDraft, error) {
	if s.OnHand.Add(delta).IsNegative() {
		return MovementDraft{}, &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("adjustment of %s would make on_hand negative (currently %s)", delta, s.OnHand),
		}
	}
	if affectAvailable && s.Available.Add(delta).IsNegative() {
		return MovementDraft{}, &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("adjustment of %s would make available negative (currently %s)", delta, s.Available),
		}
	}
	if !affectAvailable && s.Damaged.Add(delta).IsNegative() {
		return MovementDraft{}, &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("adjustment of %s would make damaged negative (currently %s)", delta, s.Damaged),
		}
	}

	movementType := domain.MovementAdjustmentPositive
	if delta.IsNegative() {
		movementType = domain.MovementAdjustmentNegative
	}
	draft := s.snapshot(movementType)

	s.OnHand = s.OnHand.Add(delta)
	if affectAvailable {
		s.Available = s.Available.Add(delta)
	} else {
		s.Damaged = s.Damaged.Add(delta)
	}
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// Reserve moves quantity from available to reserved.
func (s *StockLevel) Reserve(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	if s.Available.LessThan(qty) {
		return MovementDraft{}, s.insufficient(qty)
	}
	draft := s.snapshot(domain.MovementReservation)
	s.Available = s.Available.Sub(qty)
	s.Reserved = s.Reserved.Add(qty)
	return s.seal(draft), nil
}

// ReleaseReserve moves quantity from reserved back to available.
func (s *StockLevel) ReleaseReserve(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	if s.Reserved.LessThan(qty) {
		return MovementDraft{}, &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("cannot release %s, only %s reserved", qty, s.Reserved),
		}
	}
	draft := s.snapshot(domain.MovementReservationRelease)
	s.Reserved = s.Reserved.Sub(qty)
	s.Available = s.Available.Add(qty)
	return s.seal(draft), nil
}

// RentOut moves quantity from available to on-rent.
func (s *StockLevel) RentOut(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	if s.Available.LessThan(qty) {
		return MovementDraft{}, s.insufficient(qty)
	}
	draft := s.snapshot(domain.MovementRentalOut)
	s.Available = s.Available.Sub(qty)
	s.OnRent = s.OnRent.Add(qty)
	return s.seal(draft), nil
}

// Sell consumes available quantity permanently (reserve-and-consume in one
// step): available and on-hand both decrease.
func (s *StockLevel) Sell(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	if s.Available.LessThan(qty) {
		return MovementDraft{}, s.insufficient(qty)
	}
	draft := s.snapshot(domain.MovementSale)
	s.Available = s.Available.Sub(qty)
	s.OnHand = s.OnHand.Sub(qty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// Receive adds purchased quantity to available and on-hand.
func (s *StockLevel) Receive(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	draft := s.snapshot(domain.MovementPurchase)
	s.Available = s.Available.Add(qty)
	s.OnHand = s.OnHand.Add(qty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// ReturnFromRent routes a rental return across buckets. Damaged and
// beyond-repair quantities must never reach available; lost quantity leaves
// on-hand entirely.
func (s *StockLevel) ReturnFromRent(qty, damagedQty, beyondRepairQty, lostQty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	for _, q := range []decimal.Decimal{damagedQty, beyondRepairQty, lostQty} {
		if q.IsNegative() {
			return MovementDraft{}, domain.NewValidationError("quantity", "bucket quantities must be non-negative")
		}
	}
	good := qty.Sub(damagedQty).Sub(beyondRepairQty).Sub(lostQty)
	if good.IsNegative() {
		return MovementDraft{}, domain.NewValidationError("quantity",
			"damaged + beyond_repair + lost exceeds returned quantity")
	}
	if s.OnRent.LessThan(qty) {
		return MovementDraft{}, &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("cannot return %s, only %s on rent", qty, s.OnRent),
		}
	}

	movementType := domain.MovementRentalReturn
	switch {
	case good.IsZero() && (damagedQty.IsPositive() || beyondRepairQty.IsPositive()) && lostQty.IsZero():
		movementType = domain.MovementRentalReturnDamaged
	case damagedQty.IsPositive() || beyondRepairQty.IsPositive() || lostQty.IsPositive():
		movementType = domain.MovementRentalReturnMixed
	}
	draft := s.snapshot(movementType)

	s.OnRent = s.OnRent.Sub(qty)
	s.Available = s.Available.Add(good)
	s.Damaged = s.Damaged.Add(damagedQty)
	s.BeyondRepair = s.BeyondRepair.Add(beyondRepairQty)
	s.OnHand = s.OnHand.Sub(lostQty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// TransferOut removes available quantity at the source of a transfer.
func (s *StockLevel) TransferOut(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	if s.Available.LessThan(qty) {
		return MovementDraft{}, s.insufficient(qty)
	}
	draft := s.snapshot(domain.MovementTransferOut)
	s.Available = s.Available.Sub(qty)
	s.OnHand = s.OnHand.Sub(qty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// TransferIn adds quantity at the destination of a transfer.
func (s *StockLevel) TransferIn(qty decimal.Decimal) (MovementDraft, error) {
	if err := requirePositive(qty); err != nil {
		return MovementDraft{}, err
	}
	draft := s.snapshot(domain.MovementTransferIn)
	s.Available = s.Available.Add(qty)
	s.OnHand = s.OnHand.Add(qty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
	return s.seal(draft), nil
}

// UpdateAverageCost folds a newly received lot into the moving average cost.
// Cost metadata only; no movement is produced. Rental returns never call
// this.
func (s *StockLevel) UpdateAverageCost(newQty, newCost decimal.Decimal) {
	s.AverageCost = domain.WeightedAverageCost(s.AverageCost, s.OnHand.Sub(newQty), newCost, newQty)
	s.TotalValue = domain.RoundMoney(s.AverageCost.Mul(s.OnHand))
}

// CanFulfillOrder reports whether available stock covers the quantity.
func (s *StockLevel) CanFulfillOrder(qty decimal.Decimal) bool {
	return qty.IsPositive() && s.Available.GreaterThanOrEqual(qty)
}

// IsLowStock reports whether available has fallen to the reorder point.
func (s *StockLevel) IsLowStock() bool {
	return s.ReorderPoint != nil && s.Available.LessThanOrEqual(*s.ReorderPoint)
}

// UtilizationRate is the on-rent share of on-hand stock, in [0,1].
func (s *StockLevel) UtilizationRate() decimal.Decimal {
	if s.OnHand.IsZero() {
		return decimal.Zero
	}
	return s.OnRent.DivRound(s.OnHand, domain.RatePlaces)
}

// AvailabilityRate is the available share of on-hand stock, in [0,1].
func (s *StockLevel) AvailabilityRate() decimal.Decimal {
	if s.OnHand.IsZero() {
		return decimal.Zero
	}
	return s.Available.DivRound(s.OnHand, domain.RatePlaces)
}

// RecomputeStatus derives the stock status from the current buckets.
func (s *StockLevel) RecomputeStatus() {
	switch {
	case s.OnHand.IsZero():
		s.StockStatus = domain.StockStatusOutOfStock
	case s.IsLowStock():
		s.StockStatus = domain.StockStatusLowStock
	case s.MaximumStock != nil && s.OnHand.GreaterThan(*s.MaximumStock):
		s.StockStatus = domain.StockStatusOverstocked
	default:
		s.StockStatus = domain.StockStatusInStock
	}
}

// CheckInvariants verifies the bucket-sum identity and non-negativity. The
// service layer re-checks this before every commit.
func (s *StockLevel) CheckInvariants() error {
	buckets := []struct {
		name string
		qty  decimal.Decimal
	}{
		{"available", s.Available},
		{"reserved", s.Reserved},
		{"on_rent", s.OnRent},
		{"damaged", s.Damaged},
		{"under_repair", s.UnderRepair},
		{"beyond_repair", s.BeyondRepair},
	}
	sum := decimal.Zero
	for _, b := range buckets {
		if b.qty.IsNegative() {
			return &domain.InventoryConsistencyError{
				Message: fmt.Sprintf("bucket %s is negative: %s", b.name, b.qty),
			}
		}
		sum = sum.Add(b.qty)
	}
	if !sum.Equal(s.OnHand) {
		return &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("bucket sum %s does not equal on_hand %s", sum, s.OnHand),
		}
	}
	return nil
}

func (s *StockLevel) insufficient(qty decimal.Decimal) error {
	return &domain.InsufficientStockError{
		ItemID:     s.ItemID,
		LocationID: s.LocationID,
		Requested:  qty,
		Available:  s.Available,
	}
}

func requirePositive(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return domain.NewValidationError("quantity", "quantity must be positive")
	}
	return nil
}
