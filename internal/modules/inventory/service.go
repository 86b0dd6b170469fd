package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/sku"
)

// StockRepositoryInterface defines the stock-level persistence contract.
type StockRepositoryInterface interface {
	GetForUpdate(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error)
	Get(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error)
	Insert(ctx context.Context, q database.Querier, level *StockLevel) error
	Save(ctx context.Context, q database.Querier, level *StockLevel) error
	ListLowStock(ctx context.Context, q database.Querier, locationID *uuid.UUID) ([]StockLevel, error)
}

// UnitRepositoryInterface defines the serialized-unit persistence contract.
type UnitRepositoryInterface interface {
	Insert(ctx context.Context, q database.Querier, unit *InventoryUnit) error
	SelectForRental(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error)
	SelectForSale(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error)
	GetByIDsForUpdate(ctx context.Context, q database.Querier, ids []uuid.UUID) ([]InventoryUnit, error)
	GetBySerials(ctx context.Context, q database.Querier, serials []string) ([]InventoryUnit, error)
	Save(ctx context.Context, q database.Querier, unit *InventoryUnit) error
	RecordStatusChange(ctx context.Context, q database.Querier, change StatusChange) error
	SerialExists(ctx context.Context, q database.Querier, serial string) (bool, error)
	ListMaintenanceDue(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error)
	ListWarrantyExpiring(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error)
}

// MovementRepositoryInterface defines the ledger contract.
type MovementRepositoryInterface interface {
	Append(ctx context.Context, q database.Querier, m *StockMovement) error
	List(ctx context.Context, q database.Querier, filter MovementFilter) ([]StockMovement, error)
	Summarize(ctx context.Context, q database.Querier, filter MovementFilter) (map[domain.StockMovementType]decimal.Decimal, error)
}

// CatalogProvider resolves items and locations for validation.
type CatalogProvider interface {
	GetItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error)
	GetLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error)
}

// SKUMinter issues unit SKUs inside the caller's transaction.
type SKUMinter interface {
	GetOrCreateIn(ctx context.Context, q database.Querier, actor uuid.UUID, params sku.CreateParams) (*sku.Sequence, error)
	GenerateBulkIn(ctx context.Context, q database.Querier, actor uuid.UUID, sequenceID uuid.UUID, count int, args sku.RenderArgs) ([]sku.GeneratedSKU, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Service orchestrates stock levels, serialized units and the movement
// ledger. Every public operation runs in a single database transaction; the
// *In variants compose into a transaction the caller already holds.
type Service struct {
	runner    TxRunner
	levels    StockRepositoryInterface
	units     UnitRepositoryInterface
	movements MovementRepositoryInterface
	catalog   CatalogProvider
	minter    SKUMinter
	now       func() time.Time
	log       zerolog.Logger

	// MaintenanceHorizonDays bounds the MAINTENANCE_DUE alert window.
	MaintenanceHorizonDays int
}

// NewService creates a new inventory service.
func NewService(
	runner TxRunner,
	levels StockRepositoryInterface,
	units UnitRepositoryInterface,
	movements MovementRepositoryInterface,
	catalog CatalogProvider,
	minter SKUMinter,
	log zerolog.Logger,
) *Service {
	return &Service{
		runner:                 runner,
		levels:                 levels,
		units:                  units,
		movements:              movements,
		catalog:                catalog,
		minter:                 minter,
		now:                    time.Now,
		log:                    log.With().Str("service", "inventory").Logger(),
		MaintenanceHorizonDays: 14,
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// InitializeInput describes a stock-level setup request.
type InitializeInput struct {
	ItemID       uuid.UUID
	LocationID   uuid.UUID
	InitialQty   decimal.Decimal
	ReorderPoint *decimal.Decimal
	MaximumStock *decimal.Decimal
}

// InitializeStockLevel gets or creates the stock level for an (item,
// location) pair, seeding it with the initial quantity when newly created.
func (s *Service) InitializeStockLevel(ctx context.Context, actor uuid.UUID, input InitializeInput) (*StockLevel, error) {
	var result *StockLevel
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		if _, err := s.requireItem(ctx, q, input.ItemID); err != nil {
			return err
		}
		if _, err := s.requireLocation(ctx, q, input.LocationID); err != nil {
			return err
		}

		level, created, err := s.getOrCreateLevelIn(ctx, q, actor, input.ItemID, input.LocationID)
		if err != nil {
			return err
		}
		level.ReorderPoint = input.ReorderPoint
		level.MaximumStock = input.MaximumStock

		if created && input.InitialQty.IsPositive() {
			draft, err := level.Adjust(input.InitialQty, true)
			if err != nil {
				return err
			}
			movement := buildMovement(level, draft, MovementContext{Reason: "Initial stock setup"}, actor, s.now())
			if err := s.movements.Append(ctx, q, movement); err != nil {
				return err
			}
		}

		level.RecomputeStatus()
		level.Touch(actor, s.now())
		if err := s.saveChecked(ctx, q, level); err != nil {
			return err
		}
		result = level
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReceiveInput describes a physical receipt of units.
type ReceiveInput struct {
	ItemID        uuid.UUID
	LocationID    uuid.UUID
	Quantity      int
	UnitCost      decimal.Decimal
	SerialNumbers []string
	BatchCode     *string
	SupplierID    *uuid.UUID
	PONumber      *string
	HeaderID      *uuid.UUID
	LineID        *uuid.UUID
}

// ReceiveUnits creates the units, raises the stock level and folds the lot
// into the moving average cost, all in one transaction.
func (s *Service) ReceiveUnits(ctx context.Context, actor uuid.UUID, input ReceiveInput) ([]InventoryUnit, error) {
	var result []InventoryUnit
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		units, err := s.ReceiveUnitsIn(ctx, q, actor, input)
		if err != nil {
			return err
		}
		result = units
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReceiveUnitsIn is ReceiveUnits composed into the caller's transaction.
func (s *Service) ReceiveUnitsIn(ctx context.Context, q database.Querier, actor uuid.UUID, input ReceiveInput) ([]InventoryUnit, error) {
	if input.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "quantity must be positive")
	}
	if input.UnitCost.IsNegative() {
		return nil, domain.NewValidationError("unit_cost", "unit cost must be non-negative")
	}

	item, err := s.requireItem(ctx, q, input.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireLocation(ctx, q, input.LocationID); err != nil {
		return nil, err
	}

	if len(input.SerialNumbers) > 0 && len(input.SerialNumbers) != input.Quantity {
		return nil, domain.NewValidationError("serial_numbers",
			fmt.Sprintf("got %d serial numbers for %d units", len(input.SerialNumbers), input.Quantity))
	}
	if item.SerialNumberRequired && len(input.SerialNumbers) == 0 {
		return nil, domain.NewValidationError("serial_numbers", "item requires serial numbers")
	}
	for _, serial := range input.SerialNumbers {
		exists, err := s.units.SerialExists(ctx, q, serial)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &domain.ConflictError{Entity: "serial number", Key: serial}
		}
	}

	level, _, err := s.getOrCreateLevelIn(ctx, q, actor, input.ItemID, input.LocationID)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(input.Quantity))
	draft, err := level.Receive(qty)
	if err != nil {
		return nil, err
	}
	level.UpdateAverageCost(qty, input.UnitCost)

	skus, err := s.mintUnitSKUs(ctx, q, actor, item, input.Quantity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	units := make([]InventoryUnit, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		unit := InventoryUnit{
			Audit:         domain.NewAudit(actor, now),
			ItemID:        input.ItemID,
			LocationID:    input.LocationID,
			SKU:           skus[i],
			BatchCode:     input.BatchCode,
			Status:        domain.UnitStatusAvailable,
			Condition:     domain.ConditionGood,
			PurchasePrice: input.UnitCost,
			AcquiredAt:    now,
		}
		if len(input.SerialNumbers) > 0 {
			serial := input.SerialNumbers[i]
			unit.SerialNumber = &serial
		}
		if err := s.units.Insert(ctx, q, &unit); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	reason := "Stock receipt"
	if input.PONumber != nil {
		reason = fmt.Sprintf("Stock receipt (PO %s)", *input.PONumber)
	}
	movement := buildMovement(level, draft, MovementContext{
		TransactionHeaderID: input.HeaderID,
		TransactionLineID:   input.LineID,
		UnitCost:            &input.UnitCost,
		Reason:              reason,
	}, actor, now)
	if err := s.movements.Append(ctx, q, movement); err != nil {
		return nil, err
	}

	level.Touch(actor, now)
	if err := s.saveChecked(ctx, q, level); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("item_id", input.ItemID.String()).
		Str("location_id", input.LocationID.String()).
		Int("quantity", input.Quantity).
		Msg("Received units")
	return units, nil
}

// CheckoutInput describes a rental checkout.
type CheckoutInput struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
	Quantity   decimal.Decimal
	CustomerID uuid.UUID
	HeaderID   *uuid.UUID
	LineID     *uuid.UUID
}

// CheckoutForRental moves the oldest available units to RENTED and the stock
// quantity from available to on-rent.
func (s *Service) CheckoutForRental(ctx context.Context, actor uuid.UUID, input CheckoutInput) ([]uuid.UUID, error) {
	var result []uuid.UUID
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		ids, err := s.CheckoutForRentalIn(ctx, q, actor, input)
		if err != nil {
			return err
		}
		result = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckoutForRentalIn is CheckoutForRental composed into the caller's
// transaction. The stock-level lock is taken before any unit locks.
func (s *Service) CheckoutForRentalIn(ctx context.Context, q database.Querier, actor uuid.UUID, input CheckoutInput) ([]uuid.UUID, error) {
	item, err := s.requireItem(ctx, q, input.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsRentable {
		return nil, domain.NewValidationError("item_id", "item is not rentable")
	}

	level, err := s.levels.GetForUpdate(ctx, q, input.ItemID, input.LocationID)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, &domain.InsufficientStockError{
			ItemID: input.ItemID, LocationID: input.LocationID,
			Requested: input.Quantity, Available: decimal.Zero,
		}
	}
	if !level.CanFulfillOrder(input.Quantity) {
		return nil, &domain.InsufficientStockError{
			ItemID: input.ItemID, LocationID: input.LocationID,
			Requested: input.Quantity, Available: level.Available,
		}
	}

	draft, err := level.RentOut(input.Quantity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var unitIDs []uuid.UUID
	if input.Quantity.IsInteger() {
		count := int(input.Quantity.IntPart())
		units, err := s.units.SelectForRental(ctx, q, input.ItemID, input.LocationID, count)
		if err != nil {
			return nil, err
		}
		if len(units) < count {
			// The level claims more available stock than allocatable units
			// exist. Surface the drift instead of checking out short.
			return nil, &domain.InsufficientUnitsError{
				ItemID: input.ItemID, LocationID: input.LocationID,
				Requested: count, Found: len(units),
			}
		}
		for i := range units {
			unit := &units[i]
			change, err := unit.Transition(domain.UnitStatusRented, actor,
				fmt.Sprintf("Rental checkout for customer %s", input.CustomerID), now, TransitionOptions{})
			if err != nil {
				return nil, err
			}
			if err := s.units.Save(ctx, q, unit); err != nil {
				return nil, err
			}
			if err := s.units.RecordStatusChange(ctx, q, change); err != nil {
				return nil, err
			}
			unitIDs = append(unitIDs, unit.ID)
		}
	}

	movement := buildMovement(level, draft, MovementContext{
		TransactionHeaderID: input.HeaderID,
		TransactionLineID:   input.LineID,
		Reason:              "Rental checkout",
	}, actor, now)
	if err := s.movements.Append(ctx, q, movement); err != nil {
		return nil, err
	}

	level.Touch(actor, now)
	if err := s.saveChecked(ctx, q, level); err != nil {
		return nil, err
	}
	return unitIDs, nil
}

// ConsumeForSaleIn removes sold quantity from available stock and marks the
// oldest units SOLD, inside the caller's transaction.
func (s *Service) ConsumeForSaleIn(ctx context.Context, q database.Querier, actor uuid.UUID, input CheckoutInput) ([]uuid.UUID, error) {
	item, err := s.requireItem(ctx, q, input.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsSaleable {
		return nil, domain.NewValidationError("item_id", "item is not saleable")
	}

	level, err := s.levels.GetForUpdate(ctx, q, input.ItemID, input.LocationID)
	if err != nil {
		return nil, err
	}
	if level == nil || !level.CanFulfillOrder(input.Quantity) {
		available := decimal.Zero
		if level != nil {
			available = level.Available
		}
		return nil, &domain.InsufficientStockError{
			ItemID: input.ItemID, LocationID: input.LocationID,
			Requested: input.Quantity, Available: available,
		}
	}

	draft, err := level.Sell(input.Quantity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var unitIDs []uuid.UUID
	if input.Quantity.IsInteger() {
		count := int(input.Quantity.IntPart())
		units, err := s.units.SelectForSale(ctx, q, input.ItemID, input.LocationID, count)
		if err != nil {
			return nil, err
		}
		if len(units) < count {
			return nil, &domain.InsufficientUnitsError{
				ItemID: input.ItemID, LocationID: input.LocationID,
				Requested: count, Found: len(units),
			}
		}
		for i := range units {
			unit := &units[i]
			change, err := unit.Transition(domain.UnitStatusSold, actor,
				fmt.Sprintf("Sold to customer %s", input.CustomerID), now, TransitionOptions{})
			if err != nil {
				return nil, err
			}
			if err := s.units.Save(ctx, q, unit); err != nil {
				return nil, err
			}
			if err := s.units.RecordStatusChange(ctx, q, change); err != nil {
				return nil, err
			}
			unitIDs = append(unitIDs, unit.ID)
		}
	}

	movement := buildMovement(level, draft, MovementContext{
		TransactionHeaderID: input.HeaderID,
		TransactionLineID:   input.LineID,
		Reason:              "Sale",
	}, actor, now)
	if err := s.movements.Append(ctx, q, movement); err != nil {
		return nil, err
	}

	level.Touch(actor, now)
	if err := s.saveChecked(ctx, q, level); err != nil {
		return nil, err
	}
	return unitIDs, nil
}

// UnitOutcome names where one returned unit is routed.
type UnitOutcome string

const (
	OutcomeGood         UnitOutcome = "GOOD"
	OutcomeDamaged      UnitOutcome = "DAMAGED"
	OutcomeBeyondRepair UnitOutcome = "BEYOND_REPAIR"
	OutcomeLost         UnitOutcome = "LOST"
)

// UnitDisposition routes one named unit on return.
type UnitDisposition struct {
	UnitID  uuid.UUID
	Outcome UnitOutcome
}

// ReturnInput describes the physical side of one rental-return line.
type ReturnInput struct {
	ItemID          uuid.UUID
	LocationID      uuid.UUID
	Quantity        decimal.Decimal
	DamagedQty      decimal.Decimal
	BeyondRepairQty decimal.Decimal
	LostQty         decimal.Decimal
	Dispositions    []UnitDisposition
	ConditionNotes  *string
	HeaderID        *uuid.UUID
	LineID          *uuid.UUID
}

// ProcessReturn routes returned quantity across buckets and transitions the
// named units. Damaged and beyond-repair quantities never reach available;
// the movement draft is re-checked so the available delta equals exactly the
// good quantity.
func (s *Service) ProcessReturn(ctx context.Context, actor uuid.UUID, input ReturnInput) error {
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		return s.ProcessReturnIn(ctx, q, actor, input)
	})
}

// ProcessReturnIn is ProcessReturn composed into the caller's transaction.
// Lock order: stock level first, then units in ascending id order.
func (s *Service) ProcessReturnIn(ctx context.Context, q database.Querier, actor uuid.UUID, input ReturnInput) error {
	level, err := s.levels.GetForUpdate(ctx, q, input.ItemID, input.LocationID)
	if err != nil {
		return err
	}
	if level == nil {
		return &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("no stock level for item %s at location %s", input.ItemID, input.LocationID),
		}
	}

	good := input.Quantity.Sub(input.DamagedQty).Sub(input.BeyondRepairQty).Sub(input.LostQty)
	draft, err := level.ReturnFromRent(input.Quantity, input.DamagedQty, input.BeyondRepairQty, input.LostQty)
	if err != nil {
		return err
	}
	// The available bucket may only grow by the good quantity, never by
	// damaged or beyond-repair items.
	if !draft.QuantityChange.Equal(good) {
		return &domain.InventoryConsistencyError{
			Message: fmt.Sprintf("available changed by %s on return, expected %s", draft.QuantityChange, good),
		}
	}

	now := s.now()
	if len(input.Dispositions) > 0 {
		ids := make([]uuid.UUID, 0, len(input.Dispositions))
		outcomeByID := make(map[uuid.UUID]UnitOutcome, len(input.Dispositions))
		for _, d := range input.Dispositions {
			ids = append(ids, d.UnitID)
			outcomeByID[d.UnitID] = d.Outcome
		}
		units, err := s.units.GetByIDsForUpdate(ctx, q, ids)
		if err != nil {
			return err
		}
		if len(units) != len(ids) {
			return &domain.InventoryConsistencyError{
				Message: fmt.Sprintf("found %d of %d returned units", len(units), len(ids)),
			}
		}
		for i := range units {
			unit := &units[i]
			if err := s.applyReturnOutcome(ctx, q, unit, outcomeByID[unit.ID], actor, now, input.ConditionNotes); err != nil {
				return err
			}
		}
	}

	notes := input.ConditionNotes
	movement := buildMovement(level, draft, MovementContext{
		TransactionHeaderID: input.HeaderID,
		TransactionLineID:   input.LineID,
		Reason:              "Rental return",
		Notes:               notes,
	}, actor, now)
	if err := s.movements.Append(ctx, q, movement); err != nil {
		return err
	}

	level.Touch(actor, now)
	return s.saveChecked(ctx, q, level)
}

func (s *Service) applyReturnOutcome(ctx context.Context, q database.Querier, unit *InventoryUnit, outcome UnitOutcome, actor uuid.UUID, now time.Time, notes *string) error {
	reason := "Rental return"
	if notes != nil {
		reason = fmt.Sprintf("Rental return: %s", *notes)
	}

	var to domain.UnitStatus
	opts := TransitionOptions{}
	switch outcome {
	case OutcomeGood, "":
		to = domain.UnitStatusAvailable
		condition := domain.ConditionGood
		opts.Condition = &condition
	case OutcomeDamaged:
		to = domain.UnitStatusDamaged
		condition := domain.ConditionDamaged
		opts.Condition = &condition
	case OutcomeBeyondRepair:
		to = domain.UnitStatusBeyondRepair
		condition := domain.ConditionDamaged
		opts.Condition = &condition
	case OutcomeLost:
		to = domain.UnitStatusLost
	default:
		return domain.NewValidationError("outcome", fmt.Sprintf("unknown return outcome %q", outcome))
	}

	change, err := unit.Transition(to, actor, reason, now, opts)
	if err != nil {
		return err
	}
	if err := s.units.Save(ctx, q, unit); err != nil {
		return err
	}
	return s.units.RecordStatusChange(ctx, q, change)
}

// TransferInput describes an inter-location stock transfer.
type TransferInput struct {
	ItemID         uuid.UUID
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Quantity       decimal.Decimal
	Reason         string
}

// Transfer moves available stock between locations. Both movements carry the
// same reason and a shared correlation id. Level locks are acquired in a
// stable order (byte order of the location ids) so concurrent opposing
// transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, actor uuid.UUID, input TransferInput) error {
	if input.FromLocationID == input.ToLocationID {
		return domain.NewValidationError("to_location_id", "source and destination are the same location")
	}
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		if _, err := s.requireItem(ctx, q, input.ItemID); err != nil {
			return err
		}
		if _, err := s.requireLocation(ctx, q, input.FromLocationID); err != nil {
			return err
		}
		if _, err := s.requireLocation(ctx, q, input.ToLocationID); err != nil {
			return err
		}

		var source, dest *StockLevel
		lockSource := func() error {
			lvl, err := s.levels.GetForUpdate(ctx, q, input.ItemID, input.FromLocationID)
			if err != nil {
				return err
			}
			if lvl == nil {
				return &domain.InsufficientStockError{
					ItemID: input.ItemID, LocationID: input.FromLocationID,
					Requested: input.Quantity, Available: decimal.Zero,
				}
			}
			source = lvl
			return nil
		}
		lockDest := func() error {
			lvl, _, err := s.getOrCreateLevelIn(ctx, q, actor, input.ItemID, input.ToLocationID)
			if err != nil {
				return err
			}
			dest = lvl
			return nil
		}

		if bytes.Compare(input.FromLocationID[:], input.ToLocationID[:]) < 0 {
			if err := lockSource(); err != nil {
				return err
			}
			if err := lockDest(); err != nil {
				return err
			}
		} else {
			if err := lockDest(); err != nil {
				return err
			}
			if err := lockSource(); err != nil {
				return err
			}
		}

		outDraft, err := source.TransferOut(input.Quantity)
		if err != nil {
			return err
		}
		inDraft, err := dest.TransferIn(input.Quantity)
		if err != nil {
			return err
		}

		now := s.now()
		correlationID := uuid.New()
		mctx := MovementContext{Reason: input.Reason, CorrelationID: &correlationID}
		if err := s.movements.Append(ctx, q, buildMovement(source, outDraft, mctx, actor, now)); err != nil {
			return err
		}
		if err := s.movements.Append(ctx, q, buildMovement(dest, inDraft, mctx, actor, now)); err != nil {
			return err
		}

		source.Touch(actor, now)
		dest.Touch(actor, now)
		if err := s.saveChecked(ctx, q, source); err != nil {
			return err
		}
		return s.saveChecked(ctx, q, dest)
	})
}

// AdjustInput describes a manual stock adjustment.
type AdjustInput struct {
	ItemID           uuid.UUID
	LocationID       uuid.UUID
	Delta            decimal.Decimal
	AffectAvailable  bool
	Reason           string
	Notes            *string
	RequiresApproval bool
}

// Adjust applies a signed manual delta to a stock level. When approval is
// required the movement is written with approved_by unset and reporting
// treats it as pending.
func (s *Service) Adjust(ctx context.Context, actor uuid.UUID, input AdjustInput) error {
	if input.Reason == "" {
		return domain.NewValidationError("reason", "adjustment reason is required")
	}
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		level, err := s.levels.GetForUpdate(ctx, q, input.ItemID, input.LocationID)
		if err != nil {
			return err
		}
		if level == nil {
			return &domain.NotFoundError{Entity: "stock level", ID: fmt.Sprintf("(%s,%s)", input.ItemID, input.LocationID)}
		}

		draft, err := level.Adjust(input.Delta, input.AffectAvailable)
		if err != nil {
			return err
		}

		now := s.now()
		movement := buildMovement(level, draft, MovementContext{
			Reason:           input.Reason,
			Notes:            input.Notes,
			RequiresApproval: input.RequiresApproval,
		}, actor, now)
		if !input.RequiresApproval {
			movement.ApprovedBy = &actor
		}
		if err := s.movements.Append(ctx, q, movement); err != nil {
			return err
		}

		level.Touch(actor, now)
		return s.saveChecked(ctx, q, level)
	})
}

// AlertKind names one inventory alert class.
type AlertKind string

const (
	AlertLowStock         AlertKind = "LOW_STOCK"
	AlertMaintenanceDue   AlertKind = "MAINTENANCE_DUE"
	AlertWarrantyExpiring AlertKind = "WARRANTY_EXPIRING"
)

// Alerts aggregates the current inventory alert state.
type Alerts struct {
	LowStock         []StockLevel
	MaintenanceDue   []InventoryUnit
	WarrantyExpiring []InventoryUnit
}

// CollectAlerts aggregates low-stock levels, maintenance-due units and
// warranty-expiring units, optionally scoped to a location.
func (s *Service) CollectAlerts(ctx context.Context, locationID *uuid.UUID) (Alerts, error) {
	var alerts Alerts
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		now := s.now()
		low, err := s.levels.ListLowStock(ctx, q, locationID)
		if err != nil {
			return err
		}
		maintenance, err := s.units.ListMaintenanceDue(ctx, q, locationID,
			now.AddDate(0, 0, s.MaintenanceHorizonDays))
		if err != nil {
			return err
		}
		warranty, err := s.units.ListWarrantyExpiring(ctx, q, locationID, now.AddDate(0, 0, 30))
		if err != nil {
			return err
		}
		alerts = Alerts{LowStock: low, MaintenanceDue: maintenance, WarrantyExpiring: warranty}
		return nil
	})
	if err != nil {
		return Alerts{}, err
	}
	return alerts, nil
}

// Movements exposes ledger queries.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var result []StockMovement
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		movements, err := s.movements.List(ctx, q, filter)
		if err != nil {
			return err
		}
		result = movements
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SummarizeMovements sums signed quantity changes by movement type over the
// filter window.
func (s *Service) SummarizeMovements(ctx context.Context, filter MovementFilter) (map[domain.StockMovementType]decimal.Decimal, error) {
	var result map[domain.StockMovementType]decimal.Decimal
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		summary, err := s.movements.Summarize(ctx, q, filter)
		if err != nil {
			return err
		}
		result = summary
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveSerialsIn maps serial numbers to unit ids inside the caller's
// transaction. Every serial must resolve; a miss is a NotFoundError.
func (s *Service) ResolveSerialsIn(ctx context.Context, q database.Querier, serials []string) (map[string]uuid.UUID, error) {
	units, err := s.units.GetBySerials(ctx, q, serials)
	if err != nil {
		return nil, err
	}
	bySerial := make(map[string]uuid.UUID, len(units))
	for _, unit := range units {
		if unit.SerialNumber != nil {
			bySerial[*unit.SerialNumber] = unit.ID
		}
	}
	for _, serial := range serials {
		if _, ok := bySerial[serial]; !ok {
			return nil, &domain.NotFoundError{Entity: "inventory unit", ID: serial}
		}
	}
	return bySerial, nil
}

// getOrCreateLevelIn loads the level under lock, creating it when missing.
// On a first-creator race the loser re-reads the winner's row once.
func (s *Service) getOrCreateLevelIn(ctx context.Context, q database.Querier, actor uuid.UUID, itemID, locationID uuid.UUID) (*StockLevel, bool, error) {
	level, err := s.levels.GetForUpdate(ctx, q, itemID, locationID)
	if err != nil {
		return nil, false, err
	}
	if level != nil {
		return level, false, nil
	}

	level = NewStockLevel(itemID, locationID, domain.NewAudit(actor, s.now()))
	err = s.levels.Insert(ctx, q, level)
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		level, rerr := s.levels.GetForUpdate(ctx, q, itemID, locationID)
		if rerr != nil {
			return nil, false, rerr
		}
		if level == nil {
			return nil, false, err
		}
		return level, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return level, true, nil
}

func (s *Service) mintUnitSKUs(ctx context.Context, q database.Querier, actor uuid.UUID, item *domain.Item, count int) ([]string, error) {
	seq, err := s.minter.GetOrCreateIn(ctx, q, actor, sku.CreateParams{
		BrandID:    item.BrandID,
		CategoryID: item.CategoryID,
	})
	if err != nil {
		return nil, err
	}
	generated, err := s.minter.GenerateBulkIn(ctx, q, actor, seq.ID, count, sku.RenderArgs{
		ItemName: item.Name,
	})
	if err != nil {
		return nil, err
	}
	skus := make([]string, len(generated))
	for i, g := range generated {
		skus[i] = g.SKU
	}
	return skus, nil
}

// saveChecked re-verifies the bucket invariants before the row is written.
func (s *Service) saveChecked(ctx context.Context, q database.Querier, level *StockLevel) error {
	if err := level.CheckInvariants(); err != nil {
		return err
	}
	return s.levels.Save(ctx, q, level)
}

func (s *Service) requireItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error) {
	item, err := s.catalog.GetItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsActive {
		return nil, domain.NewNotFoundError("item", id)
	}
	return item, nil
}

func (s *Service) requireLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error) {
	location, err := s.catalog.GetLocation(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if location == nil || !location.IsActive {
		return nil, domain.NewNotFoundError("location", id)
	}
	return location, nil
}
