package inventory

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/modules/sku"
)

type fakeRunner struct{}

func (f *fakeRunner) WithinTx(ctx context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

type levelKey struct {
	item, location uuid.UUID
}

type fakeLevels struct {
	byKey map[levelKey]*StockLevel
	saved int
	// when set, the first Insert reports a conflict to simulate a lost
	// first-creator race; raceWinner is then visible on re-read
	raceWinner *StockLevel
	raced      bool
}

func newFakeLevels() *fakeLevels {
	return &fakeLevels{byKey: make(map[levelKey]*StockLevel)}
}

func (f *fakeLevels) GetForUpdate(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error) {
	if level, ok := f.byKey[levelKey{itemID, locationID}]; ok {
		copied := *level
		return &copied, nil
	}
	if f.raced && f.raceWinner != nil {
		copied := *f.raceWinner
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeLevels) Get(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID) (*StockLevel, error) {
	return f.GetForUpdate(ctx, q, itemID, locationID)
}

func (f *fakeLevels) Insert(ctx context.Context, q database.Querier, level *StockLevel) error {
	key := levelKey{level.ItemID, level.LocationID}
	if f.raceWinner != nil && !f.raced {
		f.raced = true
		return &domain.ConflictError{Entity: "stock level", Key: fmt.Sprintf("(%s,%s)", level.ItemID, level.LocationID)}
	}
	if _, ok := f.byKey[key]; ok {
		return &domain.ConflictError{Entity: "stock level", Key: fmt.Sprintf("(%s,%s)", level.ItemID, level.LocationID)}
	}
	copied := *level
	f.byKey[key] = &copied
	return nil
}

func (f *fakeLevels) Save(ctx context.Context, q database.Querier, level *StockLevel) error {
	copied := *level
	f.byKey[levelKey{level.ItemID, level.LocationID}] = &copied
	f.saved++
	return nil
}

func (f *fakeLevels) ListLowStock(ctx context.Context, q database.Querier, locationID *uuid.UUID) ([]StockLevel, error) {
	var out []StockLevel
	for _, level := range f.byKey {
		if locationID != nil && level.LocationID != *locationID {
			continue
		}
		if level.IsLowStock() {
			out = append(out, *level)
		}
	}
	return out, nil
}

func (f *fakeLevels) get(t *testing.T, itemID, locationID uuid.UUID) *StockLevel {
	t.Helper()
	level, ok := f.byKey[levelKey{itemID, locationID}]
	require.True(t, ok, "stock level missing")
	return level
}

type fakeUnits struct {
	byID    map[uuid.UUID]*InventoryUnit
	history []StatusChange
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{byID: make(map[uuid.UUID]*InventoryUnit)}
}

func (f *fakeUnits) Insert(ctx context.Context, q database.Querier, unit *InventoryUnit) error {
	copied := *unit
	f.byID[unit.ID] = &copied
	return nil
}

func (f *fakeUnits) SelectForRental(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error) {
	var eligible []InventoryUnit
	for _, unit := range f.byID {
		if unit.ItemID == itemID && unit.LocationID == locationID && unit.IsRentalEligible() {
			eligible = append(eligible, *unit)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
			return eligible[i].AcquiredAt.Before(eligible[j].AcquiredAt)
		}
		return eligible[i].ID.String() < eligible[j].ID.String()
	})
	if len(eligible) > count {
		eligible = eligible[:count]
	}
	return eligible, nil
}

func (f *fakeUnits) SelectForSale(ctx context.Context, q database.Querier, itemID, locationID uuid.UUID, count int) ([]InventoryUnit, error) {
	var eligible []InventoryUnit
	for _, unit := range f.byID {
		if unit.ItemID == itemID && unit.LocationID == locationID && unit.Status == domain.UnitStatusAvailable {
			eligible = append(eligible, *unit)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].AcquiredAt.Equal(eligible[j].AcquiredAt) {
			return eligible[i].AcquiredAt.Before(eligible[j].AcquiredAt)
		}
		return eligible[i].ID.String() < eligible[j].ID.String()
	})
	if len(eligible) > count {
		eligible = eligible[:count]
	}
	return eligible, nil
}

func (f *fakeUnits) GetByIDsForUpdate(ctx context.Context, q database.Querier, ids []uuid.UUID) ([]InventoryUnit, error) {
	var out []InventoryUnit
	for _, id := range ids {
		if unit, ok := f.byID[id]; ok {
			out = append(out, *unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeUnits) GetBySerials(ctx context.Context, q database.Querier, serials []string) ([]InventoryUnit, error) {
	var out []InventoryUnit
	for _, serial := range serials {
		for _, unit := range f.byID {
			if unit.SerialNumber != nil && *unit.SerialNumber == serial {
				out = append(out, *unit)
			}
		}
	}
	return out, nil
}

func (f *fakeUnits) Save(ctx context.Context, q database.Querier, unit *InventoryUnit) error {
	copied := *unit
	f.byID[unit.ID] = &copied
	return nil
}

func (f *fakeUnits) RecordStatusChange(ctx context.Context, q database.Querier, change StatusChange) error {
	f.history = append(f.history, change)
	return nil
}

func (f *fakeUnits) SerialExists(ctx context.Context, q database.Querier, serial string) (bool, error) {
	for _, unit := range f.byID {
		if unit.SerialNumber != nil && *unit.SerialNumber == serial {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUnits) ListMaintenanceDue(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error) {
	var out []InventoryUnit
	for _, unit := range f.byID {
		if unit.NextMaintenanceDate != nil && !unit.NextMaintenanceDate.After(horizon) {
			out = append(out, *unit)
		}
	}
	return out, nil
}

func (f *fakeUnits) ListWarrantyExpiring(ctx context.Context, q database.Querier, locationID *uuid.UUID, horizon time.Time) ([]InventoryUnit, error) {
	var out []InventoryUnit
	for _, unit := range f.byID {
		if unit.WarrantyExpiry != nil && !unit.WarrantyExpiry.After(horizon) {
			out = append(out, *unit)
		}
	}
	return out, nil
}

func (f *fakeUnits) countByStatus(status domain.UnitStatus) int {
	n := 0
	for _, unit := range f.byID {
		if unit.Status == status {
			n++
		}
	}
	return n
}

type fakeMovements struct {
	appended []StockMovement
}

func (f *fakeMovements) Append(ctx context.Context, q database.Querier, m *StockMovement) error {
	f.appended = append(f.appended, *m)
	return nil
}

func (f *fakeMovements) List(ctx context.Context, q database.Querier, filter MovementFilter) ([]StockMovement, error) {
	return f.appended, nil
}

func (f *fakeMovements) Summarize(ctx context.Context, q database.Querier, filter MovementFilter) (map[domain.StockMovementType]decimal.Decimal, error) {
	out := make(map[domain.StockMovementType]decimal.Decimal)
	for _, m := range f.appended {
		out[m.MovementType] = out[m.MovementType].Add(m.QuantityChange)
	}
	return out, nil
}

func (f *fakeMovements) last(t *testing.T) StockMovement {
	t.Helper()
	require.NotEmpty(t, f.appended)
	return f.appended[len(f.appended)-1]
}

type fakeCatalog struct {
	items     map[uuid.UUID]*domain.Item
	locations map[uuid.UUID]*domain.Location
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items:     make(map[uuid.UUID]*domain.Item),
		locations: make(map[uuid.UUID]*domain.Location),
	}
}

func (f *fakeCatalog) GetItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error) {
	return f.items[id], nil
}

func (f *fakeCatalog) GetLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error) {
	return f.locations[id], nil
}

func (f *fakeCatalog) addItem(item domain.Item) uuid.UUID {
	f.items[item.ID] = &item
	return item.ID
}

func (f *fakeCatalog) addLocation() uuid.UUID {
	loc := domain.Location{
		Audit:        domain.NewAudit(uuid.New(), time.Now()),
		Code:         "WH-1",
		Name:         "Main warehouse",
		LocationType: domain.LocationTypeWarehouse,
	}
	f.locations[loc.ID] = &loc
	return loc.ID
}

type fakeMinter struct {
	next int64
}

func (f *fakeMinter) GetOrCreateIn(ctx context.Context, q database.Querier, actor uuid.UUID, params sku.CreateParams) (*sku.Sequence, error) {
	return &sku.Sequence{
		Audit:        domain.NewAudit(actor, time.Now()),
		BrandID:      params.BrandID,
		CategoryID:   params.CategoryID,
		NextSequence: f.next + 1,
	}, nil
}

func (f *fakeMinter) GenerateBulkIn(ctx context.Context, q database.Querier, actor uuid.UUID, sequenceID uuid.UUID, count int, args sku.RenderArgs) ([]sku.GeneratedSKU, error) {
	out := make([]sku.GeneratedSKU, 0, count)
	for i := 0; i < count; i++ {
		f.next++
		out = append(out, sku.GeneratedSKU{
			SKU:            fmt.Sprintf("UNIT-%05d", f.next),
			SequenceNumber: f.next,
		})
	}
	return out, nil
}

type serviceFixture struct {
	svc       *Service
	levels    *fakeLevels
	units     *fakeUnits
	movements *fakeMovements
	catalog   *fakeCatalog
	actor     uuid.UUID
	itemID    uuid.UUID
	locID     uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	levels := newFakeLevels()
	units := newFakeUnits()
	movements := &fakeMovements{}
	catalog := newFakeCatalog()

	svc := NewService(&fakeRunner{}, levels, units, movements, catalog, &fakeMinter{}, zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })

	item := domain.Item{
		Audit:               domain.NewAudit(uuid.New(), time.Now()),
		Name:                "Sony A7 IV",
		SKU:                 "CAM-SONY-A7IV",
		UnitOfMeasurement:   "pcs",
		RentalRatePerPeriod: decimal.RequireFromString("75"),
		RentalPeriodDays:    1,
		SalePrice:           decimal.RequireFromString("2400"),
		SecurityDeposit:     decimal.RequireFromString("500"),
		IsRentable:          true,
		IsSaleable:          true,
	}

	return &serviceFixture{
		svc:       svc,
		levels:    levels,
		units:     units,
		movements: movements,
		catalog:   catalog,
		actor:     uuid.New(),
		itemID:    catalog.addItem(item),
		locID:     catalog.addLocation(),
	}
}

func (fx *serviceFixture) receive(t *testing.T, qty int, cost string) []InventoryUnit {
	t.Helper()
	units, err := fx.svc.ReceiveUnits(context.Background(), fx.actor, ReceiveInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   qty,
		UnitCost:   decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
	return units
}

func TestServiceReceiveUnits(t *testing.T) {
	fx := newServiceFixture(t)

	units := fx.receive(t, 10, "120")

	require.Len(t, units, 10)
	seen := make(map[string]bool)
	for _, unit := range units {
		assert.Equal(t, domain.UnitStatusAvailable, unit.Status)
		assert.Equal(t, domain.ConditionGood, unit.Condition)
		assert.False(t, seen[unit.SKU], "unit SKUs must be unique")
		seen[unit.SKU] = true
	}

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.Available.Equal(decimal.RequireFromString("10")))
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("10")))
	assert.True(t, level.AverageCost.Equal(decimal.RequireFromString("120")))

	movement := fx.movements.last(t)
	assert.Equal(t, domain.MovementPurchase, movement.MovementType)
	assert.True(t, movement.QuantityChange.Equal(decimal.RequireFromString("10")))
	require.NotNil(t, movement.UnitCost)
	assert.True(t, movement.UnitCost.Equal(decimal.RequireFromString("120")))
}

func TestServiceReceiveUnitsSerialValidation(t *testing.T) {
	fx := newServiceFixture(t)

	t.Run("count mismatch", func(t *testing.T) {
		_, err := fx.svc.ReceiveUnits(context.Background(), fx.actor, ReceiveInput{
			ItemID:        fx.itemID,
			LocationID:    fx.locID,
			Quantity:      3,
			UnitCost:      decimal.RequireFromString("100"),
			SerialNumbers: []string{"SN-1", "SN-2"},
		})
		require.Error(t, err)
		assert.ErrorAs(t, err, new(*domain.ValidationError))
	})

	t.Run("duplicate serial", func(t *testing.T) {
		_, err := fx.svc.ReceiveUnits(context.Background(), fx.actor, ReceiveInput{
			ItemID:        fx.itemID,
			LocationID:    fx.locID,
			Quantity:      1,
			UnitCost:      decimal.RequireFromString("100"),
			SerialNumbers: []string{"SN-1"},
		})
		require.NoError(t, err)

		_, err = fx.svc.ReceiveUnits(context.Background(), fx.actor, ReceiveInput{
			ItemID:        fx.itemID,
			LocationID:    fx.locID,
			Quantity:      1,
			UnitCost:      decimal.RequireFromString("100"),
			SerialNumbers: []string{"SN-1"},
		})
		require.Error(t, err)
		assert.ErrorAs(t, err, new(*domain.ConflictError))
	})
}

func TestServiceReceiveFoldsAverageCost(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "100")
	fx.receive(t, 5, "130")

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.AverageCost.Equal(decimal.RequireFromString("110")), "got %s", level.AverageCost)
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("15")))
}

func TestServiceCheckoutForRental(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "120")

	customerID := uuid.New()
	unitIDs, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("3"),
		CustomerID: customerID,
	})
	require.NoError(t, err)
	require.Len(t, unitIDs, 3)

	assert.Equal(t, 3, fx.units.countByStatus(domain.UnitStatusRented))
	assert.Equal(t, 7, fx.units.countByStatus(domain.UnitStatusAvailable))
	assert.Len(t, fx.units.history, 3)

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.Available.Equal(decimal.RequireFromString("7")))
	assert.True(t, level.OnRent.Equal(decimal.RequireFromString("3")))
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("10")))

	movement := fx.movements.last(t)
	assert.Equal(t, domain.MovementRentalOut, movement.MovementType)
	assert.True(t, movement.QuantityChange.Equal(decimal.RequireFromString("-3")))
}

func TestServiceCheckoutInsufficientStock(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 2, "120")
	before := len(fx.movements.appended)

	_, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("5"),
		CustomerID: uuid.New(),
	})
	require.Error(t, err)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(decimal.RequireFromString("2")))
	assert.Len(t, fx.movements.appended, before, "failed checkout must not append a movement")
	assert.Equal(t, 0, fx.units.countByStatus(domain.UnitStatusRented))
}

func TestServiceCheckoutDetectsUnitDrift(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 5, "120")

	// Block two units so the level claims more than is allocatable.
	n := 0
	for _, unit := range fx.units.byID {
		if n == 2 {
			break
		}
		unit.IsRentalBlocked = true
		n++
	}

	_, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("4"),
		CustomerID: uuid.New(),
	})
	require.Error(t, err)

	var drift *domain.InsufficientUnitsError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, 4, drift.Requested)
	assert.Equal(t, 3, drift.Found)
}

func TestServiceReceiveSurvivesLevelCreationRace(t *testing.T) {
	fx := newServiceFixture(t)

	winner := NewStockLevel(fx.itemID, fx.locID, domain.NewAudit(uuid.New(), time.Now()))
	fx.levels.raceWinner = winner

	units := fx.receive(t, 5, "120")
	require.Len(t, units, 5)

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.Equal(t, winner.ID, level.ID, "loser must continue on the winner's row")
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("5")))
}

func TestServiceSaleIncludesRentalBlockedUnits(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 2, "120")

	for _, unit := range fx.units.byID {
		unit.IsRentalBlocked = true
		break
	}

	level := fx.levels.get(t, fx.itemID, fx.locID)
	require.True(t, level.CanFulfillOrder(decimal.RequireFromString("2")))

	unitIDs, err := fx.svc.ConsumeForSaleIn(context.Background(), nil, fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("2"),
		CustomerID: uuid.New(),
	})
	require.NoError(t, err, "rental-blocked units are still sellable")
	require.Len(t, unitIDs, 2)

	assert.Equal(t, 2, fx.units.countByStatus(domain.UnitStatusSold))
	level = fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.Available.IsZero())
	assert.True(t, level.OnHand.IsZero())
}

func TestServiceProcessReturnMixed(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "120")

	unitIDs, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("3"),
		CustomerID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, unitIDs, 3)

	notes := "scratched lens on one body"
	err = fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("3"),
		DamagedQty: decimal.RequireFromString("1"),
		Dispositions: []UnitDisposition{
			{UnitID: unitIDs[0], Outcome: OutcomeGood},
			{UnitID: unitIDs[1], Outcome: OutcomeGood},
			{UnitID: unitIDs[2], Outcome: OutcomeDamaged},
		},
		ConditionNotes: &notes,
	})
	require.NoError(t, err)

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.Available.Equal(decimal.RequireFromString("9")))
	assert.True(t, level.Damaged.Equal(decimal.RequireFromString("1")))
	assert.True(t, level.OnRent.IsZero())
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("10")))

	assert.Equal(t, 9, fx.units.countByStatus(domain.UnitStatusAvailable))
	assert.Equal(t, 1, fx.units.countByStatus(domain.UnitStatusDamaged))
	assert.Equal(t, domain.ConditionDamaged, fx.units.byID[unitIDs[2]].Condition)

	movement := fx.movements.last(t)
	assert.Equal(t, domain.MovementRentalReturnMixed, movement.MovementType)
	assert.True(t, movement.QuantityChange.Equal(decimal.RequireFromString("2")),
		"available delta must equal the good quantity")
}

func TestServiceProcessReturnLostUnit(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 4, "120")

	unitIDs, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("2"),
		CustomerID: uuid.New(),
	})
	require.NoError(t, err)

	err = fx.svc.ProcessReturn(context.Background(), fx.actor, ReturnInput{
		ItemID:   fx.itemID,
		LocationID: fx.locID,
		Quantity: decimal.RequireFromString("2"),
		LostQty:  decimal.RequireFromString("1"),
		Dispositions: []UnitDisposition{
			{UnitID: unitIDs[0], Outcome: OutcomeGood},
			{UnitID: unitIDs[1], Outcome: OutcomeLost},
		},
	})
	require.NoError(t, err)

	level := fx.levels.get(t, fx.itemID, fx.locID)
	assert.True(t, level.OnHand.Equal(decimal.RequireFromString("3")))
	assert.True(t, level.Available.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, 1, fx.units.countByStatus(domain.UnitStatusLost))
	require.NoError(t, level.CheckInvariants())
}

func TestServiceTransfer(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "120")
	destID := fx.catalog.addLocation()

	err := fx.svc.Transfer(context.Background(), fx.actor, TransferInput{
		ItemID:         fx.itemID,
		FromLocationID: fx.locID,
		ToLocationID:   destID,
		Quantity:       decimal.RequireFromString("4"),
		Reason:         "Rebalancing for weekend demand",
	})
	require.NoError(t, err)

	source := fx.levels.get(t, fx.itemID, fx.locID)
	dest := fx.levels.get(t, fx.itemID, destID)
	assert.True(t, source.OnHand.Equal(decimal.RequireFromString("6")))
	assert.True(t, dest.OnHand.Equal(decimal.RequireFromString("4")))

	n := len(fx.movements.appended)
	require.GreaterOrEqual(t, n, 2)
	out := fx.movements.appended[n-2]
	in := fx.movements.appended[n-1]
	assert.Equal(t, domain.MovementTransferOut, out.MovementType)
	assert.Equal(t, domain.MovementTransferIn, in.MovementType)
	require.NotNil(t, out.CorrelationID)
	require.NotNil(t, in.CorrelationID)
	assert.Equal(t, *out.CorrelationID, *in.CorrelationID, "both legs share one correlation id")
	assert.Equal(t, out.Reason, in.Reason)
}

func TestServiceTransferSameLocation(t *testing.T) {
	fx := newServiceFixture(t)
	err := fx.svc.Transfer(context.Background(), fx.actor, TransferInput{
		ItemID:         fx.itemID,
		FromLocationID: fx.locID,
		ToLocationID:   fx.locID,
		Quantity:       decimal.RequireFromString("1"),
		Reason:         "noop",
	})
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*domain.ValidationError))
}

func TestServiceAdjust(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "120")

	t.Run("requires reason", func(t *testing.T) {
		err := fx.svc.Adjust(context.Background(), fx.actor, AdjustInput{
			ItemID:          fx.itemID,
			LocationID:      fx.locID,
			Delta:           decimal.RequireFromString("-1"),
			AffectAvailable: true,
		})
		require.Error(t, err)
	})

	t.Run("approved adjustment stamps actor", func(t *testing.T) {
		err := fx.svc.Adjust(context.Background(), fx.actor, AdjustInput{
			ItemID:          fx.itemID,
			LocationID:      fx.locID,
			Delta:           decimal.RequireFromString("-2"),
			AffectAvailable: true,
			Reason:          "Cycle count shortfall",
		})
		require.NoError(t, err)

		movement := fx.movements.last(t)
		assert.Equal(t, domain.MovementAdjustmentNegative, movement.MovementType)
		require.NotNil(t, movement.ApprovedBy)
		assert.Equal(t, fx.actor, *movement.ApprovedBy)
	})

	t.Run("pending approval leaves approver unset", func(t *testing.T) {
		err := fx.svc.Adjust(context.Background(), fx.actor, AdjustInput{
			ItemID:           fx.itemID,
			LocationID:       fx.locID,
			Delta:            decimal.RequireFromString("3"),
			AffectAvailable:  true,
			Reason:           "Found misplaced stock",
			RequiresApproval: true,
		})
		require.NoError(t, err)

		movement := fx.movements.last(t)
		assert.True(t, movement.RequiresApproval)
		assert.Nil(t, movement.ApprovedBy)
	})
}

func TestServiceCollectAlerts(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 2, "120")

	level := fx.levels.get(t, fx.itemID, fx.locID)
	reorder := decimal.RequireFromString("5")
	level.ReorderPoint = &reorder

	soon := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, unit := range fx.units.byID {
		unit.NextMaintenanceDate = &soon
		break
	}

	alerts, err := fx.svc.CollectAlerts(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, alerts.LowStock, 1)
	assert.Len(t, alerts.MaintenanceDue, 1)
	assert.Empty(t, alerts.WarrantyExpiring)
}

func TestServiceSummarizeMovements(t *testing.T) {
	fx := newServiceFixture(t)
	fx.receive(t, 10, "120")
	_, err := fx.svc.CheckoutForRental(context.Background(), fx.actor, CheckoutInput{
		ItemID:     fx.itemID,
		LocationID: fx.locID,
		Quantity:   decimal.RequireFromString("3"),
		CustomerID: uuid.New(),
	})
	require.NoError(t, err)

	summary, err := fx.svc.SummarizeMovements(context.Background(), MovementFilter{})
	require.NoError(t, err)
	assert.True(t, summary[domain.MovementPurchase].Equal(decimal.RequireFromString("10")))
	assert.True(t, summary[domain.MovementRentalOut].Equal(decimal.RequireFromString("-3")))
}
