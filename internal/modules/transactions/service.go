package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/events"
	"github.com/openrentals/core/internal/modules/inventory"
)

// RepositoryInterface defines the header/line/event persistence contract.
type RepositoryInterface interface {
	InsertHeader(ctx context.Context, q database.Querier, h *TransactionHeader) error
	InsertLine(ctx context.Context, q database.Querier, l *TransactionLine) error
	GetHeaderForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*TransactionHeader, error)
	GetHeader(ctx context.Context, q database.Querier, id uuid.UUID) (*TransactionHeader, error)
	SaveHeader(ctx context.Context, q database.Querier, h *TransactionHeader) error
	SaveLine(ctx context.Context, q database.Querier, l *TransactionLine) error
	ListHeaders(ctx context.Context, q database.Querier, filter HeaderFilter) ([]TransactionHeader, error)
	AppendEvent(ctx context.Context, q database.Querier, headerID uuid.UUID, data events.EventData, actor uuid.UUID, at time.Time) error
}

// LifecycleRepositoryInterface defines the rental lifecycle contract.
type LifecycleRepositoryInterface interface {
	Insert(ctx context.Context, q database.Querier, lc *RentalLifecycle) error
	GetForUpdate(ctx context.Context, q database.Querier, headerID uuid.UUID) (*RentalLifecycle, error)
	Save(ctx context.Context, q database.Querier, lc *RentalLifecycle) error
	InsertInspection(ctx context.Context, q database.Querier, ins *Inspection) error
}

// NumberSource issues transaction numbers inside the caller's transaction.
type NumberSource interface {
	NextIn(ctx context.Context, q database.Querier, txType domain.TransactionType, year int) (string, error)
}

// InventoryOps is the slice of the inventory service the transaction engine
// drives. Every method composes into the caller's transaction so a failure
// anywhere rolls back header, lines and stock together.
type InventoryOps interface {
	ReceiveUnitsIn(ctx context.Context, q database.Querier, actor uuid.UUID, input inventory.ReceiveInput) ([]inventory.InventoryUnit, error)
	CheckoutForRentalIn(ctx context.Context, q database.Querier, actor uuid.UUID, input inventory.CheckoutInput) ([]uuid.UUID, error)
	ConsumeForSaleIn(ctx context.Context, q database.Querier, actor uuid.UUID, input inventory.CheckoutInput) ([]uuid.UUID, error)
	ProcessReturnIn(ctx context.Context, q database.Querier, actor uuid.UUID, input inventory.ReturnInput) error
	ResolveSerialsIn(ctx context.Context, q database.Querier, serials []string) (map[string]uuid.UUID, error)
}

// CatalogProvider resolves the references a transaction names.
type CatalogProvider interface {
	GetItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error)
	GetLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error)
	GetParty(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Party, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Service creates purchases, sales and rentals and settles payments. Each
// entry point validates references, allocates the transaction number, builds
// the header aggregate, applies inventory effects and records audit events,
// all inside one database transaction.
type Service struct {
	runner     TxRunner
	repo       RepositoryInterface
	lifecycles LifecycleRepositoryInterface
	numbers    NumberSource
	inv        InventoryOps
	catalog    CatalogProvider
	now        func() time.Time
	log        zerolog.Logger
}

// NewService creates a new transaction service.
func NewService(
	runner TxRunner,
	repo RepositoryInterface,
	lifecycles LifecycleRepositoryInterface,
	numbers NumberSource,
	inv InventoryOps,
	catalog CatalogProvider,
	log zerolog.Logger,
) *Service {
	return &Service{
		runner:     runner,
		repo:       repo,
		lifecycles: lifecycles,
		numbers:    numbers,
		inv:        inv,
		catalog:    catalog,
		now:        time.Now,
		log:        log.With().Str("service", "transactions").Logger(),
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// PurchaseLineInput is one item position on a purchase.
type PurchaseLineInput struct {
	ItemID         uuid.UUID
	Quantity       int
	UnitCost       decimal.Decimal
	DiscountAmount decimal.Decimal
	SerialNumbers  []string
	BatchCode      *string
}

// PurchaseInput describes a purchase transaction to create.
type PurchaseInput struct {
	SupplierID     uuid.UUID
	LocationID     uuid.UUID
	Lines          []PurchaseLineInput
	ShippingAmount decimal.Decimal
	OtherCharges   decimal.Decimal
	PONumber       *string
	Notes          *string
}

// CreatePurchase records a goods receipt: header + lines, units created,
// stock raised, average cost folded. The header completes immediately.
func (s *Service) CreatePurchase(ctx context.Context, actor uuid.UUID, input PurchaseInput) (*TransactionHeader, error) {
	var result *TransactionHeader
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		if err := s.requireParty(ctx, q, input.SupplierID, domain.PartySupplier); err != nil {
			return err
		}
		if err := s.requireLocation(ctx, q, input.LocationID); err != nil {
			return err
		}

		now := s.now()
		header := &TransactionHeader{
			Audit:           domain.NewAudit(actor, now),
			TransactionType: domain.TransactionTypePurchase,
			Status:          domain.TransactionStatusProcessing,
			SupplierID:      &input.SupplierID,
			LocationID:      input.LocationID,
			TransactionDate: now,
			ShippingAmount:  domain.RoundMoney(input.ShippingAmount),
			OtherCharges:    domain.RoundMoney(input.OtherCharges),
			PaymentStatus:   domain.PaymentStatusPending,
			Notes:           input.Notes,
		}

		for i, li := range input.Lines {
			item, err := s.requireItem(ctx, q, li.ItemID)
			if err != nil {
				return err
			}
			if li.Quantity <= 0 {
				return domain.NewValidationError("quantity", "purchase quantity must be positive")
			}
			header.Lines = append(header.Lines, TransactionLine{
				Audit:          domain.NewAudit(actor, now),
				LineNumber:     i + 1,
				ItemID:         li.ItemID,
				Quantity:       decimal.NewFromInt(int64(li.Quantity)),
				UnitPrice:      li.UnitCost,
				DiscountAmount: li.DiscountAmount,
				TaxRate:        item.TaxRatePercent,
			})
		}

		number, err := s.prepareHeader(ctx, q, header)
		if err != nil {
			return err
		}

		for i := range header.Lines {
			line := &header.Lines[i]
			li := input.Lines[i]
			units, err := s.inv.ReceiveUnitsIn(ctx, q, actor, inventory.ReceiveInput{
				ItemID:        line.ItemID,
				LocationID:    input.LocationID,
				Quantity:      li.Quantity,
				UnitCost:      li.UnitCost,
				SerialNumbers: li.SerialNumbers,
				BatchCode:     li.BatchCode,
				SupplierID:    &input.SupplierID,
				PONumber:      input.PONumber,
				HeaderID:      &header.ID,
				LineID:        &line.ID,
			})
			if err != nil {
				return err
			}
			if err := s.appendInventoryEvent(ctx, q, header.ID, "receive_units", line, input.LocationID, unitIDs(units), actor, now); err != nil {
				return err
			}
		}

		header.Status = domain.TransactionStatusCompleted
		header.Touch(actor, now)
		if err := s.repo.SaveHeader(ctx, q, header); err != nil {
			return err
		}

		s.log.Info().Str("transaction_number", number).Int("lines", len(header.Lines)).
			Msg("Created purchase")
		result = header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaleLineInput is one item position on a sale.
type SaleLineInput struct {
	ItemID         uuid.UUID
	Quantity       decimal.Decimal
	UnitPrice      *decimal.Decimal
	DiscountAmount decimal.Decimal
}

// SaleInput describes a sale transaction to create.
type SaleInput struct {
	CustomerID     uuid.UUID
	LocationID     uuid.UUID
	Lines          []SaleLineInput
	ShippingAmount decimal.Decimal
	Notes          *string
}

// CreateSale creates a sale: stock is verified and consumed per line; on any
// shortfall the whole transaction rolls back and nothing is persisted.
func (s *Service) CreateSale(ctx context.Context, actor uuid.UUID, input SaleInput) (*TransactionHeader, error) {
	var result *TransactionHeader
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		if err := s.requireParty(ctx, q, input.CustomerID, domain.PartyCustomer); err != nil {
			return err
		}
		if err := s.requireLocation(ctx, q, input.LocationID); err != nil {
			return err
		}

		now := s.now()
		header := &TransactionHeader{
			Audit:           domain.NewAudit(actor, now),
			TransactionType: domain.TransactionTypeSale,
			Status:          domain.TransactionStatusProcessing,
			CustomerID:      &input.CustomerID,
			LocationID:      input.LocationID,
			TransactionDate: now,
			ShippingAmount:  domain.RoundMoney(input.ShippingAmount),
			PaymentStatus:   domain.PaymentStatusPending,
			Notes:           input.Notes,
		}

		for i, li := range input.Lines {
			item, err := s.requireItem(ctx, q, li.ItemID)
			if err != nil {
				return err
			}
			if !item.IsSaleable {
				return domain.NewValidationError("item_id", "item is not saleable")
			}
			price := item.SalePrice
			if li.UnitPrice != nil {
				price = *li.UnitPrice
			}
			header.Lines = append(header.Lines, TransactionLine{
				Audit:          domain.NewAudit(actor, now),
				LineNumber:     i + 1,
				ItemID:         li.ItemID,
				Quantity:       li.Quantity,
				UnitPrice:      price,
				DiscountAmount: li.DiscountAmount,
				TaxRate:        item.TaxRatePercent,
			})
		}

		number, err := s.prepareHeader(ctx, q, header)
		if err != nil {
			return err
		}

		for i := range header.Lines {
			line := &header.Lines[i]
			ids, err := s.inv.ConsumeForSaleIn(ctx, q, actor, inventory.CheckoutInput{
				ItemID:     line.ItemID,
				LocationID: input.LocationID,
				Quantity:   line.Quantity,
				CustomerID: input.CustomerID,
				HeaderID:   &header.ID,
				LineID:     &line.ID,
			})
			if err != nil {
				return err
			}
			if err := s.appendInventoryEvent(ctx, q, header.ID, "sale", line, input.LocationID, ids, actor, now); err != nil {
				return err
			}
		}

		header.Status = domain.TransactionStatusCompleted
		header.Touch(actor, now)
		if err := s.repo.SaveHeader(ctx, q, header); err != nil {
			return err
		}

		s.log.Info().Str("transaction_number", number).Int("lines", len(header.Lines)).
			Msg("Created sale")
		result = header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RentalLineInput is one item position on a rental.
type RentalLineInput struct {
	ItemID         uuid.UUID
	Quantity       decimal.Decimal
	RatePerPeriod  *decimal.Decimal
	DiscountAmount decimal.Decimal
}

// RentalInput describes a rental transaction to create.
type RentalInput struct {
	CustomerID uuid.UUID
	LocationID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	Lines      []RentalLineInput
	Notes      *string
}

// CreateRental creates a rental: units are checked out per line, deposits
// summed from the catalog, and a lifecycle record opened. The header stays
// IN_PROGRESS until every line is returned.
func (s *Service) CreateRental(ctx context.Context, actor uuid.UUID, input RentalInput) (*TransactionHeader, error) {
	if input.EndDate.Before(input.StartDate) {
		return nil, domain.NewValidationError("end_date", "rental end date precedes start date")
	}

	var result *TransactionHeader
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		if err := s.requireParty(ctx, q, input.CustomerID, domain.PartyCustomer); err != nil {
			return err
		}
		if err := s.requireLocation(ctx, q, input.LocationID); err != nil {
			return err
		}

		now := s.now()
		inProgress := domain.RentalStatusInProgress
		header := &TransactionHeader{
			Audit:           domain.NewAudit(actor, now),
			TransactionType: domain.TransactionTypeRental,
			Status:          domain.TransactionStatusInProgress,
			CustomerID:      &input.CustomerID,
			LocationID:      input.LocationID,
			TransactionDate: now,
			PaymentStatus:   domain.PaymentStatusPending,
			RentalStartDate: &input.StartDate,
			RentalEndDate:   &input.EndDate,
			RentalStatus:    &inProgress,
			Notes:           input.Notes,
		}

		for i, li := range input.Lines {
			item, err := s.requireItem(ctx, q, li.ItemID)
			if err != nil {
				return err
			}
			if !item.IsRentable {
				return domain.NewValidationError("item_id", "item is not rentable")
			}
			rate := item.RentalRatePerPeriod
			if li.RatePerPeriod != nil {
				rate = *li.RatePerPeriod
			}
			periods := rentalPeriods(input.StartDate, input.EndDate, item.RentalPeriodDays)
			lineStatus := domain.RentalStatusInProgress
			start := input.StartDate
			end := input.EndDate
			header.Lines = append(header.Lines, TransactionLine{
				Audit:           domain.NewAudit(actor, now),
				LineNumber:      i + 1,
				ItemID:          li.ItemID,
				Quantity:        li.Quantity,
				UnitPrice:       rate,
				DiscountAmount:  li.DiscountAmount,
				TaxRate:         item.TaxRatePercent,
				DepositAmount:   domain.RoundMoney(item.SecurityDeposit.Mul(li.Quantity)),
				RentalPeriod:    &periods,
				RentalStartDate: &start,
				RentalEndDate:   &end,
				RentalStatus:    &lineStatus,
			})
		}

		number, err := s.prepareHeader(ctx, q, header)
		if err != nil {
			return err
		}

		for i := range header.Lines {
			line := &header.Lines[i]
			ids, err := s.inv.CheckoutForRentalIn(ctx, q, actor, inventory.CheckoutInput{
				ItemID:     line.ItemID,
				LocationID: input.LocationID,
				Quantity:   line.Quantity,
				CustomerID: input.CustomerID,
				HeaderID:   &header.ID,
				LineID:     &line.ID,
			})
			if err != nil {
				return err
			}
			if err := s.appendInventoryEvent(ctx, q, header.ID, "rental_checkout", line, input.LocationID, ids, actor, now); err != nil {
				return err
			}
		}

		lifecycle := &RentalLifecycle{
			Audit:               domain.NewAudit(actor, now),
			TransactionHeaderID: header.ID,
			CurrentStatus:       domain.RentalStatusInProgress,
			ExpectedReturnDate:  &input.EndDate,
		}
		if err := s.lifecycles.Insert(ctx, q, lifecycle); err != nil {
			return err
		}

		header.Touch(actor, now)
		if err := s.repo.SaveHeader(ctx, q, header); err != nil {
			return err
		}

		s.log.Info().Str("transaction_number", number).Int("lines", len(header.Lines)).
			Msg("Created rental")
		result = header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PaymentInput describes one payment to apply to a header.
type PaymentInput struct {
	Amount           decimal.Decimal
	Method           string
	Reference        string
	AllowOverpayment bool
}

// UpdatePayment applies a payment to a header and records a PAYMENT event.
// A rejected payment leaves an ERROR event on the header's audit trail.
func (s *Service) UpdatePayment(ctx context.Context, actor uuid.UUID, headerID uuid.UUID, input PaymentInput) (*TransactionHeader, error) {
	var result *TransactionHeader
	headerSeen := false
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		header, err := s.repo.GetHeaderForUpdate(ctx, q, headerID)
		if err != nil {
			return err
		}
		headerSeen = true
		if err := header.RecordPayment(input.Amount, input.AllowOverpayment); err != nil {
			return err
		}

		now := s.now()
		header.Touch(actor, now)
		if err := s.repo.SaveHeader(ctx, q, header); err != nil {
			return err
		}
		err = s.repo.AppendEvent(ctx, q, header.ID, &events.PaymentReceivedData{
			Amount:        input.Amount,
			Method:        input.Method,
			Reference:     input.Reference,
			PaidToDate:    header.PaidAmount,
			BalanceDue:    header.BalanceDue(),
			PaymentStatus: header.PaymentStatus,
		}, actor, now)
		if err != nil {
			return err
		}
		result = header
		return nil
	})
	if err != nil {
		if headerSeen {
			s.recordFailure(ctx, headerID, actor, "update_payment", err)
		}
		return nil, err
	}
	return result, nil
}

// Get loads one active header with its lines.
func (s *Service) Get(ctx context.Context, headerID uuid.UUID) (*TransactionHeader, error) {
	var result *TransactionHeader
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		header, err := s.repo.GetHeader(ctx, q, headerID)
		if err != nil {
			return err
		}
		result = header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List returns headers matching the filter; soft-deleted headers are
// excluded unless the filter asks for them.
func (s *Service) List(ctx context.Context, filter HeaderFilter) ([]TransactionHeader, error) {
	var result []TransactionHeader
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		headers, err := s.repo.ListHeaders(ctx, q, filter)
		if err != nil {
			return err
		}
		result = headers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SoftDelete hides a header from default queries. Rentals with quantity
// still out cannot be deleted.
func (s *Service) SoftDelete(ctx context.Context, actor uuid.UUID, headerID uuid.UUID) error {
	return s.runner.WithinTx(ctx, func(q database.Querier) error {
		header, err := s.repo.GetHeaderForUpdate(ctx, q, headerID)
		if err != nil {
			return err
		}
		if header.TransactionType == domain.TransactionTypeRental {
			for i := range header.Lines {
				if !header.Lines[i].IsFullyReturned() {
					return domain.NewValidationError("transaction",
						"cannot delete a rental with quantity still on rent")
				}
			}
		}
		header.SoftDelete(actor, s.now())
		return s.repo.SaveHeader(ctx, q, header)
	})
}

// prepareHeader allocates the number, computes totals, validates and
// persists the header and its lines.
func (s *Service) prepareHeader(ctx context.Context, q database.Querier, header *TransactionHeader) (string, error) {
	number, err := s.numbers.NextIn(ctx, q, header.TransactionType, header.TransactionDate.Year())
	if err != nil {
		return "", err
	}
	header.TransactionNumber = number
	header.RecomputeTotals()
	if err := header.Validate(); err != nil {
		return "", err
	}

	if err := s.repo.InsertHeader(ctx, q, header); err != nil {
		return "", err
	}
	for i := range header.Lines {
		header.Lines[i].TransactionHeaderID = header.ID
		if err := s.repo.InsertLine(ctx, q, &header.Lines[i]); err != nil {
			return "", err
		}
	}

	err = s.repo.AppendEvent(ctx, q, header.ID, &events.TransactionCreatedData{
		TransactionNumber: header.TransactionNumber,
		TransactionType:   header.TransactionType,
		LineCount:         len(header.Lines),
		TotalAmount:       header.TotalAmount,
	}, header.CreatedBy, header.CreatedAt)
	if err != nil {
		return "", err
	}
	return number, nil
}

// recordFailure writes an ERROR audit event for an operation that failed
// after its header was loaded. It runs in its own transaction because the
// failed operation's transaction rolls back. Best effort: a write failure
// here is logged, not propagated.
func (s *Service) recordFailure(ctx context.Context, headerID, actor uuid.UUID, operation string, cause error) {
	err := s.runner.WithinTx(ctx, func(q database.Querier) error {
		return s.repo.AppendEvent(ctx, q, headerID, &events.OperationFailedData{
			Operation: operation,
			Message:   cause.Error(),
		}, actor, s.now())
	})
	if err != nil {
		s.log.Error().Err(err).Str("operation", operation).
			Str("transaction_id", headerID.String()).
			Msg("Failed to record error event")
	}
}

func (s *Service) appendInventoryEvent(ctx context.Context, q database.Querier, headerID uuid.UUID, action string, line *TransactionLine, locationID uuid.UUID, ids []uuid.UUID, actor uuid.UUID, at time.Time) error {
	return s.repo.AppendEvent(ctx, q, headerID, &events.InventoryActionData{
		Action:     action,
		ItemID:     line.ItemID,
		LocationID: locationID,
		Quantity:   line.Quantity,
		UnitIDs:    ids,
	}, actor, at)
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

func (s *Service) requireLocation(ctx context.Context, q database.Querier, id uuid.UUID) error {
	location, err := s.catalog.GetLocation(ctx, q, id)
	if err != nil {
		return err
	}
	if location == nil || !location.IsActive {
		return domain.NewNotFoundError("location", id)
	}
	return nil
}

func (s *Service) requireParty(ctx context.Context, q database.Querier, id uuid.UUID, kind domain.PartyKind) error {
	party, err := s.catalog.GetParty(ctx, q, id)
	if err != nil {
		return err
	}
	if party == nil || !party.IsActive || party.Kind != kind {
		return domain.NewNotFoundError(string(kind), id)
	}
	return nil
}

// rentalPeriods counts billing periods between two dates: whole days divided
// by the item's period length, rounded up, never below one.
func rentalPeriods(start, end time.Time, periodDays int) decimal.Decimal {
	if periodDays <= 0 {
		periodDays = 1
	}
	days := int(end.Sub(start) / (24 * time.Hour))
	if end.Sub(start)%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	periods := days / periodDays
	if days%periodDays > 0 {
		periods++
	}
	return decimal.NewFromInt(int64(periods))
}

func unitIDs(units []inventory.InventoryUnit) []uuid.UUID {
	ids := make([]uuid.UUID, len(units))
	for i := range units {
		ids[i] = units[i].ID
	}
	return ids
}
