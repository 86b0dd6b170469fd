// Package transactions creates purchase, sale and rental transactions and
// processes rental returns, coordinating inventory effects in one database
// transaction per operation.
package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// TransactionHeader is the top-level record of one business event. It owns
// its lines, events and rental lifecycle; totals are always recomputed from
// the lines, never edited directly.
type TransactionHeader struct {
	domain.Audit
	TransactionNumber string                   `db:"transaction_number" json:"transaction_number"`
	TransactionType   domain.TransactionType   `db:"transaction_type" json:"transaction_type"`
	Status            domain.TransactionStatus `db:"status" json:"status"`
	CustomerID        *uuid.UUID               `db:"customer_id" json:"customer_id,omitempty"`
	SupplierID        *uuid.UUID               `db:"supplier_id" json:"supplier_id,omitempty"`
	LocationID        uuid.UUID                `db:"location_id" json:"location_id"`
	TransactionDate   time.Time                `db:"transaction_date" json:"transaction_date"`
	Subtotal          decimal.Decimal          `db:"subtotal" json:"subtotal"`
	DiscountAmount    decimal.Decimal          `db:"discount_amount" json:"discount_amount"`
	TaxAmount         decimal.Decimal          `db:"tax_amount" json:"tax_amount"`
	ShippingAmount    decimal.Decimal          `db:"shipping_amount" json:"shipping_amount"`
	OtherCharges      decimal.Decimal          `db:"other_charges" json:"other_charges"`
	TotalAmount       decimal.Decimal          `db:"total_amount" json:"total_amount"`
	PaidAmount        decimal.Decimal          `db:"paid_amount" json:"paid_amount"`
	DepositAmount     decimal.Decimal          `db:"deposit_amount" json:"deposit_amount"`
	PaymentStatus     domain.PaymentStatus     `db:"payment_status" json:"payment_status"`
	RentalStartDate   *time.Time               `db:"rental_start_date" json:"rental_start_date,omitempty"`
	RentalEndDate     *time.Time               `db:"rental_end_date" json:"rental_end_date,omitempty"`
	RentalStatus      *domain.RentalStatus     `db:"current_rental_status" json:"current_rental_status,omitempty"`
	Notes             *string                  `db:"notes" json:"notes,omitempty"`
	DeletedAt         *time.Time               `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy         *uuid.UUID               `db:"deleted_by" json:"deleted_by,omitempty"`

	// Lines are loaded eagerly with the header; they are not lazily
	// traversed at use sites.
	Lines []TransactionLine `db:"-" json:"lines,omitempty"`
}

// Validate checks header constraints prior to persistence.
func (h *TransactionHeader) Validate() error {
	if !h.TransactionType.IsValid() {
		return domain.NewValidationError("transaction_type", "unknown transaction type")
	}
	switch h.TransactionType {
	case domain.TransactionTypeSale, domain.TransactionTypeRental:
		if h.CustomerID == nil {
			return domain.NewValidationError("customer_id", "customer is required for sales and rentals")
		}
	case domain.TransactionTypePurchase:
		if h.SupplierID == nil {
			return domain.NewValidationError("supplier_id", "supplier is required for purchases")
		}
	}
	if h.TransactionType == domain.TransactionTypeRental {
		if h.RentalStartDate == nil || h.RentalEndDate == nil {
			return domain.NewValidationError("rental_dates", "rental start and end dates are required")
		}
		if h.RentalEndDate.Before(*h.RentalStartDate) {
			return domain.NewValidationError("rental_end_date", "rental end date precedes start date")
		}
	}
	if len(h.Lines) == 0 {
		return domain.NewValidationError("lines", "transaction requires at least one line")
	}
	for i := range h.Lines {
		if err := h.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeTotals derives the monetary totals from the lines. Called after
// every line mutation; the stored totals are never trusted as inputs.
func (h *TransactionHeader) RecomputeTotals() {
	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	tax := decimal.Zero
	deposit := decimal.Zero
	for i := range h.Lines {
		l := &h.Lines[i]
		l.Recompute()
		subtotal = subtotal.Add(l.Quantity.Mul(l.UnitPrice))
		lineDiscounts = lineDiscounts.Add(l.DiscountAmount)
		tax = tax.Add(l.TaxAmount)
		deposit = deposit.Add(l.DepositAmount)
	}

	h.Subtotal = domain.RoundMoney(subtotal)
	h.DiscountAmount = domain.RoundMoney(lineDiscounts)
	h.TaxAmount = domain.RoundMoney(tax)
	h.DepositAmount = domain.RoundMoney(deposit)
	h.TotalAmount = domain.RoundMoney(
		h.Subtotal.Sub(h.DiscountAmount).Add(h.TaxAmount).Add(h.ShippingAmount).Add(h.OtherCharges))
}

// BalanceDue is the unpaid remainder of the total.
func (h *TransactionHeader) BalanceDue() decimal.Decimal {
	return h.TotalAmount.Sub(h.PaidAmount)
}

// IsPaid reports whether the balance is settled.
func (h *TransactionHeader) IsPaid() bool {
	return !h.BalanceDue().IsPositive()
}

// RecordPayment applies a payment and advances the payment status:
// PENDING -> PARTIAL on the first payment with balance remaining, -> PAID
// when the balance reaches zero. Overpayment is rejected unless the caller
// explicitly allows it.
func (h *TransactionHeader) RecordPayment(amount decimal.Decimal, allowOverpayment bool) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "payment amount must be positive")
	}
	if h.PaymentStatus.IsTerminal() {
		return &domain.IllegalStateTransitionError{
			Entity: "payment",
			From:   string(h.PaymentStatus),
			To:     string(domain.PaymentStatusPartial),
		}
	}
	if !allowOverpayment && amount.GreaterThan(h.BalanceDue()) {
		return domain.NewValidationError("amount", "payment exceeds balance due")
	}

	h.PaidAmount = h.PaidAmount.Add(amount)
	if h.IsPaid() {
		h.PaymentStatus = domain.PaymentStatusPaid
	} else {
		h.PaymentStatus = domain.PaymentStatusPartial
	}
	return nil
}

// MarkRefunded moves a header to the terminal REFUNDED payment state. Admin
// action only.
func (h *TransactionHeader) MarkRefunded() error {
	if h.PaymentStatus.IsTerminal() {
		return &domain.IllegalStateTransitionError{
			Entity: "payment",
			From:   string(h.PaymentStatus),
			To:     string(domain.PaymentStatusRefunded),
		}
	}
	h.PaymentStatus = domain.PaymentStatusRefunded
	return nil
}

// MarkPaymentFailed moves a header to the terminal FAILED payment state.
func (h *TransactionHeader) MarkPaymentFailed() error {
	if h.PaymentStatus.IsTerminal() {
		return &domain.IllegalStateTransitionError{
			Entity: "payment",
			From:   string(h.PaymentStatus),
			To:     string(domain.PaymentStatusFailed),
		}
	}
	h.PaymentStatus = domain.PaymentStatusFailed
	return nil
}

// AggregateRentalStatus derives the header rental status from the per-line
// statuses. Lateness dominates, then partial returns, then extensions;
// COMPLETED only once every line is completed.
func AggregateRentalStatus(lines []TransactionLine) domain.RentalStatus {
	var anyLate, anyPartial, anyExtended, anyOpen bool
	completed := 0
	for i := range lines {
		status := domain.RentalStatusInProgress
		if lines[i].RentalStatus != nil {
			status = *lines[i].RentalStatus
		}
		switch status {
		case domain.RentalStatusLate:
			anyLate = true
		case domain.RentalStatusLatePartialReturn:
			anyLate = true
			anyPartial = true
		case domain.RentalStatusPartialReturn:
			anyPartial = true
		case domain.RentalStatusExtended:
			anyExtended = true
		case domain.RentalStatusCompleted:
			completed++
		default:
			anyOpen = true
		}
	}

	switch {
	case anyLate && anyPartial:
		return domain.RentalStatusLatePartialReturn
	case anyLate:
		return domain.RentalStatusLate
	case anyPartial:
		return domain.RentalStatusPartialReturn
	case anyExtended:
		return domain.RentalStatusExtended
	case completed == len(lines) && !anyOpen:
		return domain.RentalStatusCompleted
	default:
		return domain.RentalStatusInProgress
	}
}

// RefreshRentalStatus recomputes the header rental status from its lines.
func (h *TransactionHeader) RefreshRentalStatus() {
	if h.TransactionType != domain.TransactionTypeRental || len(h.Lines) == 0 {
		return
	}
	status := AggregateRentalStatus(h.Lines)
	h.RentalStatus = &status
}

// SoftDelete hides the header from default queries without removing it.
func (h *TransactionHeader) SoftDelete(actor uuid.UUID, now time.Time) {
	h.IsActive = false
	h.DeletedAt = &now
	h.DeletedBy = &actor
	h.Touch(actor, now)
}
