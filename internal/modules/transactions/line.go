package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// TransactionLine is one item position on a header. Lines are ordered by
// line_number, unique within the header.
type TransactionLine struct {
	domain.Audit
	TransactionHeaderID uuid.UUID            `db:"transaction_header_id" json:"transaction_header_id"`
	LineNumber          int                  `db:"line_number" json:"line_number"`
	ItemID              uuid.UUID            `db:"item_id" json:"item_id"`
	Description         *string              `db:"description" json:"description,omitempty"`
	Quantity            decimal.Decimal      `db:"quantity" json:"quantity"`
	UnitPrice           decimal.Decimal      `db:"unit_price" json:"unit_price"`
	DiscountAmount      decimal.Decimal      `db:"discount_amount" json:"discount_amount"`
	TaxRate             decimal.Decimal      `db:"tax_rate" json:"tax_rate"`
	TaxAmount           decimal.Decimal      `db:"tax_amount" json:"tax_amount"`
	LineTotal           decimal.Decimal      `db:"line_total" json:"line_total"`
	DepositAmount       decimal.Decimal      `db:"deposit_amount" json:"deposit_amount"`
	RentalPeriod        *decimal.Decimal     `db:"rental_period" json:"rental_period,omitempty"`
	RentalStartDate     *time.Time           `db:"rental_start_date" json:"rental_start_date,omitempty"`
	RentalEndDate       *time.Time           `db:"rental_end_date" json:"rental_end_date,omitempty"`
	ReturnedQuantity    decimal.Decimal      `db:"returned_quantity" json:"returned_quantity"`
	RentalStatus        *domain.RentalStatus `db:"current_rental_status" json:"current_rental_status,omitempty"`
}

// Validate checks line constraints prior to persistence.
func (l *TransactionLine) Validate() error {
	if !l.Quantity.IsPositive() {
		return domain.NewValidationError("quantity", "line quantity must be positive")
	}
	if l.UnitPrice.IsNegative() {
		return domain.NewValidationError("unit_price", "unit price must be non-negative")
	}
	if l.DiscountAmount.IsNegative() {
		return domain.NewValidationError("discount_amount", "discount must be non-negative")
	}
	gross := l.Quantity.Mul(l.UnitPrice)
	if l.DiscountAmount.GreaterThan(gross) {
		return domain.NewValidationError("discount_amount", "discount exceeds line gross amount")
	}
	if l.TaxRate.IsNegative() {
		return domain.NewValidationError("tax_rate", "tax rate must be non-negative")
	}
	if l.RentalStartDate != nil && l.RentalEndDate != nil && l.RentalEndDate.Before(*l.RentalStartDate) {
		return domain.NewValidationError("rental_end_date", "rental end date precedes start date")
	}
	return nil
}

// Recompute derives tax_amount and line_total from the line's own fields.
// Tax is charged on the discounted base; rental lines multiply by the period
// count.
func (l *TransactionLine) Recompute() {
	base := l.Quantity.Mul(l.UnitPrice).Sub(l.DiscountAmount)
	l.TaxAmount = domain.TaxAmount(base, l.TaxRate)

	multiplier := decimal.NewFromInt(1)
	if l.RentalPeriod != nil && l.RentalPeriod.IsPositive() {
		multiplier = *l.RentalPeriod
	}
	l.LineTotal = domain.LineTotal(l.Quantity, l.UnitPrice, l.DiscountAmount, l.TaxAmount, multiplier)
}

// RemainingQuantity is the quantity still out on rent.
func (l *TransactionLine) RemainingQuantity() decimal.Decimal {
	return l.Quantity.Sub(l.ReturnedQuantity)
}

// IsFullyReturned reports whether the whole line quantity has come back.
func (l *TransactionLine) IsFullyReturned() bool {
	return l.ReturnedQuantity.GreaterThanOrEqual(l.Quantity)
}

// IsLate reports whether the line's own rental end date has passed. The
// per-line date is authoritative; the header date is display metadata.
func (l *TransactionLine) IsLate(asOf time.Time) bool {
	return l.RentalEndDate != nil && asOf.After(*l.RentalEndDate)
}

// DaysLate returns whole days past the line's rental end date, zero when on
// time. A partial day counts as a full late day.
func (l *TransactionLine) DaysLate(asOf time.Time) int {
	if l.RentalEndDate == nil || !asOf.After(*l.RentalEndDate) {
		return 0
	}
	diff := asOf.Sub(*l.RentalEndDate)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}
