package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location represents a physical site holding inventory.
type Location struct {
	Audit
	Code         string       `db:"code" json:"code"`
	Name         string       `db:"name" json:"name"`
	LocationType LocationType `db:"location_type" json:"location_type"`
	Address      *string      `db:"address" json:"address,omitempty"`
	ContactPhone *string      `db:"contact_phone" json:"contact_phone,omitempty"`
	ContactEmail *string      `db:"contact_email" json:"contact_email,omitempty"`
	DeletedAt    *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy    *uuid.UUID   `db:"deleted_by" json:"deleted_by,omitempty"`
}

// Validate checks location constraints prior to persistence.
func (l *Location) Validate() error {
	if l.Code == "" {
		return NewValidationError("code", "location code is required")
	}
	if len(l.Code) > 20 {
		return NewValidationError("code", "location code must be at most 20 characters")
	}
	if l.Name == "" {
		return NewValidationError("name", "location name is required")
	}
	if !l.LocationType.IsValid() {
		return NewValidationError("location_type", "unknown location type")
	}
	return nil
}

// Item is a catalog master entry. Items are referenced by stock levels,
// units and transaction lines and are never hard-deleted while referenced.
type Item struct {
	Audit
	Name                 string          `db:"name" json:"name"`
	SKU                  string          `db:"sku" json:"sku"`
	BrandID              *uuid.UUID      `db:"brand_id" json:"brand_id,omitempty"`
	CategoryID           *uuid.UUID      `db:"category_id" json:"category_id,omitempty"`
	UnitOfMeasurement    string          `db:"unit_of_measurement" json:"unit_of_measurement"`
	RentalRatePerPeriod  decimal.Decimal `db:"rental_rate_per_period" json:"rental_rate_per_period"`
	RentalPeriodDays     int             `db:"rental_period_days" json:"rental_period_days"`
	SalePrice            decimal.Decimal `db:"sale_price" json:"sale_price"`
	SecurityDeposit      decimal.Decimal `db:"security_deposit" json:"security_deposit"`
	TaxRatePercent       decimal.Decimal `db:"tax_rate_percent" json:"tax_rate_percent"`
	IsRentable           bool            `db:"is_rentable" json:"is_rentable"`
	IsSaleable           bool            `db:"is_saleable" json:"is_saleable"`
	SerialNumberRequired bool            `db:"serial_number_required" json:"serial_number_required"`
}

// Validate checks item constraints prior to persistence.
func (i *Item) Validate() error {
	if i.Name == "" {
		return NewValidationError("name", "item name is required")
	}
	if i.SKU == "" {
		return NewValidationError("sku", "item sku is required")
	}
	if i.RentalRatePerPeriod.IsNegative() || i.SalePrice.IsNegative() || i.SecurityDeposit.IsNegative() {
		return NewValidationError("pricing", "prices must be non-negative")
	}
	if i.TaxRatePercent.IsNegative() {
		return NewValidationError("tax_rate_percent", "tax rate must be non-negative")
	}
	if !i.IsRentable && !i.IsSaleable {
		return NewValidationError("flags", "item must be rentable or saleable")
	}
	return nil
}

// DailyLateRate returns the per-day late fee rate for a rentable item,
// derived from the rental rate and the rental period length.
func (i *Item) DailyLateRate() decimal.Decimal {
	days := i.RentalPeriodDays
	if days <= 0 {
		days = 1
	}
	return i.RentalRatePerPeriod.DivRound(decimal.NewFromInt(int64(days)), MoneyPlaces)
}

// PartyKind distinguishes the two external parties a transaction may reference.
type PartyKind string

const (
	PartyCustomer PartyKind = "CUSTOMER"
	PartySupplier PartyKind = "SUPPLIER"
)

// Party is the minimal customer/supplier record the core validates against.
// Full party management lives outside the core.
type Party struct {
	Audit
	Kind PartyKind `db:"kind" json:"kind"`
	Name string    `db:"name" json:"name"`
}
