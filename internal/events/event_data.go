// Package events defines typed payloads for the transaction audit trail.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrentals/core/internal/domain"
)

// EventData is the interface implemented by every audit event payload.
// A single append function accepts any variant; there are no per-category
// factory methods.
type EventData interface {
	// EventType returns the stable event type name stored with the payload.
	EventType() string
	// Category returns the audit category the event is filed under.
	Category() domain.EventCategory
}

// TransactionCreatedData is recorded when a header and its lines are first
// persisted.
type TransactionCreatedData struct {
	TransactionNumber string                 `json:"transaction_number"`
	TransactionType   domain.TransactionType `json:"transaction_type"`
	LineCount         int                    `json:"line_count"`
	TotalAmount       decimal.Decimal        `json:"total_amount"`
}

func (d *TransactionCreatedData) EventType() string { return "transaction_created" }

func (d *TransactionCreatedData) Category() domain.EventCategory { return domain.EventCategoryGeneral }

// PaymentReceivedData is recorded for every accepted payment.
type PaymentReceivedData struct {
	Amount        decimal.Decimal      `json:"amount"`
	Method        string               `json:"method"`
	Reference     string               `json:"reference,omitempty"`
	PaidToDate    decimal.Decimal      `json:"paid_to_date"`
	BalanceDue    decimal.Decimal      `json:"balance_due"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
}

func (d *PaymentReceivedData) EventType() string { return "payment_received" }

func (d *PaymentReceivedData) Category() domain.EventCategory { return domain.EventCategoryPayment }

// InventoryActionData is recorded when a transaction produces physical
// inventory effects (receipt, checkout, return, transfer).
type InventoryActionData struct {
	Action     string          `json:"action"`
	ItemID     uuid.UUID       `json:"item_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitIDs    []uuid.UUID     `json:"unit_ids,omitempty"`
}

func (d *InventoryActionData) EventType() string { return "inventory_action" }

func (d *InventoryActionData) Category() domain.EventCategory { return domain.EventCategoryInventory }

// RentalReturnData summarizes one processed rental return.
type RentalReturnData struct {
	ReturnDate     time.Time       `json:"return_date"`
	GoodQty        decimal.Decimal `json:"good_qty"`
	DamagedQty     decimal.Decimal `json:"damaged_qty"`
	BeyondRepair   decimal.Decimal `json:"beyond_repair_qty"`
	LostQty        decimal.Decimal `json:"lost_qty"`
	LateFee        decimal.Decimal `json:"late_fee"`
	DamagePenalty  decimal.Decimal `json:"damage_penalty"`
	DepositRefund  decimal.Decimal `json:"deposit_refund"`
	DaysLate       int             `json:"days_late"`
	FullyReturned  bool            `json:"fully_returned"`
	HeaderStatus   string          `json:"header_status"`
}

func (d *RentalReturnData) EventType() string { return "rental_return_processed" }

func (d *RentalReturnData) Category() domain.EventCategory { return domain.EventCategoryInventory }

// OperationFailedData is recorded when a transaction operation fails after
// the header exists (the enclosing DB transaction still rolls back state
// changes; the error event is written by the caller in a fresh transaction).
type OperationFailedData struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

func (d *OperationFailedData) EventType() string { return "operation_failed" }

func (d *OperationFailedData) Category() domain.EventCategory { return domain.EventCategoryError }
