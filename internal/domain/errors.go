package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError indicates an input violated a declared constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError indicates a referenced entity does not exist or is soft-deleted.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for an entity identified by id.
func NewNotFoundError(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// ConflictError indicates a uniqueness collision (SKU, transaction number,
// stock-level tuple, sequence tuple).
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// InsufficientStockError indicates available quantity at a location cannot
// cover the requested quantity.
type InsufficientStockError struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s at location %s: requested %s, available %s",
		e.ItemID, e.LocationID, e.Requested, e.Available)
}

// InsufficientUnitsError indicates fewer allocatable serialized units exist
// than the stock level claims available. It is a data-drift sentinel: the
// ledger and the unit table disagree.
type InsufficientUnitsError struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
	Requested  int
	Found      int
}

func (e *InsufficientUnitsError) Error() string {
	return fmt.Sprintf("only %d allocatable units for item %s at location %s, need %d",
		e.Found, e.ItemID, e.LocationID, e.Requested)
}

// IllegalStateTransitionError indicates a unit-status or payment-status move
// outside the allowed transition set.
type IllegalStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalStateTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// InventoryConsistencyError indicates a post-condition invariant would fail,
// e.g. a quantity bucket would become negative.
type InventoryConsistencyError struct {
	Message string
}

func (e *InventoryConsistencyError) Error() string {
	return fmt.Sprintf("inventory consistency violation: %s", e.Message)
}

// InactiveSequenceError indicates SKU generation was attempted on a
// deactivated sequence.
type InactiveSequenceError struct {
	SequenceID uuid.UUID
}

func (e *InactiveSequenceError) Error() string {
	return fmt.Sprintf("sku sequence %s is inactive", e.SequenceID)
}

// DatabaseError wraps an infrastructure failure (connection lost, deadlock,
// lock-wait timeout). The enclosing transaction is always rolled back.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
