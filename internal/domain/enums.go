// Package domain provides core domain models and types shared across modules.
package domain

// TransactionType classifies a business event recorded by a transaction header.
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeSale       TransactionType = "SALE"
	TransactionTypeRental     TransactionType = "RENTAL"
	TransactionTypeReturn     TransactionType = "RETURN"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

// IsValid checks if the transaction type is a known value.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeSale, TransactionTypeRental,
		TransactionTypeReturn, TransactionTypeAdjustment, TransactionTypeTransfer:
		return true
	default:
		return false
	}
}

// NumberPrefix returns the transaction-number prefix for the type
// (e.g. "PUR" for PUR-2024-00001).
func (t TransactionType) NumberPrefix() string {
	switch t {
	case TransactionTypePurchase:
		return "PUR"
	case TransactionTypeSale:
		return "SAL"
	case TransactionTypeRental:
		return "RNT"
	case TransactionTypeReturn:
		return "RET"
	case TransactionTypeAdjustment:
		return "ADJ"
	case TransactionTypeTransfer:
		return "TRF"
	default:
		return "TXN"
	}
}

// TransactionStatus is the processing status of a transaction header.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusInProgress TransactionStatus = "IN_PROGRESS"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusOnHold     TransactionStatus = "ON_HOLD"
)

// IsValid checks if the transaction status is a known value.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusInProgress,
		TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusOnHold:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks how much of a transaction total has been settled.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// IsValid checks if the payment status is a known value.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid,
		PaymentStatusRefunded, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further payment transitions are allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusRefunded || s == PaymentStatusFailed
}

// RentalStatus tracks a rental's progress, per line and aggregated per header.
type RentalStatus string

const (
	RentalStatusInProgress        RentalStatus = "RENTAL_INPROGRESS"
	RentalStatusExtended          RentalStatus = "RENTAL_EXTENDED"
	RentalStatusPartialReturn     RentalStatus = "RENTAL_PARTIAL_RETURN"
	RentalStatusLate              RentalStatus = "RENTAL_LATE"
	RentalStatusLatePartialReturn RentalStatus = "RENTAL_LATE_PARTIAL_RETURN"
	RentalStatusCompleted         RentalStatus = "RENTAL_COMPLETED"
)

// IsValid checks if the rental status is a known value.
func (s RentalStatus) IsValid() bool {
	switch s {
	case RentalStatusInProgress, RentalStatusExtended, RentalStatusPartialReturn,
		RentalStatusLate, RentalStatusLatePartialReturn, RentalStatusCompleted:
		return true
	default:
		return false
	}
}

// StockMovementType classifies an entry in the stock-movement ledger.
type StockMovementType string

const (
	MovementPurchase            StockMovementType = "PURCHASE"
	MovementSale                StockMovementType = "SALE"
	MovementRentalOut           StockMovementType = "RENTAL_OUT"
	MovementRentalReturn        StockMovementType = "RENTAL_RETURN"
	MovementRentalReturnDamaged StockMovementType = "RENTAL_RETURN_DAMAGED"
	MovementRentalReturnMixed   StockMovementType = "RENTAL_RETURN_MIXED"
	MovementAdjustmentPositive  StockMovementType = "ADJUSTMENT_POSITIVE"
	MovementAdjustmentNegative  StockMovementType = "ADJUSTMENT_NEGATIVE"
	MovementTransferIn          StockMovementType = "TRANSFER_IN"
	MovementTransferOut         StockMovementType = "TRANSFER_OUT"
	MovementReservation         StockMovementType = "RESERVATION"
	MovementReservationRelease  StockMovementType = "RESERVATION_RELEASE"
)

// IsValid checks if the movement type is a known value.
func (t StockMovementType) IsValid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementRentalOut, MovementRentalReturn,
		MovementRentalReturnDamaged, MovementRentalReturnMixed,
		MovementAdjustmentPositive, MovementAdjustmentNegative,
		MovementTransferIn, MovementTransferOut,
		MovementReservation, MovementReservationRelease:
		return true
	default:
		return false
	}
}

// UnitStatus is the lifecycle status of an individual serialized unit.
type UnitStatus string

const (
	UnitStatusAvailable    UnitStatus = "AVAILABLE"
	UnitStatusReserved     UnitStatus = "RESERVED"
	UnitStatusRented       UnitStatus = "RENTED"
	UnitStatusUnderRepair  UnitStatus = "UNDER_REPAIR"
	UnitStatusDamaged      UnitStatus = "DAMAGED"
	UnitStatusBeyondRepair UnitStatus = "BEYOND_REPAIR"
	UnitStatusSold         UnitStatus = "SOLD"
	UnitStatusLost         UnitStatus = "LOST"
)

// IsValid checks if the unit status is a known value.
func (s UnitStatus) IsValid() bool {
	switch s {
	case UnitStatusAvailable, UnitStatusReserved, UnitStatusRented, UnitStatusUnderRepair,
		UnitStatusDamaged, UnitStatusBeyondRepair, UnitStatusSold, UnitStatusLost:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusBeyondRepair || s == UnitStatusSold || s == UnitStatusLost
}

// UnitCondition is the physical condition grade of a serialized unit.
type UnitCondition string

const (
	ConditionExcellent UnitCondition = "EXCELLENT"
	ConditionGood      UnitCondition = "GOOD"
	ConditionFair      UnitCondition = "FAIR"
	ConditionPoor      UnitCondition = "POOR"
	ConditionDamaged   UnitCondition = "DAMAGED"
)

// IsValid checks if the unit condition is a known value.
func (c UnitCondition) IsValid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged:
		return true
	default:
		return false
	}
}

// LocationType classifies a physical site.
type LocationType string

const (
	LocationTypeStore         LocationType = "STORE"
	LocationTypeWarehouse     LocationType = "WAREHOUSE"
	LocationTypeServiceCenter LocationType = "SERVICE_CENTER"
)

// IsValid checks if the location type is a known value.
func (t LocationType) IsValid() bool {
	switch t {
	case LocationTypeStore, LocationTypeWarehouse, LocationTypeServiceCenter:
		return true
	default:
		return false
	}
}

// StockStatus is the derived state of a stock level.
type StockStatus string

const (
	StockStatusInStock     StockStatus = "IN_STOCK"
	StockStatusLowStock    StockStatus = "LOW_STOCK"
	StockStatusOutOfStock  StockStatus = "OUT_OF_STOCK"
	StockStatusOverstocked StockStatus = "OVERSTOCKED"
)

// EventCategory classifies a transaction audit event.
type EventCategory string

const (
	EventCategoryGeneral   EventCategory = "GENERAL"
	EventCategoryInventory EventCategory = "INVENTORY"
	EventCategoryPayment   EventCategory = "PAYMENT"
	EventCategoryError     EventCategory = "ERROR"
)

// IsValid checks if the event category is a known value.
func (c EventCategory) IsValid() bool {
	switch c {
	case EventCategoryGeneral, EventCategoryInventory, EventCategoryPayment, EventCategoryError:
		return true
	default:
		return false
	}
}
