package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
	"github.com/openrentals/core/internal/events"
)

// Repository handles transaction header, line and event persistence. Headers
// are loaded with their lines eagerly; there is no lazy traversal.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{log: log.With().Str("repo", "transactions").Logger()}
}

const headerColumns = `id, transaction_number, transaction_type, status, customer_id, supplier_id,
	location_id, transaction_date, subtotal, discount_amount, tax_amount, shipping_amount,
	other_charges, total_amount, paid_amount, deposit_amount, payment_status,
	rental_start_date, rental_end_date, current_rental_status, notes, deleted_at, deleted_by,
	created_at, updated_at, created_by, updated_by, is_active, version`

const lineColumns = `id, transaction_header_id, line_number, item_id, description, quantity,
	unit_price, discount_amount, tax_rate, tax_amount, line_total, deposit_amount,
	rental_period, rental_start_date, rental_end_date, returned_quantity, current_rental_status,
	created_at, updated_at, created_by, updated_by, is_active, version`

// InsertHeader persists a new header. A transaction-number collision is a
// ConflictError (should not happen given the allocator, drift sentinel).
func (r *Repository) InsertHeader(ctx context.Context, q database.Querier, h *TransactionHeader) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transaction_headers
		(id, transaction_number, transaction_type, status, customer_id, supplier_id,
		 location_id, transaction_date, subtotal, discount_amount, tax_amount, shipping_amount,
		 other_charges, total_amount, paid_amount, deposit_amount, payment_status,
		 rental_start_date, rental_end_date, current_rental_status, notes,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		h.ID, h.TransactionNumber, h.TransactionType, h.Status, h.CustomerID, h.SupplierID,
		h.LocationID, h.TransactionDate, h.Subtotal, h.DiscountAmount, h.TaxAmount, h.ShippingAmount,
		h.OtherCharges, h.TotalAmount, h.PaidAmount, h.DepositAmount, h.PaymentStatus,
		h.RentalStartDate, h.RentalEndDate, h.RentalStatus, h.Notes,
		h.CreatedAt, h.UpdatedAt, h.CreatedBy, h.IsActive, h.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &domain.ConflictError{Entity: "transaction number", Key: h.TransactionNumber}
		}
		return &domain.DatabaseError{Op: "transaction_header.insert", Err: err}
	}
	return nil
}

// InsertLine persists one line of a header.
func (r *Repository) InsertLine(ctx context.Context, q database.Querier, l *TransactionLine) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transaction_lines
		(id, transaction_header_id, line_number, item_id, description, quantity,
		 unit_price, discount_amount, tax_rate, tax_amount, line_total, deposit_amount,
		 rental_period, rental_start_date, rental_end_date, returned_quantity, current_rental_status,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		l.ID, l.TransactionHeaderID, l.LineNumber, l.ItemID, l.Description, l.Quantity,
		l.UnitPrice, l.DiscountAmount, l.TaxRate, l.TaxAmount, l.LineTotal, l.DepositAmount,
		l.RentalPeriod, l.RentalStartDate, l.RentalEndDate, l.ReturnedQuantity, l.RentalStatus,
		l.CreatedAt, l.UpdatedAt, l.CreatedBy, l.IsActive, l.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &domain.ConflictError{
				Entity: "transaction line",
				Key:    fmt.Sprintf("(%s,%d)", l.TransactionHeaderID, l.LineNumber),
			}
		}
		return &domain.DatabaseError{Op: "transaction_line.insert", Err: err}
	}
	return nil
}

// GetHeaderForUpdate loads an active header with its lines under a row-level
// write lock on the header. Soft-deleted headers are not returned.
func (r *Repository) GetHeaderForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*TransactionHeader, error) {
	var header TransactionHeader
	query := fmt.Sprintf(`SELECT %s FROM transaction_headers
		WHERE id = $1 AND is_active FOR UPDATE`, headerColumns)
	if err := sqlx.GetContext(ctx, q, &header, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.NewNotFoundError("transaction", id)
		}
		return nil, &domain.DatabaseError{Op: "transaction_header.get_for_update", Err: err}
	}

	lines, err := r.listLines(ctx, q, id, true)
	if err != nil {
		return nil, err
	}
	header.Lines = lines
	return &header, nil
}

// GetHeader loads an active header with its lines, without locking.
func (r *Repository) GetHeader(ctx context.Context, q database.Querier, id uuid.UUID) (*TransactionHeader, error) {
	var header TransactionHeader
	query := fmt.Sprintf(`SELECT %s FROM transaction_headers
		WHERE id = $1 AND is_active`, headerColumns)
	if err := sqlx.GetContext(ctx, q, &header, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.NewNotFoundError("transaction", id)
		}
		return nil, &domain.DatabaseError{Op: "transaction_header.get", Err: err}
	}

	lines, err := r.listLines(ctx, q, id, false)
	if err != nil {
		return nil, err
	}
	header.Lines = lines
	return &header, nil
}

func (r *Repository) listLines(ctx context.Context, q database.Querier, headerID uuid.UUID, forUpdate bool) ([]TransactionLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM transaction_lines
		WHERE transaction_header_id = $1 ORDER BY line_number ASC`, lineColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var lines []TransactionLine
	if err := sqlx.SelectContext(ctx, q, &lines, query, headerID); err != nil {
		return nil, &domain.DatabaseError{Op: "transaction_line.list", Err: err}
	}
	return lines, nil
}

// SaveHeader writes mutable header fields back.
func (r *Repository) SaveHeader(ctx context.Context, q database.Querier, h *TransactionHeader) error {
	_, err := q.ExecContext(ctx, `
		UPDATE transaction_headers
		SET status = $2, subtotal = $3, discount_amount = $4, tax_amount = $5,
		    shipping_amount = $6, other_charges = $7, total_amount = $8, paid_amount = $9,
		    deposit_amount = $10, payment_status = $11, current_rental_status = $12,
		    notes = $13, deleted_at = $14, deleted_by = $15,
		    updated_at = $16, updated_by = $17, is_active = $18, version = $19
		WHERE id = $1`,
		h.ID, h.Status, h.Subtotal, h.DiscountAmount, h.TaxAmount,
		h.ShippingAmount, h.OtherCharges, h.TotalAmount, h.PaidAmount,
		h.DepositAmount, h.PaymentStatus, h.RentalStatus,
		h.Notes, h.DeletedAt, h.DeletedBy,
		h.UpdatedAt, h.UpdatedBy, h.IsActive, h.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "transaction_header.save", Err: err}
	}
	return nil
}

// SaveLine writes mutable line fields back (return progress and status).
func (r *Repository) SaveLine(ctx context.Context, q database.Querier, l *TransactionLine) error {
	_, err := q.ExecContext(ctx, `
		UPDATE transaction_lines
		SET returned_quantity = $2, current_rental_status = $3,
		    updated_at = $4, updated_by = $5, version = $6
		WHERE id = $1`,
		l.ID, l.ReturnedQuantity, l.RentalStatus,
		l.UpdatedAt, l.UpdatedBy, l.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "transaction_line.save", Err: err}
	}
	return nil
}

// HeaderFilter narrows header listings.
type HeaderFilter struct {
	TransactionType *domain.TransactionType
	Status          *domain.TransactionStatus
	CustomerID      *uuid.UUID
	SupplierID      *uuid.UUID
	LocationID      *uuid.UUID
	From            *time.Time
	To              *time.Time
	IncludeDeleted  bool
	Limit           int
}

// ListHeaders returns headers matching the filter, newest first, without
// lines. Soft-deleted headers are excluded unless asked for.
func (r *Repository) ListHeaders(ctx context.Context, q database.Querier, filter HeaderFilter) ([]TransactionHeader, error) {
	query := fmt.Sprintf(`SELECT %s FROM transaction_headers`, headerColumns)
	var clauses []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "is_active")
	}
	if filter.TransactionType != nil {
		add("transaction_type = $%d", *filter.TransactionType)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if filter.SupplierID != nil {
		add("supplier_id = $%d", *filter.SupplierID)
	}
	if filter.LocationID != nil {
		add("location_id = $%d", *filter.LocationID)
	}
	if filter.From != nil {
		add("transaction_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("transaction_date < $%d", *filter.To)
	}

	if len(clauses) > 0 {
		query += " WHERE " + clauses[0]
		for _, c := range clauses[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY transaction_date DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var headers []TransactionHeader
	if err := sqlx.SelectContext(ctx, q, &headers, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "transaction_header.list", Err: err}
	}
	return headers, nil
}

// AppendEvent records one audit event for a header. The payload is stored as
// JSON under the variant's stable type name.
func (r *Repository) AppendEvent(ctx context.Context, q database.Querier, headerID uuid.UUID, data events.EventData, actor uuid.UUID, at time.Time) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return &domain.DatabaseError{Op: "transaction_event.marshal", Err: err}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO transaction_events
		(id, transaction_id, event_type, event_category, event_data, performed_by, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), headerID, data.EventType(), data.Category(), payload, actor, at)
	if err != nil {
		return &domain.DatabaseError{Op: "transaction_event.append", Err: err}
	}
	return nil
}

// TransactionEvent is one stored audit entry.
type TransactionEvent struct {
	ID             uuid.UUID            `db:"id" json:"id"`
	TransactionID  uuid.UUID            `db:"transaction_id" json:"transaction_id"`
	EventType      string               `db:"event_type" json:"event_type"`
	EventCategory  domain.EventCategory `db:"event_category" json:"event_category"`
	EventData      json.RawMessage      `db:"event_data" json:"event_data"`
	PerformedBy    uuid.UUID            `db:"performed_by" json:"performed_by"`
	EventTimestamp time.Time            `db:"event_timestamp" json:"event_timestamp"`
}

// ListEvents returns a header's audit trail in chronological order.
func (r *Repository) ListEvents(ctx context.Context, q database.Querier, headerID uuid.UUID) ([]TransactionEvent, error) {
	var out []TransactionEvent
	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT id, transaction_id, event_type, event_category, event_data, performed_by, event_timestamp
		FROM transaction_events
		WHERE transaction_id = $1
		ORDER BY event_timestamp ASC`, headerID)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "transaction_event.list", Err: err}
	}
	return out, nil
}

// SelectEventsOlderThan returns audit events of one category created before
// the cutoff, oldest first. Used by the retention job.
func (r *Repository) SelectEventsOlderThan(ctx context.Context, q database.Querier, category domain.EventCategory, cutoff time.Time, limit int) ([]TransactionEvent, error) {
	var out []TransactionEvent
	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT id, transaction_id, event_type, event_category, event_data, performed_by, event_timestamp
		FROM transaction_events
		WHERE event_category = $1 AND event_timestamp < $2
		ORDER BY event_timestamp ASC LIMIT $3`, category, cutoff, limit)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "transaction_event.select_older_than", Err: err}
	}
	return out, nil
}

// DeleteEventsByIDs removes archived audit events.
func (r *Repository) DeleteEventsByIDs(ctx context.Context, q database.Querier, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM transaction_events WHERE id IN (?)`, ids)
	if err != nil {
		return 0, &domain.DatabaseError{Op: "transaction_event.delete_by_ids", Err: err}
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &domain.DatabaseError{Op: "transaction_event.delete_by_ids", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}
