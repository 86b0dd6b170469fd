// Package catalog holds the reference data transactions point at: items,
// locations and parties. The transactional modules only read it; writes come
// from catalog management itself.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// Repository handles catalog persistence.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new catalog repository.
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{log: log.With().Str("repo", "catalog").Logger()}
}

const itemColumns = `id, name, sku, brand_id, category_id, unit_of_measurement,
	rental_rate_per_period, rental_period_days, sale_price, security_deposit,
	tax_rate_percent, is_rentable, is_saleable, serial_number_required,
	created_at, updated_at, created_by, updated_by, is_active, version`

const locationColumns = `id, code, name, location_type, address, contact_phone,
	contact_email, deleted_at, deleted_by,
	created_at, updated_at, created_by, updated_by, is_active, version`

const partyColumns = `id, kind, name,
	created_at, updated_at, created_by, updated_by, is_active, version`

// GetItem loads one item by id. Returns nil without error when the item does
// not exist; callers decide whether that is fatal.
func (r *Repository) GetItem(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Item, error) {
	var item domain.Item
	err := sqlx.GetContext(ctx, q, &item,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "catalog.get_item", Err: err}
	}
	return &item, nil
}

// GetItemBySKU loads one item by its catalog SKU.
func (r *Repository) GetItemBySKU(ctx context.Context, q database.Querier, sku string) (*domain.Item, error) {
	var item domain.Item
	err := sqlx.GetContext(ctx, q, &item,
		`SELECT `+itemColumns+` FROM items WHERE sku = $1`, sku)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "catalog.get_item_by_sku", Err: err}
	}
	return &item, nil
}

// InsertItem persists a new catalog item.
func (r *Repository) InsertItem(ctx context.Context, q database.Querier, item *domain.Item) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO items
		(id, name, sku, brand_id, category_id, unit_of_measurement,
		 rental_rate_per_period, rental_period_days, sale_price, security_deposit,
		 tax_rate_percent, is_rentable, is_saleable, serial_number_required,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		item.ID, item.Name, item.SKU, item.BrandID, item.CategoryID, item.UnitOfMeasurement,
		item.RentalRatePerPeriod, item.RentalPeriodDays, item.SalePrice, item.SecurityDeposit,
		item.TaxRatePercent, item.IsRentable, item.IsSaleable, item.SerialNumberRequired,
		item.CreatedAt, item.UpdatedAt, item.CreatedBy, item.IsActive, item.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &domain.ConflictError{Entity: "item", Key: item.SKU}
		}
		return &domain.DatabaseError{Op: "catalog.insert_item", Err: err}
	}
	return nil
}

// SaveItem writes an existing item back.
func (r *Repository) SaveItem(ctx context.Context, q database.Querier, item *domain.Item) error {
	_, err := q.ExecContext(ctx, `
		UPDATE items
		SET name = $2, unit_of_measurement = $3, rental_rate_per_period = $4,
		    rental_period_days = $5, sale_price = $6, security_deposit = $7,
		    tax_rate_percent = $8, is_rentable = $9, is_saleable = $10,
		    serial_number_required = $11, is_active = $12,
		    updated_at = $13, updated_by = $14, version = $15
		WHERE id = $1`,
		item.ID, item.Name, item.UnitOfMeasurement, item.RentalRatePerPeriod,
		item.RentalPeriodDays, item.SalePrice, item.SecurityDeposit,
		item.TaxRatePercent, item.IsRentable, item.IsSaleable,
		item.SerialNumberRequired, item.IsActive,
		item.UpdatedAt, item.UpdatedBy, item.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "catalog.save_item", Err: err}
	}
	return nil
}

// ListItems returns active items, optionally filtered to rentable/saleable.
func (r *Repository) ListItems(ctx context.Context, q database.Querier, filter ItemFilter) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE is_active`
	var args []interface{}
	if filter.RentableOnly {
		query += ` AND is_rentable`
	}
	if filter.SaleableOnly {
		query += ` AND is_saleable`
	}
	query += ` ORDER BY name ASC`

	var items []domain.Item
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, &domain.DatabaseError{Op: "catalog.list_items", Err: err}
	}
	return items, nil
}

// ItemFilter narrows catalog item listings.
type ItemFilter struct {
	RentableOnly bool
	SaleableOnly bool
}

// GetLocation loads one location by id; nil when missing.
func (r *Repository) GetLocation(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Location, error) {
	var loc domain.Location
	err := sqlx.GetContext(ctx, q, &loc,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "catalog.get_location", Err: err}
	}
	return &loc, nil
}

// InsertLocation persists a new location.
func (r *Repository) InsertLocation(ctx context.Context, q database.Querier, loc *domain.Location) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO locations
		(id, code, name, location_type, address, contact_phone, contact_email,
		 created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loc.ID, loc.Code, loc.Name, loc.LocationType, loc.Address, loc.ContactPhone,
		loc.ContactEmail, loc.CreatedAt, loc.UpdatedAt, loc.CreatedBy, loc.IsActive, loc.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &domain.ConflictError{Entity: "location", Key: loc.Code}
		}
		return &domain.DatabaseError{Op: "catalog.insert_location", Err: err}
	}
	return nil
}

// SaveLocation writes an existing location back, including soft-delete marks.
func (r *Repository) SaveLocation(ctx context.Context, q database.Querier, loc *domain.Location) error {
	_, err := q.ExecContext(ctx, `
		UPDATE locations
		SET name = $2, location_type = $3, address = $4, contact_phone = $5,
		    contact_email = $6, is_active = $7, deleted_at = $8, deleted_by = $9,
		    updated_at = $10, updated_by = $11, version = $12
		WHERE id = $1`,
		loc.ID, loc.Name, loc.LocationType, loc.Address, loc.ContactPhone,
		loc.ContactEmail, loc.IsActive, loc.DeletedAt, loc.DeletedBy,
		loc.UpdatedAt, loc.UpdatedBy, loc.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "catalog.save_location", Err: err}
	}
	return nil
}

// ListLocations returns active locations ordered by code.
func (r *Repository) ListLocations(ctx context.Context, q database.Querier) ([]domain.Location, error) {
	var locations []domain.Location
	err := sqlx.SelectContext(ctx, q, &locations,
		`SELECT `+locationColumns+` FROM locations WHERE is_active ORDER BY code ASC`)
	if err != nil {
		return nil, &domain.DatabaseError{Op: "catalog.list_locations", Err: err}
	}
	return locations, nil
}

// CountStockAtLocation returns how many stock-level rows hold quantity at the
// location. Used to refuse deleting a location that still has stock.
func (r *Repository) CountStockAtLocation(ctx context.Context, q database.Querier, locationID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM stock_levels
		WHERE location_id = $1 AND quantity_on_hand > 0`, locationID)
	if err != nil {
		return 0, &domain.DatabaseError{Op: "catalog.count_stock_at_location", Err: err}
	}
	return count, nil
}

// GetParty loads one party by id; nil when missing.
func (r *Repository) GetParty(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Party, error) {
	var party domain.Party
	err := sqlx.GetContext(ctx, q, &party,
		`SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, &domain.DatabaseError{Op: "catalog.get_party", Err: err}
	}
	return &party, nil
}

// InsertParty persists a new customer or supplier reference.
func (r *Repository) InsertParty(ctx context.Context, q database.Querier, party *domain.Party) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO parties
		(id, kind, name, created_at, updated_at, created_by, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		party.ID, party.Kind, party.Name, party.CreatedAt, party.UpdatedAt,
		party.CreatedBy, party.IsActive, party.Version)
	if err != nil {
		return &domain.DatabaseError{Op: "catalog.insert_party", Err: err}
	}
	return nil
}
