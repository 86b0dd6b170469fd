package database

import (
	"context"
	"fmt"
)

// Migration is one versioned schema change. The full table list is explicit:
// no model registry, no reflection-based discovery.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the ordered list of schema changes applied at startup.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "catalog tables",
		SQL: `
CREATE TABLE IF NOT EXISTS locations (
    id UUID PRIMARY KEY,
    code VARCHAR(20) NOT NULL UNIQUE,
    name TEXT NOT NULL,
    location_type VARCHAR(20) NOT NULL,
    address TEXT,
    contact_phone TEXT,
    contact_email TEXT,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS parties (
    id UUID PRIMARY KEY,
    kind VARCHAR(10) NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS items (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    sku TEXT NOT NULL UNIQUE,
    brand_id UUID,
    category_id UUID,
    unit_of_measurement TEXT NOT NULL DEFAULT 'pcs',
    rental_rate_per_period NUMERIC(12,2) NOT NULL DEFAULT 0,
    rental_period_days INTEGER NOT NULL DEFAULT 1,
    sale_price NUMERIC(12,2) NOT NULL DEFAULT 0,
    security_deposit NUMERIC(12,2) NOT NULL DEFAULT 0,
    tax_rate_percent NUMERIC(7,4) NOT NULL DEFAULT 0,
    is_rentable BOOLEAN NOT NULL DEFAULT FALSE,
    is_saleable BOOLEAN NOT NULL DEFAULT FALSE,
    serial_number_required BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);`,
	},
	{
		Version: 2,
		Name:    "sku and transaction-number sequences",
		SQL: `
CREATE TABLE IF NOT EXISTS sku_sequences (
    id UUID PRIMARY KEY,
    brand_id UUID,
    category_id UUID,
    prefix TEXT NOT NULL DEFAULT '',
    suffix TEXT NOT NULL DEFAULT '',
    padding_length INTEGER NOT NULL DEFAULT 5,
    format_template TEXT NOT NULL,
    next_sequence BIGINT NOT NULL DEFAULT 1,
    total_generated BIGINT NOT NULL DEFAULT 0,
    last_generated_sku TEXT,
    last_generated_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1,
    CONSTRAINT uq_sku_sequences_scope UNIQUE NULLS NOT DISTINCT (brand_id, category_id)
);

CREATE TABLE IF NOT EXISTS transaction_number_sequences (
    transaction_type VARCHAR(12) NOT NULL,
    year INTEGER NOT NULL,
    next_number BIGINT NOT NULL DEFAULT 1,
    PRIMARY KEY (transaction_type, year)
);`,
	},
	{
		Version: 3,
		Name:    "inventory tables",
		SQL: `
CREATE TABLE IF NOT EXISTS stock_levels (
    id UUID PRIMARY KEY,
    item_id UUID NOT NULL REFERENCES items(id),
    location_id UUID NOT NULL REFERENCES locations(id),
    quantity_available NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_reserved NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_on_rent NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_damaged NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_under_repair NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_beyond_repair NUMERIC(12,2) NOT NULL DEFAULT 0,
    quantity_on_hand NUMERIC(12,2) NOT NULL DEFAULT 0,
    average_cost NUMERIC(12,4) NOT NULL DEFAULT 0,
    total_value NUMERIC(14,2) NOT NULL DEFAULT 0,
    reorder_point NUMERIC(12,2),
    maximum_stock NUMERIC(12,2),
    stock_status VARCHAR(15) NOT NULL DEFAULT 'OUT_OF_STOCK',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1,
    CONSTRAINT uq_stock_levels_item_location UNIQUE (item_id, location_id)
);

CREATE TABLE IF NOT EXISTS inventory_units (
    id UUID PRIMARY KEY,
    item_id UUID NOT NULL REFERENCES items(id),
    location_id UUID NOT NULL REFERENCES locations(id),
    sku TEXT NOT NULL UNIQUE,
    serial_number TEXT UNIQUE,
    batch_code TEXT,
    status VARCHAR(15) NOT NULL,
    condition VARCHAR(10) NOT NULL,
    purchase_price NUMERIC(12,2) NOT NULL DEFAULT 0,
    warranty_expiry DATE,
    next_maintenance_date DATE,
    is_rental_blocked BOOLEAN NOT NULL DEFAULT FALSE,
    acquired_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_inventory_units_item_location
    ON inventory_units(item_id, location_id, status);

CREATE TABLE IF NOT EXISTS unit_status_history (
    id UUID PRIMARY KEY,
    unit_id UUID NOT NULL REFERENCES inventory_units(id),
    old_status VARCHAR(15) NOT NULL,
    new_status VARCHAR(15) NOT NULL,
    old_condition VARCHAR(10),
    new_condition VARCHAR(10),
    reason TEXT NOT NULL,
    performed_by UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_movements (
    id UUID PRIMARY KEY,
    stock_level_id UUID NOT NULL REFERENCES stock_levels(id),
    item_id UUID NOT NULL,
    location_id UUID NOT NULL,
    movement_type VARCHAR(25) NOT NULL,
    quantity_change NUMERIC(12,2) NOT NULL,
    quantity_before NUMERIC(12,2) NOT NULL,
    quantity_after NUMERIC(12,2) NOT NULL,
    on_hand_change NUMERIC(12,2) NOT NULL DEFAULT 0,
    transaction_header_id UUID,
    transaction_line_id UUID,
    unit_cost NUMERIC(12,4),
    reason TEXT NOT NULL,
    notes TEXT,
    correlation_id UUID,
    approved_by UUID,
    requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
    performed_by UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_level_created
    ON stock_movements(stock_level_id, created_at);
CREATE INDEX IF NOT EXISTS idx_stock_movements_item
    ON stock_movements(item_id, created_at);`,
	},
	{
		Version: 4,
		Name:    "transaction tables",
		SQL: `
CREATE TABLE IF NOT EXISTS transaction_headers (
    id UUID PRIMARY KEY,
    transaction_number TEXT NOT NULL UNIQUE,
    transaction_type VARCHAR(12) NOT NULL,
    status VARCHAR(12) NOT NULL,
    customer_id UUID,
    supplier_id UUID,
    location_id UUID NOT NULL REFERENCES locations(id),
    transaction_date TIMESTAMPTZ NOT NULL,
    subtotal NUMERIC(14,2) NOT NULL DEFAULT 0,
    discount_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    tax_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    shipping_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    other_charges NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    deposit_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    payment_status VARCHAR(10) NOT NULL DEFAULT 'PENDING',
    rental_start_date DATE,
    rental_end_date DATE,
    current_rental_status VARCHAR(30),
    notes TEXT,
    deleted_at TIMESTAMPTZ,
    deleted_by UUID,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS transaction_lines (
    id UUID PRIMARY KEY,
    transaction_header_id UUID NOT NULL REFERENCES transaction_headers(id),
    line_number INTEGER NOT NULL,
    item_id UUID NOT NULL REFERENCES items(id),
    description TEXT,
    quantity NUMERIC(12,2) NOT NULL,
    unit_price NUMERIC(12,2) NOT NULL,
    discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    tax_rate NUMERIC(7,4) NOT NULL DEFAULT 0,
    tax_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    line_total NUMERIC(14,2) NOT NULL DEFAULT 0,
    deposit_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    rental_period NUMERIC(8,2),
    rental_start_date DATE,
    rental_end_date DATE,
    returned_quantity NUMERIC(12,2) NOT NULL DEFAULT 0,
    current_rental_status VARCHAR(30),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1,
    CONSTRAINT uq_transaction_lines_header_line UNIQUE (transaction_header_id, line_number)
);

CREATE TABLE IF NOT EXISTS transaction_events (
    id UUID PRIMARY KEY,
    transaction_id UUID NOT NULL REFERENCES transaction_headers(id),
    event_type TEXT NOT NULL,
    event_category VARCHAR(10) NOT NULL,
    event_data JSONB NOT NULL DEFAULT '{}',
    status VARCHAR(12),
    performed_by UUID NOT NULL,
    event_timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transaction_events_transaction
    ON transaction_events(transaction_id, event_timestamp);`,
	},
	{
		Version: 5,
		Name:    "rental lifecycle tables",
		SQL: `
CREATE TABLE IF NOT EXISTS rental_lifecycles (
    id UUID PRIMARY KEY,
    transaction_header_id UUID NOT NULL UNIQUE REFERENCES transaction_headers(id),
    current_status VARCHAR(30) NOT NULL,
    expected_return_date DATE,
    total_late_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_damage_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_other_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    created_by UUID NOT NULL,
    updated_by UUID,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS rental_inspections (
    id UUID PRIMARY KEY,
    transaction_header_id UUID NOT NULL REFERENCES transaction_headers(id),
    transaction_line_id UUID NOT NULL REFERENCES transaction_lines(id),
    damage_type TEXT NOT NULL,
    severity VARCHAR(10) NOT NULL,
    repair_cost_estimate NUMERIC(12,2),
    serial_numbers TEXT,
    notes TEXT,
    inspected_by UUID NOT NULL,
    inspected_at TIMESTAMPTZ NOT NULL
);`,
	},
}

// Migrate applies all pending migrations, recording applied versions in
// schema_migrations. Each migration runs in its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating schema_migrations: %w", err)
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		err := d.WithinTx(ctx, func(q Querier) error {
			if _, err := q.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
			}
			if _, err := q.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				m.Version, m.Name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		d.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	}
	return nil
}
