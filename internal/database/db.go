// Package database provides database connection, transaction management and
// schema migration for the transactional core.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx registered as a database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/domain"
)

// Querier is the query surface shared by *sqlx.DB and *sqlx.Tx. Repositories
// accept a Querier so the same method runs standalone or inside a composite
// service transaction.
type Querier = sqlx.ExtContext

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Name            string // Friendly name for logging
}

// DB wraps the database connection pool with transaction helpers.
type DB struct {
	conn *sqlx.DB
	name string
	log  zerolog.Logger
}

// New creates a new database connection pool and verifies connectivity.
func New(cfg Config, log zerolog.Logger) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	conn, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn: conn,
		name: cfg.Name,
		log:  log.With().Str("component", "database").Logger(),
	}, nil
}

// Conn exposes the underlying pool for read-only queries that do not need a
// transaction.
func (d *DB) Conn() *sqlx.DB {
	return d.conn
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// WithinTx runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back on any error or panic, so no
// partial state is ever visible to other readers.
func (d *DB) WithinTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.DatabaseError{Op: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.log.Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &domain.DatabaseError{Op: "commit", Err: err}
	}
	return nil
}

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations. First-creator races on sequences and stock levels surface as
// this code and are retried once by re-reading.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint collision.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsNoRows reports whether err is an empty-result sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
