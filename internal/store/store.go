// Package store persists readings durably and queryably by time and device.
//
// It uses DuckDB as the backing database: one append-only readings table
// keyed by the system-generated id, plus a unique composite index on
// (measurement_time, device_sn). The index enforces the dedup key and
// serves the point lookup used by dedup, the per-device range scan and
// the latest-reading reverse scan with a single structure.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/apc-tools/apcstore/internal/config"
	"github.com/apc-tools/apcstore/internal/errors"
)

// schemaTable is the persisted state layout. Timestamps are Unix
// milliseconds.
const schemaTable = `
CREATE TABLE IF NOT EXISTS readings (
	id                  VARCHAR PRIMARY KEY,
	created_on_ms       BIGINT NOT NULL,
	measurement_time_ms BIGINT NOT NULL,
	location            VARCHAR NOT NULL,
	device_sn           VARCHAR NOT NULL,
	tvoc                INTEGER NOT NULL,
	eco2                INTEGER NOT NULL,
	aqi                 INTEGER NOT NULL,
	temperature         INTEGER NOT NULL,
	humidity            INTEGER NOT NULL,
	pm1_0               INTEGER NOT NULL,
	pm2_5               INTEGER NOT NULL,
	pm10                INTEGER NOT NULL,
	pm1_0_in_air        INTEGER NOT NULL,
	pm2_5_in_air        INTEGER NOT NULL,
	pm10_in_air         INTEGER NOT NULL,
	um0_3_particles     INTEGER NOT NULL,
	um0_5_particles     INTEGER NOT NULL,
	um1_particles       INTEGER NOT NULL,
	um2_5_particles     INTEGER NOT NULL,
	um5_particles       INTEGER NOT NULL,
	um10_particles      INTEGER NOT NULL
)`

// schemaIndex is the unique composite index on the dedup key. Uniqueness
// is enforced by the backend so that two concurrent inserts of the same
// key can never both commit; InsertIfAbsent reconciles the violation.
const schemaIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_time_device
	ON readings (measurement_time_ms, device_sn)`

// Store provides reading persistence and queries.
//
// Store is safe for concurrent use. There is no update or delete: readings
// are immutable once stored.
type Store struct {
	db     *sql.DB
	config config.StoreConfig
	mu     sync.RWMutex
	closed bool
}

// New creates a Store with the given configuration and ensures the schema
// exists. An empty Path opens an in-memory database.
func New(cfg config.StoreConfig) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range []string{schemaTable, schemaIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &Store{
		db:     db,
		config: cfg,
	}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// isClosed reports whether Close has been called.
func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// defaultContext derives a context with the configured query timeout when
// the caller's context carries no deadline.
func (s *Store) defaultContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := s.config.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// TransactionContext executes fn within a database transaction.
//
// If fn returns an error, the transaction is rolled back. The context is
// checked before commit so a timed-out operation never commits late.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("context cancelled before commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// isDedupKeyViolation reports whether err is the unique-index violation
// on the (measurement_time, device_sn) dedup key. DuckDB names the
// violated columns in its duplicate-key message; the id primary key never
// appears in it.
func isDedupKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "Duplicate key") {
		return false
	}
	return strings.Contains(msg, "device_sn") && strings.Contains(msg, "measurement_time_ms")
}

// classify maps a backend error into the store error taxonomy.
//
// Dedup-key uniqueness violations never reach classify; InsertIfAbsent
// reconciles them first. A constraint error here therefore means the
// primary key on the system-generated id was violated, which is fatal.
// Everything else (timeouts, connection loss, transaction write-write
// conflicts) is transient and safe to retry because retries reconcile
// through the dedup key.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}

	msg := err.Error()
	if strings.Contains(msg, "Constraint Error") || strings.Contains(msg, "constraint") {
		return errors.Wrap(errors.ErrCorrupt, msg)
	}

	return errors.Wrap(errors.ErrUnavailable, msg)
}
