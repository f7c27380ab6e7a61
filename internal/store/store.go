package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ashupal86/GraminStore/internal/models"
)

const schemaVersion = 2

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	merchant_id    INTEGER NOT NULL,
	customer_name  TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	amount         REAL NOT NULL CHECK (amount > 0),
	description    TEXT NOT NULL DEFAULT '',
	payment_kind   TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	sync_state     TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS customer_aggregates (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	merchant_id         INTEGER NOT NULL,
	customer_name       TEXT NOT NULL,
	customer_phone      TEXT NOT NULL DEFAULT '',
	total_transactions  INTEGER NOT NULL DEFAULT 0,
	total_amount        REAL NOT NULL DEFAULT 0,
	last_transaction_at INTEGER NOT NULL,
	sync_state          TEXT NOT NULL DEFAULT 'pending',
	UNIQUE (merchant_id, customer_name)
);

CREATE TABLE IF NOT EXISTS settings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	merchant_id   INTEGER NOT NULL UNIQUE,
	language      TEXT NOT NULL DEFAULT 'en',
	auto_sync     INTEGER NOT NULL DEFAULT 1,
	theme         TEXT NOT NULL DEFAULT 'light',
	notifications INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS calculation_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	merchant_id INTEGER NOT NULL,
	expression  TEXT NOT NULL,
	result      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_merchant_created ON transactions(merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant_sync ON transactions(merchant_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_aggregates_merchant_sync ON customer_aggregates(merchant_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_calc_history_merchant ON calculation_history(merchant_id, created_at);
`

// v2 adds client-generated reference numbers and the phone lookup index.
const schemaV2 = `
ALTER TABLE transactions ADD COLUMN reference_number TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_transactions_merchant_phone ON transactions(merchant_id, customer_phone);
`

// Store is the single source of truth for on-device state. All other
// components read and write through it.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the SQLite ledger at path and migrates the
// schema to the current version.
func NewStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db: %w", err)
	}

	// SQLite allows a single writer; a pool of one avoids SQLITE_BUSY
	// without an external locking discipline.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies additive migrations from the recorded version up to
// schemaVersion. Each step runs in its own transaction and bumps the
// version row, so a partially upgraded file is never left ambiguous.
func migrate(db *sqlx.DB) error {
	ver, err := currentSchemaVersion(db)
	if err != nil {
		return err
	}

	steps := map[int]string{
		0: schemaV1,
		1: schemaV2,
	}

	for ver < schemaVersion {
		ddl, ok := steps[ver]
		if !ok {
			return fmt.Errorf("no migration from schema version %d", ver)
		}

		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ddl); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d -> %d: %w", ver, ver+1, err)
		}
		if _, err := tx.Exec("DELETE FROM schema_meta"); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO schema_meta (version) VALUES (?)", ver+1); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver++
	}

	return nil
}

// currentSchemaVersion returns the version recorded in schema_meta, or 0
// for a fresh database.
func currentSchemaVersion(db *sqlx.DB) (int, error) {
	var count int
	err := db.Get(&count, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_meta'`)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	var ver int
	err = db.Get(&ver, "SELECT version FROM schema_meta LIMIT 1")
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Timestamps are stored as UTC unix milliseconds.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

type transactionRow struct {
	ID              int64   `db:"id"`
	MerchantID      int64   `db:"merchant_id"`
	CustomerName    string  `db:"customer_name"`
	CustomerPhone   string  `db:"customer_phone"`
	Amount          float64 `db:"amount"`
	Description     string  `db:"description"`
	PaymentKind     string  `db:"payment_kind"`
	Status          string  `db:"status"`
	ReferenceNumber string  `db:"reference_number"`
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
	SyncState       string  `db:"sync_state"`
}

func (r transactionRow) toModel() models.Transaction {
	return models.Transaction{
		ID:              r.ID,
		MerchantID:      r.MerchantID,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		Amount:          r.Amount,
		Description:     r.Description,
		PaymentKind:     models.PaymentKind(r.PaymentKind),
		Status:          models.TransactionStatus(r.Status),
		ReferenceNumber: r.ReferenceNumber,
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
		SyncState:       models.SyncState(r.SyncState),
	}
}

type aggregateRow struct {
	ID                int64   `db:"id"`
	MerchantID        int64   `db:"merchant_id"`
	CustomerName      string  `db:"customer_name"`
	CustomerPhone     string  `db:"customer_phone"`
	TotalTransactions int64   `db:"total_transactions"`
	TotalAmount       float64 `db:"total_amount"`
	LastTransactionAt int64   `db:"last_transaction_at"`
	SyncState         string  `db:"sync_state"`
}

func (r aggregateRow) toModel() models.CustomerAggregate {
	return models.CustomerAggregate{
		ID:                r.ID,
		MerchantID:        r.MerchantID,
		CustomerName:      r.CustomerName,
		CustomerPhone:     r.CustomerPhone,
		TotalTransactions: r.TotalTransactions,
		TotalAmount:       r.TotalAmount,
		LastTransactionAt: fromMillis(r.LastTransactionAt),
		SyncState:         models.SyncState(r.SyncState),
	}
}
