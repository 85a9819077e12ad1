// Package store persists revocation facts, sync checkpoints and the audit
// trail in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS revocations (
	id           TEXT PRIMARY KEY,
	lock_id      INTEGER NOT NULL,
	revoked_by   TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	tx_ref       TEXT NOT NULL,
	revoked_at   TIMESTAMP NOT NULL,
	observed_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revocations_lock_block
	ON revocations(lock_id, block_number);

CREATE TABLE IF NOT EXISTS sync_state (
	network            TEXT NOT NULL,
	contract_address   TEXT NOT NULL,
	lock_id            INTEGER NOT NULL,
	last_scanned_block INTEGER NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	PRIMARY KEY (network, contract_address, lock_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             TEXT PRIMARY KEY,
	signature_hash TEXT NOT NULL,
	public_key_ref TEXT,
	revoked        INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

// DB wraps the SQLite handle shared by the three repositories
type DB struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows a single writer; serialize access through one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying handle
func (d *DB) Close() error {
	return d.db.Close()
}

// Revocations returns the revocation fact repository
func (d *DB) Revocations() *RevocationStore {
	return &RevocationStore{db: d.db}
}

// SyncState returns the checkpoint repository
func (d *DB) SyncState() *SyncStateStore {
	return &SyncStateStore{db: d.db}
}

// AuditLog returns the audit trail repository
func (d *DB) AuditLog() *AuditLogStore {
	return &AuditLogStore{db: d.db}
}

// now is separated for tests
var now = func() time.Time { return time.Now().UTC() }
