package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no fact exists for the id
var ErrNotFound = errors.New("revocation fact not found")

// RevocationFact is one confirmed on-chain revocation. ID is the content
// hash of the revoked signature and the natural dedup key. Facts are
// written once and never updated or deleted.
type RevocationFact struct {
	ID          string    `json:"id"`
	LockID      uint64    `json:"lock_id"`
	RevokedBy   string    `json:"revoked_by"`
	BlockNumber uint64    `json:"block_number"`
	TxRef       string    `json:"tx_ref"`
	RevokedAt   time.Time `json:"revoked_at"`
	ObservedAt  time.Time `json:"observed_at"`
}

// RevocationStore persists revocation facts keyed by signature hash
type RevocationStore struct {
	db *sql.DB
}

// Save inserts a fact. A duplicate id is a benign no-op (a race between the
// push and pull paths, or between concurrent deliveries): inserted reports
// whether this call actually wrote the row.
func (s *RevocationStore) Save(ctx context.Context, fact *RevocationFact) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revocations
		 (id, lock_id, revoked_by, block_number, tx_ref, revoked_at, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.LockID, fact.RevokedBy, fact.BlockNumber,
		fact.TxRef, fact.RevokedAt, fact.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save revocation %s: %w", fact.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists reports whether a fact with the given id is recorded
func (s *RevocationStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM revocations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check revocation %s: %w", id, err)
	}
	return true, nil
}

// Get returns the fact for id, or ErrNotFound
func (s *RevocationStore) Get(ctx context.Context, id string) (*RevocationFact, error) {
	fact := &RevocationFact{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lock_id, revoked_by, block_number, tx_ref, revoked_at, observed_at
		 FROM revocations WHERE id = ?`, id).
		Scan(&fact.ID, &fact.LockID, &fact.RevokedBy, &fact.BlockNumber,
			&fact.TxRef, &fact.RevokedAt, &fact.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load revocation %s: %w", id, err)
	}
	return fact, nil
}

// Count returns the total number of recorded facts
func (s *RevocationStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count revocations: %w", err)
	}
	return n, nil
}

// List returns facts ordered by block number then id
func (s *RevocationStore) List(ctx context.Context, limit, offset int) ([]RevocationFact, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lock_id, revoked_by, block_number, tx_ref, revoked_at, observed_at
		 FROM revocations ORDER BY block_number, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list revocations: %w", err)
	}
	defer rows.Close()

	var facts []RevocationFact
	for rows.Next() {
		var fact RevocationFact
		if err := rows.Scan(&fact.ID, &fact.LockID, &fact.RevokedBy, &fact.BlockNumber,
			&fact.TxRef, &fact.RevokedAt, &fact.ObservedAt); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}
