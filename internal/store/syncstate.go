package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckpointKey identifies one sync checkpoint
type CheckpointKey struct {
	Network         string
	ContractAddress string
	LockID          uint64
}

// Checkpoint records the highest block fully covered by history scans
type Checkpoint struct {
	CheckpointKey
	LastScannedBlock uint64
	UpdatedAt        time.Time
}

// SyncStateStore persists one checkpoint per (network, contract, lock)
type SyncStateStore struct {
	db *sql.DB
}

// Get loads the checkpoint. ok is false when none has been created yet.
func (s *SyncStateStore) Get(ctx context.Context, key CheckpointKey) (cp Checkpoint, ok bool, err error) {
	cp.CheckpointKey = key
	err = s.db.QueryRowContext(ctx,
		`SELECT last_scanned_block, updated_at FROM sync_state
		 WHERE network = ? AND contract_address = ? AND lock_id = ?`,
		key.Network, key.ContractAddress, key.LockID).
		Scan(&cp.LastScannedBlock, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, false, nil
	}
	if err != nil {
		return cp, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, true, nil
}

// Save upserts the checkpoint. The block number never moves backwards:
// a lower value than what is stored is silently ignored. Committing only
// after a fully processed range is the caller's responsibility.
func (s *SyncStateStore) Save(ctx context.Context, key CheckpointKey, lastScannedBlock uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (network, contract_address, lock_id, last_scanned_block, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(network, contract_address, lock_id) DO UPDATE SET
		   last_scanned_block = excluded.last_scanned_block,
		   updated_at = excluded.updated_at
		 WHERE excluded.last_scanned_block >= sync_state.last_scanned_block`,
		key.Network, key.ContractAddress, key.LockID, lastScannedBlock, now())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset force-sets the checkpoint, bypassing the monotonic guard.
// Only the operator-triggered full resync uses this.
func (s *SyncStateStore) Reset(ctx context.Context, key CheckpointKey, lastScannedBlock uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (network, contract_address, lock_id, last_scanned_block, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(network, contract_address, lock_id) DO UPDATE SET
		   last_scanned_block = excluded.last_scanned_block,
		   updated_at = excluded.updated_at`,
		key.Network, key.ContractAddress, key.LockID, lastScannedBlock, now())
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}
