package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one verification attempt. Pure history: no uniqueness
// constraint, retention handled by the archiver.
type AuditEntry struct {
	ID            string    `json:"id"`
	SignatureHash string    `json:"signature_hash"`
	PublicKeyRef  string    `json:"public_key_ref,omitempty"`
	Revoked       bool      `json:"revoked"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditLogStore is the append-only verification trail
type AuditLogStore struct {
	db *sql.DB
}

// Record appends an entry. Assigns id and timestamp when unset.
func (s *AuditLogStore) Record(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	var pubKey interface{}
	if entry.PublicKeyRef != "" {
		pubKey = entry.PublicKeyRef
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, signature_hash, public_key_ref, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.SignatureHash, pubKey, entry.Revoked, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Count returns the number of audit entries
func (s *AuditLogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

// ListBefore returns up to limit entries created before cutoff, oldest first
func (s *AuditLogStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signature_hash, public_key_ref, revoked, created_at
		 FROM audit_log WHERE created_at < ? ORDER BY created_at, id LIMIT ?`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var pubKey sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SignatureHash, &pubKey,
			&entry.Revoked, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.PublicKeyRef = pubKey.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteBefore removes entries created before cutoff, returning the count
func (s *AuditLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return res.RowsAffected()
}
