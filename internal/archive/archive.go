// Package archive rotates aged audit entries out of the database into
// zstd-compressed JSONL files.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	gozstd "github.com/valyala/gozstd"

	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/types"
)

// maxRotation bounds one rotation pass; anything beyond waits for the next
const maxRotation = 500_000

// AuditSource is the store slice the archiver drains
type AuditSource interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]store.AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RotateResult describes one completed rotation
type RotateResult struct {
	Entries     int    `json:"entries"`
	File        string `json:"file"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
}

// Archiver writes audit archives into a directory
type Archiver struct {
	audit  AuditSource
	dir    string
	logger types.Logger
	clock  func() time.Time
	limit  int // entries per rotation pass
}

// New creates an archiver writing into dir
func New(audit AuditSource, dir string, logger types.Logger) *Archiver {
	if logger == nil {
		logger = types.StdLogger{}
	}
	return &Archiver{
		audit:  audit,
		dir:    dir,
		logger: logger,
		clock:  time.Now,
		limit:  maxRotation,
	}
}

// Rotate moves all audit entries older than olderThan into one compressed
// archive file. Rows are deleted only after the file is durably written, so
// a crash mid-rotation loses nothing (the next run re-archives them). A pass
// that hits the rotation limit stops short of the last listed timestamp:
// rows sharing it may exist beyond the limit, so the whole timestamp is left
// for the next pass rather than archived and deleted halfway.
func (a *Archiver) Rotate(ctx context.Context, olderThan time.Duration) (*RotateResult, error) {
	cutoff := a.clock().Add(-olderThan)

	entries, err := a.audit.ListBefore(ctx, cutoff, a.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to collect audit entries: %w", err)
	}

	if len(entries) == 0 {
		return nil, nil
	}

	deleteCutoff := cutoff
	if len(entries) == a.limit {
		boundary := entries[len(entries)-1].CreatedAt
		n := len(entries)
		for n > 0 && !entries[n-1].CreatedAt.Before(boundary) {
			n--
		}
		if n == 0 {
			a.logger.Printf("[archive] %d entries share timestamp %s, more than one pass holds; skipping rotation",
				len(entries), boundary.Format(time.RFC3339))
			return nil, nil
		}
		entries = entries[:n]
		deleteCutoff = boundary
	}

	jsonl := serializeJSONL(entries)
	contentHash := hashBytes(jsonl)

	compressed := gozstd.Compress(nil, jsonl)

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}

	name := fmt.Sprintf("audit_archive_%s.jsonl.zst", a.clock().UTC().Format("20060102_150405"))
	path := filepath.Join(a.dir, name)

	if err := writeDurable(path, compressed); err != nil {
		return nil, err
	}

	deleted, err := a.audit.DeleteBefore(ctx, deleteCutoff)
	if err != nil {
		return nil, fmt.Errorf("archive written but cleanup failed: %w", err)
	}

	a.logger.Printf("[archive] rotated %d audit entries (%d deleted) to %s (hash %s)",
		len(entries), deleted, name, contentHash[:12])

	return &RotateResult{
		Entries:     len(entries),
		File:        path,
		ContentHash: contentHash,
		Size:        int64(len(compressed)),
	}, nil
}

// Load reads an archive file back into entries (verification tooling)
func Load(path string) ([]store.AuditEntry, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	data, err := gozstd.Decompress(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive: %w", err)
	}

	var entries []store.AuditEntry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var entry store.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse archive line: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func serializeJSONL(entries []store.AuditEntry) []byte {
	var buf bytes.Buffer
	for _, entry := range entries {
		data, _ := json.Marshal(entry)
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func writeDurable(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	return file.Close()
}
