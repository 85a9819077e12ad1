package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrazakos/revwatch/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fact(id string, block uint64) *store.RevocationFact {
	now := time.Now().UTC().Truncate(time.Second)
	return &store.RevocationFact{
		ID:          id,
		LockID:      7,
		RevokedBy:   "0xrevoker",
		BlockNumber: block,
		TxRef:       "0xtx_" + id,
		RevokedAt:   now,
		ObservedAt:  now,
	}
}

func TestRevocationSaveIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	revs := db.Revocations()
	ctx := context.Background()

	inserted, err := revs.Save(ctx, fact("0xaaa", 100))
	require.NoError(t, err)
	assert.True(t, inserted)

	// duplicate insert is a benign no-op, never an error
	inserted, err = revs.Save(ctx, fact("0xaaa", 100))
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := revs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRevocationExistsAndGet(t *testing.T) {
	db := openTestDB(t)
	revs := db.Revocations()
	ctx := context.Background()

	ok, err := revs.Exists(ctx, "0xmissing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = revs.Get(ctx, "0xmissing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	want := fact("0xbbb", 200)
	_, err = revs.Save(ctx, want)
	require.NoError(t, err)

	ok, err = revs.Exists(ctx, "0xbbb")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := revs.Get(ctx, "0xbbb")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.LockID, got.LockID)
	assert.Equal(t, want.BlockNumber, got.BlockNumber)
	assert.Equal(t, want.TxRef, got.TxRef)
}

func TestRevocationListOrdering(t *testing.T) {
	db := openTestDB(t)
	revs := db.Revocations()
	ctx := context.Background()

	for _, f := range []*store.RevocationFact{
		fact("0xccc", 300),
		fact("0xaaa", 100),
		fact("0xbbb", 200),
	} {
		_, err := revs.Save(ctx, f)
		require.NoError(t, err)
	}

	facts, err := revs.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	assert.Equal(t, "0xaaa", facts[0].ID)
	assert.Equal(t, "0xbbb", facts[1].ID)
	assert.Equal(t, "0xccc", facts[2].ID)

	page, err := revs.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "0xbbb", page[0].ID)
}

func TestCheckpointMonotonic(t *testing.T) {
	db := openTestDB(t)
	sync := db.SyncState()
	ctx := context.Background()
	key := store.CheckpointKey{Network: "testnet", ContractAddress: "0xc", LockID: 7}

	_, ok, err := sync.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sync.Save(ctx, key, 1000))

	cp, ok, err := sync.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), cp.LastScannedBlock)

	// a lower value never wins
	require.NoError(t, sync.Save(ctx, key, 500))
	cp, _, err = sync.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), cp.LastScannedBlock)

	require.NoError(t, sync.Save(ctx, key, 1500))
	cp, _, err = sync.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), cp.LastScannedBlock)
}

func TestCheckpointResetBypassesGuard(t *testing.T) {
	db := openTestDB(t)
	sync := db.SyncState()
	ctx := context.Background()
	key := store.CheckpointKey{Network: "testnet", ContractAddress: "0xc", LockID: 7}

	require.NoError(t, sync.Save(ctx, key, 9000))
	require.NoError(t, sync.Reset(ctx, key, 999))

	cp, _, err := sync.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), cp.LastScannedBlock)
}

func TestCheckpointKeysAreIndependent(t *testing.T) {
	db := openTestDB(t)
	sync := db.SyncState()
	ctx := context.Background()

	keyA := store.CheckpointKey{Network: "testnet", ContractAddress: "0xc", LockID: 1}
	keyB := store.CheckpointKey{Network: "testnet", ContractAddress: "0xc", LockID: 2}

	require.NoError(t, sync.Save(ctx, keyA, 100))
	require.NoError(t, sync.Save(ctx, keyB, 200))

	cpA, _, err := sync.Get(ctx, keyA)
	require.NoError(t, err)
	cpB, _, err := sync.Get(ctx, keyB)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), cpA.LastScannedBlock)
	assert.Equal(t, uint64(200), cpB.LastScannedBlock)
}

func TestAuditRecordAndRetention(t *testing.T) {
	db := openTestDB(t)
	audit := db.AuditLog()
	ctx := context.Background()

	old := &store.AuditEntry{
		SignatureHash: "0xold",
		Revoked:       true,
		CreatedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &store.AuditEntry{
		SignatureHash: "0xrecent",
		PublicKeyRef:  "0xkey",
	}

	require.NoError(t, audit.Record(ctx, old))
	require.NoError(t, audit.Record(ctx, recent))
	assert.NotEmpty(t, recent.ID, "Record assigns an id")

	// duplicate hashes are fine: the trail has no uniqueness constraint
	require.NoError(t, audit.Record(ctx, &store.AuditEntry{SignatureHash: "0xrecent"}))

	n, err := audit.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	aged, err := audit.ListBefore(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, "0xold", aged[0].SignatureHash)
	assert.True(t, aged[0].Revoked)

	deleted, err := audit.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err = audit.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
