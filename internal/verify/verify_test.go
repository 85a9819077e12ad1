package verify_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/verify"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }
func (l *testLogger) Println(v ...interface{})               { l.t.Log(v...) }

type fakeRevReader struct {
	revoked map[string]*store.RevocationFact
	err     error
}

func (f *fakeRevReader) Exists(ctx context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.revoked[id]
	return ok, nil
}

func (f *fakeRevReader) Get(ctx context.Context, id string) (*store.RevocationFact, error) {
	if fact, ok := f.revoked[id]; ok {
		return fact, nil
	}
	return nil, store.ErrNotFound
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []store.AuditEntry
	err     error
}

func (f *fakeAudit) Record(ctx context.Context, entry *store.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func acceptAll(message, signature, publicKey []byte) bool { return true }

func matchSig(expected []byte) verify.VerifyFunc {
	return func(message, signature, publicKey []byte) bool {
		return bytes.Equal(signature, expected)
	}
}

func TestVerifyAccessAllowed(t *testing.T) {
	audit := &fakeAudit{}
	svc := verify.New(&fakeRevReader{revoked: map[string]*store.RevocationFact{}}, audit, acceptAll, &testLogger{t})

	decision, err := svc.VerifyAccess(context.Background(), []byte("open"), []byte("sig"), []byte("pub"))
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.False(t, decision.Revoked)
	assert.Equal(t, verify.HashSignature([]byte("sig")), decision.SignatureHash)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, decision.SignatureHash, audit.entries[0].SignatureHash)
	assert.False(t, audit.entries[0].Revoked)
}

func TestVerifyAccessDeniedForRevokedSignature(t *testing.T) {
	sig := []byte("revoked-sig")
	sigHash := verify.HashSignature(sig)

	audit := &fakeAudit{}
	revs := &fakeRevReader{revoked: map[string]*store.RevocationFact{
		sigHash: {ID: sigHash, LockID: 7},
	}}
	svc := verify.New(revs, audit, acceptAll, &testLogger{t})

	decision, err := svc.VerifyAccess(context.Background(), []byte("open"), sig, nil)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.True(t, decision.Revoked)
	assert.Equal(t, "signature revoked", decision.Reason)

	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Revoked)
}

func TestVerifyAccessDeniedForInvalidSignature(t *testing.T) {
	audit := &fakeAudit{}
	svc := verify.New(&fakeRevReader{revoked: map[string]*store.RevocationFact{}}, audit,
		matchSig([]byte("good")), &testLogger{t})

	decision, err := svc.VerifyAccess(context.Background(), []byte("open"), []byte("forged"), []byte("pub"))
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "signature invalid", decision.Reason)
	assert.Len(t, audit.entries, 1, "failed attempts are audited too")
}

func TestAuditFailureDoesNotBlockDecision(t *testing.T) {
	audit := &fakeAudit{err: fmt.Errorf("audit store down")}
	svc := verify.New(&fakeRevReader{revoked: map[string]*store.RevocationFact{}}, audit, acceptAll, &testLogger{t})

	decision, err := svc.VerifyAccess(context.Background(), []byte("open"), []byte("sig"), nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestIsRevokedPropagatesStoreErrors(t *testing.T) {
	svc := verify.New(&fakeRevReader{err: fmt.Errorf("db locked")}, &fakeAudit{}, nil, &testLogger{t})

	_, err := svc.IsRevoked(context.Background(), "0xaaa")
	assert.Error(t, err)
}

func TestHashSignatureIsStable(t *testing.T) {
	a := verify.HashSignature([]byte("sig"))
	b := verify.HashSignature([]byte("sig"))
	c := verify.HashSignature([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 66, "0x-prefixed 32-byte hash")
}
