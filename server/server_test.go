package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrazakos/revwatch/internal/chain"
	"github.com/mrazakos/revwatch/internal/engine"
	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/verify"
)

const (
	testContract = "0x1111111111111111111111111111111111111111"
	revokedHash  = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	unknownHash  = "0x00000000000000000000000000000000000000000000000000000000000000ff"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }
func (l *testLogger) Println(v ...interface{})               { l.t.Log(v...) }

// fakeReader is a poll-only chain with one revocation at block 150
type fakeReader struct {
	height uint64
	events []chain.RevocationEvent
}

func (f *fakeReader) CurrentHeight(ctx context.Context) (uint64, error) {
	return f.height, nil
}

func (f *fakeReader) Subscribe(ctx context.Context) (<-chan chain.RevocationEvent, chain.Subscription, error) {
	return nil, nil, chain.ErrPushUnsupported
}

func (f *fakeReader) QueryRange(ctx context.Context, fromBlock, toBlock uint64) ([]chain.RevocationEvent, error) {
	var out []chain.RevocationEvent
	for _, ev := range f.events {
		if ev.BlockNumber >= fromBlock && ev.BlockNumber <= toBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeReader) LockInfo(ctx context.Context) (*chain.LockInfo, error) {
	return &chain.LockInfo{
		LockID:       7,
		Owner:        "0x2222222222222222222222222222222222222222",
		PublicKey:    "0xbeef",
		RevokedCount: 1,
	}, nil
}

func (f *fakeReader) Close() {}

// newTestServer boots a real engine over an in-memory store and returns the
// wired HTTP handler
func newTestServer(t *testing.T, enableWS bool) *Server {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reader := &fakeReader{
		height: 200,
		events: []chain.RevocationEvent{
			{
				SignatureHash: revokedHash,
				LockID:        7,
				RevokedBy:     "0x3333333333333333333333333333333333333333",
				BlockNumber:   150,
				TxHash:        "0xdead",
			},
		},
	}

	eng := engine.New(reader, db.Revocations(), db.SyncState(), engine.Config{
		Network:         "testnet",
		ContractAddress: testContract,
		LockID:          7,
		StartBlock:      100,
		ScanInterval:    time.Hour,
		BatchSize:       10_000,
	}, engine.WithLogger(&testLogger{t}))

	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)

	verifier := verify.New(db.Revocations(), db.AuditLog(), nil, &testLogger{t})

	return New(eng, verifier, db, &Config{
		Addr:            ":0",
		EnableWebSocket: enableWS,
		Version:         "test",
	}, &testLogger{t})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var health engine.Health
	rec := doJSON(t, handler, "GET", "/health", &health)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "running", health.State)
	assert.Equal(t, uint64(200), health.CurrentHeight)
	assert.Equal(t, uint64(200), health.LastScannedBlock)
	assert.Equal(t, uint64(0), health.Lag)
	assert.Equal(t, uint64(1), health.ScanApplied)
}

func TestStatusEndpoint(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var status map[string]interface{}
	rec := doJSON(t, handler, "GET", "/status", &status)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "revwatch", status["service"])
	assert.Equal(t, "test", status["version"])
	assert.Equal(t, float64(1), status["revocation_count"])
	require.Contains(t, status, "lock")
}

func TestCheckEndpoint(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var result map[string]interface{}
	rec := doJSON(t, handler, "GET", "/check/"+revokedHash, &result)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, result["revoked"])

	rec = doJSON(t, handler, "GET", "/check/"+unknownHash, &result)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, false, result["revoked"])
}

func TestGetRevocation(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var fact store.RevocationFact
	rec := doJSON(t, handler, "GET", "/revocations/"+revokedHash, &fact)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, revokedHash, fact.ID)
	assert.Equal(t, uint64(150), fact.BlockNumber)

	rec = doJSON(t, handler, "GET", "/revocations/"+unknownHash, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestListRevocations(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var body struct {
		Revocations []store.RevocationFact `json:"revocations"`
		Limit       int                    `json:"limit"`
	}
	rec := doJSON(t, handler, "GET", "/revocations?limit=10", &body)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, 10, body.Limit)
	require.Len(t, body.Revocations, 1)
	assert.Equal(t, revokedHash, body.Revocations[0].ID)
}

func TestResyncEndpoint(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var result map[string]interface{}
	rec := doJSON(t, handler, "POST", "/resync", &result)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "completed", result["resync"])
}

func TestUnknownPathReturns404(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	rec := doJSON(t, handler, "GET", "/nonsense", nil)
	assert.Equal(t, 404, rec.Code)
}

func TestRootListsEndpoints(t *testing.T) {
	handler := newTestServer(t, false).createHandler()

	var body map[string]interface{}
	rec := doJSON(t, handler, "GET", "/", &body)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "revwatch", body["service"])
	require.Contains(t, body, "endpoints")
}

func TestWebSocketBroadcast(t *testing.T) {
	srv := newTestServer(t, true)
	go srv.hub.run()
	t.Cleanup(srv.hub.close)

	ts := httptest.NewServer(srv.createHandler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// give the hub time to register the client before broadcasting
	time.Sleep(100 * time.Millisecond)

	srv.BroadcastFact(store.RevocationFact{
		ID:          "0xlive",
		LockID:      7,
		BlockNumber: 160,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type       string               `json:"type"`
		Revocation store.RevocationFact `json:"revocation"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "revocation", msg.Type)
	assert.Equal(t, "0xlive", msg.Revocation.ID)
	assert.Equal(t, uint64(160), msg.Revocation.BlockNumber)
}
