// Package engine implements the hybrid synchronization engine: a live push
// subscription and a periodic historical re-scan feeding one deduplicated,
// crash-recoverable revocation cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrazakos/revwatch/internal/chain"
	"github.com/mrazakos/revwatch/internal/dedup"
	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/types"
)

// State is the engine lifecycle state
type State int

const (
	StateStopped State = iota
	StateInitializing
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// InitializationError wraps fatal startup failures. The caller must
// reconfigure and restart; the engine never retries these on its own.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("initialization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("initialization failed: %s", e.Reason)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RevocationWriter is the slice of the revocation store the engine writes to
type RevocationWriter interface {
	Save(ctx context.Context, fact *store.RevocationFact) (inserted bool, err error)
}

// CheckpointStore persists the last-fully-scanned block
type CheckpointStore interface {
	Get(ctx context.Context, key store.CheckpointKey) (store.Checkpoint, bool, error)
	Save(ctx context.Context, key store.CheckpointKey, lastScannedBlock uint64) error
	Reset(ctx context.Context, key store.CheckpointKey, lastScannedBlock uint64) error
}

// Config holds the engine's sync parameters
type Config struct {
	Network         string
	ContractAddress string
	LockID          uint64
	StartBlock      uint64 // first block worth scanning, inclusive

	ScanInterval time.Duration
	BatchSize    uint64        // outer per-query block range
	MaxRange     uint64        // provider hard cap, 0 = unknown
	ChunkPause   time.Duration // pause between chunk queries
	DedupTTL     time.Duration
	DegradedLag  uint64 // lag above which health degrades
}

func (c *Config) applyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = types.DEFAULT_SCAN_INTERVAL_MIN * time.Minute
	}
	if c.BatchSize == 0 {
		c.BatchSize = types.DEFAULT_BATCH_SIZE
	}
	if c.ChunkPause <= 0 {
		c.ChunkPause = 200 * time.Millisecond
	}
	if c.DegradedLag == 0 {
		c.DegradedLag = types.DEGRADED_LAG_BLOCKS
	}
}

type applySource int

const (
	sourcePush applySource = iota
	sourceScan
)

// Engine owns the subscription and scan lifecycles for one watched lock
type Engine struct {
	reader      chain.Reader
	revocations RevocationWriter
	checkpoints CheckpointStore
	window      *dedup.Window

	cfg    Config
	key    store.CheckpointKey
	logger types.Logger
	clock  func() time.Time

	// onApplied is invoked once per newly inserted fact (fan-out hook)
	onApplied func(store.RevocationFact)

	mu          sync.Mutex
	state       State
	lockInfo    *chain.LockInfo
	lastScanned uint64
	stats       stats

	subLive    atomic.Bool
	scanActive atomic.Bool
	rangeCap   atomic.Uint64 // learned or configured provider cap
	scanGate   chan struct{} // size 1, held while a scan runs

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type stats struct {
	pushApplied   uint64
	scanApplied   uint64
	duplicates    uint64
	applyFailures uint64
	revokedCount  uint64 // informational, drifts; resynced on full resync
	lastScanAt    time.Time
	lastPushAt    time.Time
}

// Option configures the Engine
type Option func(*Engine)

// WithLogger sets a custom logger
func WithLogger(logger types.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source (tests)
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithOnApplied registers a hook invoked for every newly recorded fact
func WithOnApplied(fn func(store.RevocationFact)) Option {
	return func(e *Engine) {
		e.onApplied = fn
	}
}

// New creates an engine. Start must be called before it does anything.
func New(reader chain.Reader, revocations RevocationWriter, checkpoints CheckpointStore, cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		reader:      reader,
		revocations: revocations,
		checkpoints: checkpoints,
		window:      dedup.NewWindow(cfg.DedupTTL),
		cfg:         cfg,
		key: store.CheckpointKey{
			Network:         cfg.Network,
			ContractAddress: cfg.ContractAddress,
			LockID:          cfg.LockID,
		},
		logger:   types.StdLogger{},
		clock:    time.Now,
		scanGate: make(chan struct{}, 1),
	}
	e.rangeCap.Store(cfg.MaxRange)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start brings the engine to RUNNING: fetch lock info, load the checkpoint,
// register the subscription, then run the initial backfill scan. The
// subscription goes first so no event can fall between "backfill done" and
// "subscription live"; overlap is reconciled by the dedup window and the
// store's idempotent insert.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.state = StateInitializing
	e.mu.Unlock()

	if err := e.initialize(ctx); err != nil {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go e.runSubscription(runCtx)

	if err := e.scanOnce(runCtx); err != nil {
		// transient: the periodic loop retries from the same checkpoint
		e.logger.Printf("[engine] initial scan failed: %v (will retry on next tick)", err)
	}

	e.wg.Add(1)
	go e.runScanLoop(runCtx)

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.Printf("[engine] running: lock %d on %s (%s), checkpoint at block %d",
		e.cfg.LockID, e.cfg.ContractAddress, e.cfg.Network, e.lastScannedBlock())

	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	if e.cfg.ContractAddress == "" {
		return &InitializationError{Reason: "contract address not configured"}
	}
	if e.cfg.StartBlock == 0 {
		return &InitializationError{Reason: "start block not configured"}
	}

	info, err := e.reader.LockInfo(ctx)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return &InitializationError{
				Reason: fmt.Sprintf("lock %d not registered on contract", e.cfg.LockID),
				Err:    err,
			}
		}
		return &InitializationError{Reason: "failed to fetch lock info", Err: err}
	}

	cp, ok, err := e.checkpoints.Get(ctx, e.key)
	if err != nil {
		return &InitializationError{Reason: "failed to load checkpoint", Err: err}
	}

	last := e.cfg.StartBlock - 1
	if ok {
		last = cp.LastScannedBlock
	} else if err := e.checkpoints.Save(ctx, e.key, last); err != nil {
		return &InitializationError{Reason: "failed to create checkpoint", Err: err}
	}

	e.mu.Lock()
	e.lockInfo = info
	e.stats.revokedCount = info.RevokedCount
	e.lastScanned = last
	e.mu.Unlock()

	return nil
}

// Stop cancels the subscription and the scan timer and waits for both loops
// to exit. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.state = StateStopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.window.Close()
	e.reader.Close()

	e.logger.Printf("[engine] stopped")
}

// runSubscription keeps the push feed alive, resubscribing with backoff
// after drops. A dead subscription never stops the engine: the periodic
// scan is the correctness backstop.
func (e *Engine) runSubscription(ctx context.Context) {
	defer e.wg.Done()

	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		ch, sub, err := e.reader.Subscribe(ctx)
		if errors.Is(err, chain.ErrPushUnsupported) {
			e.logger.Printf("[engine] push subscriptions unavailable on this transport; " +
				"running scan-only (push latency guarantees do not apply)")
			return
		}
		if err != nil {
			e.logger.Printf("[engine] subscribe failed: %v, retrying in %v", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > time.Minute {
				backoff = time.Minute
			}
			continue
		}

		e.subLive.Store(true)
		backoff = 1 * time.Second
		e.consume(ctx, ch, sub)
		e.subLive.Store(false)
	}
}

// consume drains one subscription until it dies or the engine stops
func (e *Engine) consume(ctx context.Context, ch <-chan chain.RevocationEvent, sub chain.Subscription) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				e.logger.Printf("[engine] subscription dropped: %v (scan path continues)", err)
			}
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			e.handlePush(ctx, ev)
		}
	}
}

// handlePush applies one live event. Safe for duplicate delivery: the
// window's atomic test-and-insert wins the race, the store's idempotent
// insert is the backstop.
func (e *Engine) handlePush(ctx context.Context, ev chain.RevocationEvent) {
	key := ev.SignatureHash

	if e.window.Seen(key) {
		e.mu.Lock()
		e.stats.duplicates++
		e.mu.Unlock()
		return
	}

	if err := e.apply(ctx, ev, sourcePush); err != nil {
		// drop the marker so the next scan re-discovers the event
		e.window.Forget(key)
		e.mu.Lock()
		e.stats.applyFailures++
		e.mu.Unlock()
		e.logger.Printf("[engine] failed to apply push event %s (lock %d, block %d): %v; "+
			"next scan will recover it", key, ev.LockID, ev.BlockNumber, err)
		return
	}

	e.mu.Lock()
	e.stats.lastPushAt = e.clock()
	e.mu.Unlock()
}

// apply writes one fact. revoked_at is observation time, not the block
// timestamp; downstream consumers depend on this.
func (e *Engine) apply(ctx context.Context, ev chain.RevocationEvent, source applySource) error {
	observed := e.clock()
	fact := &store.RevocationFact{
		ID:          ev.SignatureHash,
		LockID:      ev.LockID,
		RevokedBy:   ev.RevokedBy,
		BlockNumber: ev.BlockNumber,
		TxRef:       ev.TxHash,
		RevokedAt:   observed,
		ObservedAt:  observed,
	}

	inserted, err := e.revocations.Save(ctx, fact)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if inserted {
		switch source {
		case sourcePush:
			e.stats.pushApplied++
		case sourceScan:
			e.stats.scanApplied++
		}
		e.stats.revokedCount++
	} else {
		e.stats.duplicates++
	}
	onApplied := e.onApplied
	e.mu.Unlock()

	if inserted && onApplied != nil {
		onApplied(*fact)
	}

	return nil
}

// LockInfo returns the cached lock snapshot with the locally tracked
// revoked count
func (e *Engine) LockInfo() *chain.LockInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lockInfo == nil {
		return nil
	}
	info := *e.lockInfo
	info.RevokedCount = e.stats.revokedCount
	return &info
}

func (e *Engine) lastScannedBlock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastScanned
}

func (e *Engine) setLastScanned(block uint64) {
	e.mu.Lock()
	e.lastScanned = block
	e.mu.Unlock()
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
