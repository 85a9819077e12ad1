package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrazakos/revwatch/internal/chain"
)

// runScanLoop triggers a scan every ScanInterval until the engine stops.
// The initial eager scan already ran during Start.
func (e *Engine) runScanLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.scanOnce(ctx); err != nil {
				e.logger.Printf("[engine] periodic scan failed: %v (checkpoint unchanged, will retry)", err)
			}
		}
	}
}

// ScanNow runs one scan pass immediately (operator surface)
func (e *Engine) ScanNow(ctx context.Context) error {
	return e.scanOnce(ctx)
}

// scanOnce covers [checkpoint+1, currentHeight] and commits the checkpoint
// only after the whole range succeeded. Scans never overlap: a tick landing
// while one runs is skipped.
func (e *Engine) scanOnce(ctx context.Context) error {
	select {
	case e.scanGate <- struct{}{}:
	default:
		e.logger.Printf("[engine] scan already in progress, skipping")
		return nil
	}
	defer func() { <-e.scanGate }()

	return e.scanLocked(ctx)
}

// scanLocked is the scan body; the caller must hold the scan gate
func (e *Engine) scanLocked(ctx context.Context) error {
	e.scanActive.Store(true)
	defer e.scanActive.Store(false)

	from := e.lastScannedBlock() + 1
	to, err := e.reader.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}

	if from > to {
		// nothing new; checkpoint stays
		return nil
	}

	start := e.clock()
	applied, err := e.scanRange(ctx, from, to)
	if err != nil {
		return err
	}

	if err := e.checkpoints.Save(ctx, e.key, to); err != nil {
		return fmt.Errorf("failed to commit checkpoint %d: %w", to, err)
	}
	e.setLastScanned(to)
	e.window.Clear()

	e.mu.Lock()
	e.stats.lastScanAt = e.clock()
	e.mu.Unlock()

	e.logger.Printf("[engine] scan [%d, %d] done: %d applied in %s",
		from, to, applied, time.Since(start).Round(time.Millisecond))

	return nil
}

// scanRange walks [from, to] in chunks no wider than the effective range
// cap, pausing between chunks to stay under provider rate limits. A
// provider range rejection halves the cap and retries the same position, so
// the union of issued queries covers the range exactly once.
func (e *Engine) scanRange(ctx context.Context, from, to uint64) (int, error) {
	applied := 0
	pos := from

	for pos <= to {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		width := e.chunkWidth()
		end := pos + width - 1
		if end > to {
			end = to
		}

		events, err := e.reader.QueryRange(ctx, pos, end)
		if errors.Is(err, chain.ErrRangeTooLarge) {
			if !e.shrinkChunk(end - pos + 1) {
				return applied, fmt.Errorf("provider rejected single-block query [%d, %d]: %w", pos, end, err)
			}
			e.logger.Printf("[engine] provider range cap hit at width %d, retrying [%d, ...] with width %d",
				end-pos+1, pos, e.chunkWidth())
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("query [%d, %d] failed: %w", pos, end, err)
		}

		for _, ev := range events {
			if e.window.Contains(ev.SignatureHash) {
				// push path already applied it this cycle
				continue
			}
			if err := e.apply(ctx, ev, sourceScan); err != nil {
				e.mu.Lock()
				e.stats.applyFailures++
				e.mu.Unlock()
				return applied, fmt.Errorf("failed to apply event %s at block %d: %w",
					ev.SignatureHash, ev.BlockNumber, err)
			}
			applied++
		}

		pos = end + 1
		if pos <= to && !sleepCtx(ctx, e.cfg.ChunkPause) {
			return applied, ctx.Err()
		}
	}

	return applied, nil
}

// chunkWidth is the outer batch size clamped to the known provider cap
func (e *Engine) chunkWidth() uint64 {
	width := e.cfg.BatchSize
	if cap := e.rangeCap.Load(); cap > 0 && cap < width {
		width = cap
	}
	if width < 1 {
		width = 1
	}
	return width
}

// shrinkChunk halves the learned range cap after a provider rejection.
// Returns false once single-block queries are being rejected.
func (e *Engine) shrinkChunk(failedWidth uint64) bool {
	if failedWidth <= 1 {
		return false
	}
	e.rangeCap.Store(failedWidth / 2)
	return true
}

// ForceFullResync resets the checkpoint to the configured start block,
// clears the dedup window, refreshes lock info and re-runs the scan,
// waiting for any scan already in flight to finish first.
// Operator recovery action, not part of normal operation.
func (e *Engine) ForceFullResync(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot resync while %s", state)
	}
	e.mu.Unlock()

	// wait out any in-flight scan before rewinding: its checkpoint commit
	// would overwrite the rewind and the rewound range would never be
	// re-scanned
	select {
	case e.scanGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.scanGate }()

	e.logger.Printf("[engine] full resync requested: rewinding to block %d", e.cfg.StartBlock)

	if err := e.checkpoints.Reset(ctx, e.key, e.cfg.StartBlock-1); err != nil {
		return fmt.Errorf("failed to rewind checkpoint: %w", err)
	}
	e.setLastScanned(e.cfg.StartBlock - 1)
	e.window.Clear()

	info, err := e.reader.LockInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh lock info: %w", err)
	}
	e.mu.Lock()
	e.lockInfo = info
	e.stats.revokedCount = info.RevokedCount
	e.mu.Unlock()

	return e.scanLocked(ctx)
}
