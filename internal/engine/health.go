package engine

import (
	"context"
	"time"
)

// Health is a point-in-time liveness and lag snapshot
type Health struct {
	Status           string    `json:"status"` // ok, degraded, unhealthy, initializing, stopped
	State            string    `json:"state"`
	CurrentHeight    uint64    `json:"current_height"`
	LastScannedBlock uint64    `json:"last_scanned_block"`
	Lag              uint64    `json:"lag"`
	SubscriptionLive bool      `json:"subscription_live"`
	ScanActive       bool      `json:"scan_active"`
	PushApplied      uint64    `json:"push_applied"`
	ScanApplied      uint64    `json:"scan_applied"`
	Duplicates       uint64    `json:"duplicates"`
	ApplyFailures    uint64    `json:"apply_failures"`
	LastScanAt       time.Time `json:"last_scan_at"`
	LastPushAt       time.Time `json:"last_push_at"`
	Error            string    `json:"error,omitempty"`
}

// Health reports the engine's current condition. Pure read, never returns
// an error: a failed height read yields an explicit unhealthy status.
func (e *Engine) Health(ctx context.Context) Health {
	e.mu.Lock()
	h := Health{
		State:            e.state.String(),
		LastScannedBlock: e.lastScanned,
		PushApplied:      e.stats.pushApplied,
		ScanApplied:      e.stats.scanApplied,
		Duplicates:       e.stats.duplicates,
		ApplyFailures:    e.stats.applyFailures,
		LastScanAt:       e.stats.lastScanAt,
		LastPushAt:       e.stats.lastPushAt,
	}
	state := e.state
	e.mu.Unlock()

	h.SubscriptionLive = e.subLive.Load()
	h.ScanActive = e.scanActive.Load()

	if state != StateRunning {
		// "initializing" while the initial backfill runs, "stopped" otherwise
		h.Status = state.String()
		return h
	}

	heightCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	height, err := e.reader.CurrentHeight(heightCtx)
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}

	h.CurrentHeight = height
	if height > h.LastScannedBlock {
		h.Lag = height - h.LastScannedBlock
	}

	if h.Lag > e.cfg.DegradedLag {
		h.Status = "degraded"
	} else {
		h.Status = "ok"
	}

	return h
}
