package engine

import (
	"sync"
	"time"

	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// SkipReason labels the outcome of a [Decision].
type SkipReason string

const (
	// ReasonOK marks a decision that attempts cancellation.
	ReasonOK SkipReason = "ok"

	// ReasonNoRecentRender: no render frame was pushed within the window.
	ReasonNoRecentRender SkipReason = "no_recent_render"

	// ReasonInsufficientLead: too few render frames since the last reset.
	ReasonInsufficientLead SkipReason = "insufficient_lead"

	// ReasonRenderAhead: the reference runs far ahead of capture.
	ReasonRenderAhead SkipReason = "render_ahead"
)

// Decision is the per-capture-frame verdict of the [SynchronizationGate].
type Decision struct {
	// Attempt reports whether the processor should be asked to cancel echo.
	Attempt bool

	// Reason is ReasonOK when Attempt is true.
	Reason SkipReason

	// UpdateDelay is true on the frames where a fresh delay estimate should
	// be forwarded to the processor.
	UpdateDelay bool

	// DelayMs is the estimate to forward when UpdateDelay is true.
	DelayMs int
}

// SyncState is a snapshot of the gate's bookkeeping.
type SyncState struct {
	// RenderFrames and CaptureFrames are lifetime counters. They never
	// decrease during a session.
	RenderFrames  uint64
	CaptureFrames uint64

	// RenderSinceReset and CaptureSinceReset count frames since the last
	// synchronisation reset.
	RenderSinceReset  uint64
	CaptureSinceReset uint64

	LastRenderPush      time.Time
	DelayMs             int
	ConsecutiveFailures int
	Strength            processor.Strength
	Escalations         int
}

// SynchronizationGate decides, per capture frame, whether enough reference
// history exists to attempt echo cancellation. It also tracks the delay
// estimate and escalates echo strength after repeated processor failures.
//
// The render thread calls RecordRender; the capture thread calls Decide and
// RecordResult. All state sits behind one mutex, so a RecordRender is visible
// to the very next Decide.
type SynchronizationGate struct {
	mu  sync.Mutex
	cfg GateConfig

	render      uint64
	capture     uint64
	renderBase  uint64
	captureBase uint64
	lastRender  time.Time
	delayMs     int
	failures    int
	strength    processor.Strength
	escalations int
}

// NewSynchronizationGate returns a gate starting at the given strength.
func NewSynchronizationGate(cfg GateConfig, strength processor.Strength) *SynchronizationGate {
	return &SynchronizationGate{cfg: cfg, strength: strength}
}

// RecordRender notes that one render frame was pushed at now.
func (g *SynchronizationGate) RecordRender(now time.Time) {
	g.mu.Lock()
	g.render++
	g.lastRender = now
	g.mu.Unlock()
}

// Decide counts one capture frame at now and returns whether cancellation
// should be attempted for it.
func (g *SynchronizationGate) Decide(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.capture++
	renders := g.render - g.renderBase
	captures := g.capture - g.captureBase

	var d Decision
	if captures%uint64(g.cfg.DelayUpdateEvery) == 0 && !g.lastRender.IsZero() {
		g.delayMs = int((now.Sub(g.lastRender) + g.cfg.PlaybackDelayHint) / time.Millisecond)
		d.UpdateDelay = true
		d.DelayMs = g.delayMs
	}

	switch {
	case g.lastRender.IsZero() || now.Sub(g.lastRender) > g.cfg.RecentRenderWindow:
		d.Reason = ReasonNoRecentRender
	case renders < uint64(g.cfg.MinRenderLead):
		d.Reason = ReasonInsufficientLead
	case float64(renders) > g.cfg.MaxRenderRatio*float64(captures):
		d.Reason = ReasonRenderAhead
	default:
		d.Attempt = true
		d.Reason = ReasonOK
	}
	return d
}

// RecordResult feeds back the outcome of a processor call. It returns true
// exactly when this failure escalated the strength from light to full. The
// failure counter restarts from zero whenever the threshold is reached.
func (g *SynchronizationGate) RecordResult(err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		g.failures = 0
		return false
	}
	g.failures++
	if g.failures < g.cfg.EscalateAfter {
		return false
	}
	g.failures = 0
	if g.strength == processor.StrengthFull {
		return false
	}
	g.strength = processor.StrengthFull
	g.escalations++
	return true
}

// Reset starts a new synchronisation epoch: frame counts since reset and the
// failure counter restart from zero. Lifetime counters are untouched. Call it
// whenever capture is administratively enabled or disabled.
func (g *SynchronizationGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.renderBase = g.render
	g.captureBase = g.capture
	g.failures = 0
}

// SetDelayHint replaces the external playback delay added to estimates.
func (g *SynchronizationGate) SetDelayHint(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.PlaybackDelayHint = d
}

// Strength returns the current echo strength.
func (g *SynchronizationGate) Strength() processor.Strength {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strength
}

// Snapshot returns a copy of the gate state.
func (g *SynchronizationGate) Snapshot() SyncState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return SyncState{
		RenderFrames:        g.render,
		CaptureFrames:       g.capture,
		RenderSinceReset:    g.render - g.renderBase,
		CaptureSinceReset:   g.capture - g.captureBase,
		LastRenderPush:      g.lastRender,
		DelayMs:             g.delayMs,
		ConsecutiveFailures: g.failures,
		Strength:            g.strength,
		Escalations:         g.escalations,
	}
}
