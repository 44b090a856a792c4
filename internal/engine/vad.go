package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/vad"
)

const (
	longTermAlpha    = 0.05
	noiseFloorDecay  = 0.995
	noiseFloorAttack = 0.05
	noiseFloorRatio  = 0.5
	floorMultiplier  = 3.0
	longTermFraction = 0.55
	thresholdKeep    = 0.9
)

// VoiceEvent is emitted on every Silent/Speaking transition.
type VoiceEvent struct {
	Active       bool
	Timestamp    time.Time
	DetectorMode VADMode
	FrameMs      int
	HangoverMs   int64
}

// VadState is a snapshot of the voice activity controller.
type VadState struct {
	Speaking       bool
	LongTermEnergy float64
	NoiseFloor     float64
	Threshold      float64
	LastSpeech     time.Time
}

// VoiceActivityController is a two-state (Silent, Speaking) speech detector
// driven by processed capture frames.
//
// Silent → Speaking happens inside Observe on the first qualifying window.
// Speaking → Silent only happens inside CheckHangover, once the last
// qualifying window is older than the hangover. The transition callback is
// always invoked after the controller's lock has been released.
type VoiceActivityController struct {
	mu       sync.Mutex
	cfg      VADConfig
	detector vad.SessionHandle
	onChange func(VoiceEvent)

	window []int16
	filled int
	primed bool
	state  VadState
}

// NewVoiceActivityController returns a controller for frames at sampleRate.
// detector is required in [VADDelegated] mode and ignored otherwise.
// onChange may be nil.
func NewVoiceActivityController(cfg VADConfig, sampleRate int, detector vad.SessionHandle, onChange func(VoiceEvent)) *VoiceActivityController {
	if cfg.Mode != VADDelegated {
		detector = nil
	}
	return &VoiceActivityController{
		cfg:      cfg,
		detector: detector,
		onChange: onChange,
		window:   make([]int16, sampleRate*cfg.FrameMs/1000),
	}
}

// Observe accumulates one processed frame and classifies the window once it
// is full. It reports whether this call moved the controller to Speaking.
func (c *VoiceActivityController) Observe(f audio.Frame, now time.Time) bool {
	c.mu.Lock()
	var (
		ev      VoiceEvent
		started bool
	)
	for len(f) > 0 {
		n := copy(c.window[c.filled:], f)
		f = f[n:]
		c.filled += n
		if c.filled < len(c.window) {
			break
		}
		c.filled = 0
		if !c.classify() {
			continue
		}
		c.state.LastSpeech = now
		if !c.state.Speaking {
			c.state.Speaking = true
			ev = c.event(true, now)
			started = true
		}
	}
	c.mu.Unlock()

	if started && c.onChange != nil {
		c.onChange(ev)
	}
	return started
}

// classify decides whether the full window holds speech. Must be called with
// c.mu held.
func (c *VoiceActivityController) classify() bool {
	w := audio.Frame(c.window)
	if c.detector != nil {
		res, err := c.detector.ProcessFrame(c.window)
		if err != nil {
			slog.Debug("engine: vad detector failed", "err", err)
			return false
		}
		return res.Speech && w.RMS() >= c.cfg.MinRMS
	}

	rms := w.RMS()
	zc := w.ZeroCrossings()
	s := &c.state
	if !c.primed {
		c.primed = true
		s.LongTermEnergy = rms
		s.NoiseFloor = rms
		s.Threshold = max(floorMultiplier*rms, longTermFraction*rms)
		return false
	}

	speech := rms > s.Threshold && rms >= c.cfg.MinRMS && zc >= c.cfg.MinZeroCrossings

	s.LongTermEnergy = (1-longTermAlpha)*s.LongTermEnergy + longTermAlpha*rms
	// Fast attack toward louder input, slow decay only well below the
	// long-term energy.
	switch {
	case rms > s.NoiseFloor:
		s.NoiseFloor += noiseFloorAttack * (rms - s.NoiseFloor)
	case rms < noiseFloorRatio*s.LongTermEnergy:
		s.NoiseFloor = noiseFloorDecay*s.NoiseFloor + (1-noiseFloorDecay)*rms
	}
	target := max(floorMultiplier*s.NoiseFloor, longTermFraction*s.LongTermEnergy)
	s.Threshold = thresholdKeep*s.Threshold + (1-thresholdKeep)*target
	return speech
}

// CheckHangover moves the controller back to Silent when the last speech is
// at least one hangover old. It reports whether a transition happened.
func (c *VoiceActivityController) CheckHangover(now time.Time) bool {
	c.mu.Lock()
	if !c.state.Speaking || now.Sub(c.state.LastSpeech) < c.cfg.Hangover {
		c.mu.Unlock()
		return false
	}
	c.state.Speaking = false
	ev := c.event(false, now)
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(ev)
	}
	return true
}

func (c *VoiceActivityController) event(active bool, now time.Time) VoiceEvent {
	return VoiceEvent{
		Active:       active,
		Timestamp:    now.UTC(),
		DetectorMode: c.cfg.Mode,
		FrameMs:      c.cfg.FrameMs,
		HangoverMs:   c.cfg.Hangover.Milliseconds(),
	}
}

// Speaking reports the current state.
func (c *VoiceActivityController) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Speaking
}

// SetHangover changes the hangover for future checks.
func (c *VoiceActivityController) SetHangover(d time.Duration) {
	c.mu.Lock()
	c.cfg.Hangover = d
	c.mu.Unlock()
}

// Snapshot returns a copy of the detector state.
func (c *VoiceActivityController) Snapshot() VadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the delegated detector, if any.
func (c *VoiceActivityController) Close() error {
	if c.detector == nil {
		return nil
	}
	return c.detector.Close()
}
