// Package processor defines the Processor interface for echo cancellation,
// noise suppression and gain control backends.
//
// A Processor is an opaque frame-in/frame-out capability. The render thread
// feeds it the far-end reference via PushReference; the capture thread asks it
// to clean each near-end frame via Process. Every frame is exactly
// [audio.FrameDuration] of mono int16 PCM at Config.SampleRate.
//
// Process may fail transiently. Callers are expected to fall back to the
// unprocessed frame, never to surface the failure to their consumers.
//
// Implementations must allow PushReference and Process to be called from two
// different goroutines concurrently. The remaining methods may be called from
// either goroutine.
package processor

import (
	"errors"
	"fmt"

	"github.com/MrWong99/duplex/pkg/audio"
)

// Strength selects the echo-cancellation effort.
type Strength int

const (
	// StrengthLight is the lightweight mode used until repeated failures
	// suggest it cannot keep up with the echo path.
	StrengthLight Strength = iota

	// StrengthFull is the full-effort echo canceller.
	StrengthFull
)

// String returns the configuration name of the strength.
func (s Strength) String() string {
	switch s {
	case StrengthLight:
		return "light"
	case StrengthFull:
		return "full"
	default:
		return fmt.Sprintf("Strength(%d)", int(s))
	}
}

// ParseStrength parses "light" or "full".
func ParseStrength(s string) (Strength, error) {
	switch s {
	case "light":
		return StrengthLight, nil
	case "full":
		return StrengthFull, nil
	default:
		return 0, fmt.Errorf("processor: unknown echo strength %q", s)
	}
}

// GainMode selects the automatic gain control behaviour.
type GainMode string

const (
	GainOff             GainMode = "off"
	GainAdaptiveAnalog  GainMode = "adaptive_analog"
	GainAdaptiveDigital GainMode = "adaptive_digital"
	GainFixedDigital    GainMode = "fixed_digital"
)

// IsValid reports whether m is a known gain mode.
func (m GainMode) IsValid() bool {
	switch m {
	case GainOff, GainAdaptiveAnalog, GainAdaptiveDigital, GainFixedDigital:
		return true
	}
	return false
}

// GainConfig configures automatic gain control.
type GainConfig struct {
	Mode GainMode

	// TargetLevelDBFS is the target peak level below full scale, 0–31.
	TargetLevelDBFS int

	// CompressionGainDB is the maximum digital gain, 0–90.
	CompressionGainDB int

	// Limiter enables the output limiter.
	Limiter bool
}

// Config holds the parameters for a Processor instance.
type Config struct {
	// SampleRate is 8000 or 16000.
	SampleRate int

	// EchoStrength is the initial echo-cancellation strength.
	EchoStrength Strength

	// NoiseSuppression enables the noise suppressor.
	NoiseSuppression bool

	// Gain configures automatic gain control.
	Gain GainConfig
}

// FrameSamples returns the number of samples per frame for cfg.
func (cfg Config) FrameSamples() int {
	return audio.FrameSize(cfg.SampleRate)
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("sample rate %d: must be 8000 or 16000", cfg.SampleRate))
	}
	if cfg.EchoStrength != StrengthLight && cfg.EchoStrength != StrengthFull {
		errs = append(errs, fmt.Errorf("echo strength %s: unknown", cfg.EchoStrength))
	}
	if !cfg.Gain.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("gain mode %q: unknown", cfg.Gain.Mode))
	}
	if cfg.Gain.TargetLevelDBFS < 0 || cfg.Gain.TargetLevelDBFS > 31 {
		errs = append(errs, fmt.Errorf("gain target level %d dBFS: must be in [0, 31]", cfg.Gain.TargetLevelDBFS))
	}
	if cfg.Gain.CompressionGainDB < 0 || cfg.Gain.CompressionGainDB > 90 {
		errs = append(errs, fmt.Errorf("gain compression %d dB: must be in [0, 90]", cfg.Gain.CompressionGainDB))
	}
	return errors.Join(errs...)
}

// Processor is the echo/noise/gain capability consumed by the duplex engine.
type Processor interface {
	// PushReference supplies the far-end frame that is about to be rendered.
	PushReference(frame audio.Frame) error

	// Process cleans one near-end frame and returns the result. The returned
	// frame must have the same length as the input and must not alias it.
	Process(frame audio.Frame) (audio.Frame, error)

	// SetEstimatedDelay informs the canceller of the render-to-capture delay.
	SetEstimatedDelay(ms int) error

	// SetStrength switches the echo-cancellation effort.
	SetStrength(s Strength) error

	// Close releases the processor. Calling Close more than once is safe.
	Close() error
}

// Factory creates a Processor for a validated Config.
type Factory func(cfg Config) (Processor, error)
