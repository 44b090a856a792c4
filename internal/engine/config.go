package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// VADMode selects how the voice activity controller classifies frames.
type VADMode string

const (
	// VADEnergy uses the built-in adaptive RMS / zero-crossing detector.
	VADEnergy VADMode = "energy"

	// VADDelegated forwards classification to a [vad.Engine] session.
	VADDelegated VADMode = "delegated"
)

// GateConfig tunes the [SynchronizationGate]. The numbers are empirical;
// they are parameters so deployments can retune them.
type GateConfig struct {
	// RecentRenderWindow is how recent the last render push must be for echo
	// cancellation to be attempted.
	RecentRenderWindow time.Duration

	// MinRenderLead is the number of render frames that must have been pushed
	// since the last reset before cancellation is attempted.
	MinRenderLead int

	// MaxRenderRatio is the render/capture frame ratio above which the
	// reference is considered to be running away from capture.
	MaxRenderRatio float64

	// DelayUpdateEvery is the number of capture frames between delay
	// estimate updates.
	DelayUpdateEvery int

	// EscalateAfter is the number of consecutive processor failures that
	// escalates echo strength from light to full.
	EscalateAfter int

	// PlaybackDelayHint is added to every delay estimate. Use it when the
	// render path is owned by another component with its own buffering.
	PlaybackDelayHint time.Duration
}

// VADConfig tunes the [VoiceActivityController].
type VADConfig struct {
	Mode VADMode

	// FrameMs is the classification window: 10, 20 or 30 ms of processed
	// audio is accumulated before each decision.
	FrameMs int

	// Hangover is the silence required before Speaking falls back to Silent.
	Hangover time.Duration

	// PollInterval is how often the hangover is checked.
	PollInterval time.Duration

	// MinZeroCrossings rejects rumble and DC offsets as speech.
	MinZeroCrossings int

	// MinRMS is an absolute energy floor below which no frame is speech.
	MinRMS float64
}

// Config holds every session parameter. It is validated by [Session.Start].
type Config struct {
	// SampleRate is 8000 or 16000.
	SampleRate int

	// FrameMs is the requested frame duration. Positive multiples of 10 are
	// accepted and processed as 10 ms frames.
	FrameMs int

	// RenderChannels is the channel count of the render device, 1 or 2.
	RenderChannels int

	// QueueCapacity bounds the playback queue, in frames.
	QueueCapacity int

	// DequeueTimeout is how long the render thread waits for a queued frame
	// before rendering silence.
	DequeueTimeout time.Duration

	// JoinTimeout bounds how long Stop waits for each session goroutine.
	JoinTimeout time.Duration

	// EchoStrength is the initial echo-cancellation strength.
	EchoStrength processor.Strength

	// NoiseSuppression enables the processor's noise suppressor.
	NoiseSuppression bool

	// Gain configures the processor's automatic gain control.
	Gain processor.GainConfig

	// BypassCooldown is how long the processor is bypassed once its circuit
	// breaker trips. The breaker trips after 2×EscalateAfter consecutive
	// failures.
	BypassCooldown time.Duration

	Sync GateConfig
	VAD  VADConfig
}

// DefaultConfig returns a 16 kHz mono configuration with the documented
// defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		FrameMs:        10,
		RenderChannels: 1,
		QueueCapacity:  10,
		DequeueTimeout: 2 * time.Millisecond,
		JoinTimeout:    time.Second,
		EchoStrength:   processor.StrengthLight,
		Gain: processor.GainConfig{
			Mode:              processor.GainAdaptiveDigital,
			TargetLevelDBFS:   3,
			CompressionGainDB: 9,
			Limiter:           true,
		},
		BypassCooldown: 5 * time.Second,
		Sync: GateConfig{
			RecentRenderWindow: 100 * time.Millisecond,
			MinRenderLead:      5,
			MaxRenderRatio:     1.5,
			DelayUpdateEvery:   50,
			EscalateAfter:      200,
		},
		VAD: VADConfig{
			Mode:             VADEnergy,
			FrameMs:          10,
			Hangover:         1200 * time.Millisecond,
			PollInterval:     50 * time.Millisecond,
			MinZeroCrossings: 5,
			MinRMS:           30,
		},
	}
}

// FrameSamples returns the number of samples per processing frame.
func (c Config) FrameSamples() int {
	return audio.FrameSize(c.SampleRate)
}

// Validate reports every problem with c, wrapped in [ErrInvalidConfig].
func (c Config) Validate() error {
	_, err := c.normalize()
	return err
}

// normalize validates c and returns the effective configuration.
func (c Config) normalize() (Config, error) {
	var errs []error

	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("sample rate %d: must be 8000 or 16000", c.SampleRate))
	}
	switch {
	case c.FrameMs == 10:
	case c.FrameMs > 10 && c.FrameMs%10 == 0:
		slog.Warn("engine: frame duration forced to 10 ms", "requestedMs", c.FrameMs)
		c.FrameMs = 10
	default:
		errs = append(errs, fmt.Errorf("frame duration %d ms: must be a positive multiple of 10", c.FrameMs))
	}
	if c.RenderChannels != 1 && c.RenderChannels != 2 {
		errs = append(errs, fmt.Errorf("render channels %d: must be 1 or 2", c.RenderChannels))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue capacity %d: must be at least 1", c.QueueCapacity))
	}
	if c.DequeueTimeout < 0 || c.DequeueTimeout >= audio.FrameDuration {
		errs = append(errs, fmt.Errorf("dequeue timeout %s: must be in [0, %s)", c.DequeueTimeout, audio.FrameDuration))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("join timeout %s: must be positive", c.JoinTimeout))
	}
	if c.BypassCooldown <= 0 {
		errs = append(errs, fmt.Errorf("bypass cooldown %s: must be positive", c.BypassCooldown))
	}

	s := c.Sync
	if s.RecentRenderWindow <= 0 {
		errs = append(errs, fmt.Errorf("sync recent render window %s: must be positive", s.RecentRenderWindow))
	}
	if s.MinRenderLead < 0 {
		errs = append(errs, fmt.Errorf("sync min render lead %d: must not be negative", s.MinRenderLead))
	}
	if s.MaxRenderRatio <= 1 {
		errs = append(errs, fmt.Errorf("sync max render ratio %g: must be greater than 1", s.MaxRenderRatio))
	}
	if s.DelayUpdateEvery < 1 {
		errs = append(errs, fmt.Errorf("sync delay update interval %d: must be at least 1", s.DelayUpdateEvery))
	}
	if s.EscalateAfter < 1 {
		errs = append(errs, fmt.Errorf("sync escalate after %d: must be at least 1", s.EscalateAfter))
	}
	if s.PlaybackDelayHint < 0 {
		errs = append(errs, fmt.Errorf("sync playback delay hint %s: must not be negative", s.PlaybackDelayHint))
	}

	v := c.VAD
	if v.Mode != VADEnergy && v.Mode != VADDelegated {
		errs = append(errs, fmt.Errorf("vad mode %q: must be %q or %q", v.Mode, VADEnergy, VADDelegated))
	}
	if v.FrameMs != 10 && v.FrameMs != 20 && v.FrameMs != 30 {
		errs = append(errs, fmt.Errorf("vad frame %d ms: must be 10, 20 or 30", v.FrameMs))
	}
	if v.Hangover <= 0 {
		errs = append(errs, fmt.Errorf("vad hangover %s: must be positive", v.Hangover))
	}
	if v.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("vad poll interval %s: must be positive", v.PollInterval))
	}
	if v.MinZeroCrossings < 0 || v.MinRMS < 0 {
		errs = append(errs, errors.New("vad thresholds must not be negative"))
	}

	if err := c.processorConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return c, nil
}

func (c Config) processorConfig() processor.Config {
	return processor.Config{
		SampleRate:       c.SampleRate,
		EchoStrength:     c.EchoStrength,
		NoiseSuppression: c.NoiseSuppression,
		Gain:             c.Gain,
	}
}
