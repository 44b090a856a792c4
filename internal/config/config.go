// Package config provides the configuration schema, loader and hot-reload
// watcher for the duplex audio engine.
package config

import (
	"time"

	"github.com/MrWong99/duplex/internal/engine"
	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the audio device implementation.
type Backend string

const (
	// BackendMiniaudio captures and renders through miniaudio.
	BackendMiniaudio Backend = "miniaudio"

	// BackendOto captures through miniaudio and renders through oto.
	BackendOto Backend = "oto"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	return b == BackendMiniaudio || b == BackendOto
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Zero values mean "use the engine default".
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Processing ProcessingConfig `yaml:"processing"`
	Sync       SyncConfig       `yaml:"sync"`
	VAD        VADConfig        `yaml:"vad"`
	Asset      AssetConfig      `yaml:"asset"`
	Record     RecordConfig     `yaml:"record"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the address serving /metrics, /healthz and /readyz.
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects devices and the frame format.
type AudioConfig struct {
	Backend        Backend `yaml:"backend"`
	SampleRate     int     `yaml:"sample_rate"`
	FrameMs        int     `yaml:"frame_ms"`
	RenderChannels int     `yaml:"render_channels"`
	QueueCapacity  int     `yaml:"queue_capacity"`

	// OutputBuffer is the device-side render buffer.
	OutputBuffer time.Duration `yaml:"output_buffer"`

	// DequeueTimeout is how long a render tick waits for queued audio.
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
}

// ProcessingConfig configures the frame processor.
type ProcessingConfig struct {
	// EchoStrength is "light" or "full".
	EchoStrength     string     `yaml:"echo_strength"`
	NoiseSuppression bool       `yaml:"noise_suppression"`
	Gain             GainConfig `yaml:"gain"`

	// BypassCooldown is how long the processor stays bypassed after its
	// circuit breaker trips.
	BypassCooldown time.Duration `yaml:"bypass_cooldown"`
}

// GainConfig configures automatic gain control.
type GainConfig struct {
	Mode              processor.GainMode `yaml:"mode"`
	TargetLevelDBFS   *int               `yaml:"target_level_dbfs"`
	CompressionGainDB *int               `yaml:"compression_gain_db"`
	Limiter           *bool              `yaml:"limiter"`
}

// SyncConfig tunes the synchronisation gate.
type SyncConfig struct {
	RecentRenderWindow time.Duration `yaml:"recent_render_window"`
	MinRenderLead      *int          `yaml:"min_render_lead"`
	MaxRenderRatio     float64       `yaml:"max_render_ratio"`
	DelayUpdateEvery   int           `yaml:"delay_update_every"`
	EscalateAfter      int           `yaml:"escalate_after"`

	// PlaybackDelayHint is added to every delay estimate. Hot-reloadable.
	PlaybackDelayHint time.Duration `yaml:"playback_delay_hint"`
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	// Mode is "energy" or "delegated".
	Mode    engine.VADMode `yaml:"mode"`
	FrameMs int            `yaml:"frame_ms"`

	// Hangover is hot-reloadable.
	Hangover         time.Duration `yaml:"hangover"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MinZeroCrossings *int          `yaml:"min_zero_crossings"`
	MinRMS           *float64      `yaml:"min_rms"`
}

// AssetConfig names a prompt played in a loop through the render path.
type AssetConfig struct {
	Path string `yaml:"path"`
}

// RecordConfig names a WAV file receiving every processed capture frame.
type RecordConfig struct {
	Path string `yaml:"path"`
}

// ShutdownConfig bounds how long shutdown may take.
type ShutdownConfig struct {
	// JoinTimeout bounds the wait for each session goroutine.
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// Grace bounds the whole shutdown sequence. Default: 15s.
	Grace time.Duration `yaml:"grace"`
}

// DefaultGrace is used when shutdown.grace is unset.
const DefaultGrace = 15 * time.Second

// GracePeriod returns the shutdown grace period.
func (c *Config) GracePeriod() time.Duration {
	if c.Shutdown.Grace > 0 {
		return c.Shutdown.Grace
	}
	return DefaultGrace
}

// BackendName returns the configured backend, defaulting to miniaudio.
func (c *Config) BackendName() Backend {
	if c.Audio.Backend == "" {
		return BackendMiniaudio
	}
	return c.Audio.Backend
}

// ToEngineConfig overlays the file values on [engine.DefaultConfig].
// An invalid echo strength is left at the default; [Validate] reports it.
func (c *Config) ToEngineConfig() engine.Config {
	ec := engine.DefaultConfig()

	setInt(&ec.SampleRate, c.Audio.SampleRate)
	setInt(&ec.FrameMs, c.Audio.FrameMs)
	setInt(&ec.RenderChannels, c.Audio.RenderChannels)
	setInt(&ec.QueueCapacity, c.Audio.QueueCapacity)
	setDuration(&ec.DequeueTimeout, c.Audio.DequeueTimeout)
	setDuration(&ec.JoinTimeout, c.Shutdown.JoinTimeout)

	if s, err := processor.ParseStrength(c.Processing.EchoStrength); err == nil {
		ec.EchoStrength = s
	}
	ec.NoiseSuppression = c.Processing.NoiseSuppression
	setDuration(&ec.BypassCooldown, c.Processing.BypassCooldown)
	g := c.Processing.Gain
	if g.Mode != "" {
		ec.Gain.Mode = g.Mode
	}
	if g.TargetLevelDBFS != nil {
		ec.Gain.TargetLevelDBFS = *g.TargetLevelDBFS
	}
	if g.CompressionGainDB != nil {
		ec.Gain.CompressionGainDB = *g.CompressionGainDB
	}
	if g.Limiter != nil {
		ec.Gain.Limiter = *g.Limiter
	}

	setDuration(&ec.Sync.RecentRenderWindow, c.Sync.RecentRenderWindow)
	if c.Sync.MinRenderLead != nil {
		ec.Sync.MinRenderLead = *c.Sync.MinRenderLead
	}
	if c.Sync.MaxRenderRatio != 0 {
		ec.Sync.MaxRenderRatio = c.Sync.MaxRenderRatio
	}
	setInt(&ec.Sync.DelayUpdateEvery, c.Sync.DelayUpdateEvery)
	setInt(&ec.Sync.EscalateAfter, c.Sync.EscalateAfter)
	ec.Sync.PlaybackDelayHint = c.Sync.PlaybackDelayHint

	if c.VAD.Mode != "" {
		ec.VAD.Mode = c.VAD.Mode
	}
	setInt(&ec.VAD.FrameMs, c.VAD.FrameMs)
	setDuration(&ec.VAD.Hangover, c.VAD.Hangover)
	setDuration(&ec.VAD.PollInterval, c.VAD.PollInterval)
	if c.VAD.MinZeroCrossings != nil {
		ec.VAD.MinZeroCrossings = *c.VAD.MinZeroCrossings
	}
	if c.VAD.MinRMS != nil {
		ec.VAD.MinRMS = *c.VAD.MinRMS
	}
	return ec
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
