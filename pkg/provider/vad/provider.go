// Package vad defines the Engine interface for delegated voice activity
// classification backends.
//
// A VAD engine wraps a frame-level speech classifier (e.g., WebRTC VAD or a
// custom model) and surfaces it as a stateful, per-stream session. The duplex
// engine owns hysteresis (hangover) and barge-in; a session only answers the
// question "does this frame contain speech?".
//
// Classification is synchronous: ProcessFrame returns immediately, making it
// suitable for the real-time capture thread.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most VAD
	// models operate on fixed frame sizes (10, 20 or 30 ms).
	// ProcessFrame returns an error if the supplied frame does not match this
	// size.
	FrameSizeMs int
}

// FrameSamples returns the number of mono samples in one frame of cfg.
func (cfg Config) FrameSamples() int {
	return cfg.SampleRate * cfg.FrameSizeMs / 1000
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Reset clears detection state without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies a single mono frame of exactly
	// Config.FrameSamples samples. It must not block.
	ProcessFrame(frame []int16) (Result, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	//
	// Returns an error if the configuration is invalid (e.g., unsupported sample
	// rate or frame size) or if the engine cannot allocate resources.
	NewSession(cfg Config) (SessionHandle, error)

	// Name identifies the backend in logs and voice-activity events.
	Name() string
}
