package engine

import (
	"time"

	"github.com/MrWong99/duplex/internal/observe"
	"github.com/MrWong99/duplex/pkg/provider/processor"
	"github.com/MrWong99/duplex/pkg/provider/vad"
)

// Option configures a [Session].
type Option func(*Session)

// WithProcessorFactory sets the factory used to create the frame processor
// on every Start. Defaults to [passthrough.New].
func WithProcessorFactory(f processor.Factory) Option {
	return func(s *Session) { s.factory = f }
}

// WithVADEngine sets the engine used in [VADDelegated] mode.
func WithVADEngine(e vad.Engine) Option {
	return func(s *Session) { s.vadEngine = e }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the time source used for synchronisation and voice
// activity decisions. Loop pacing always uses the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithFrameBuffer sets the capacity of the channel returned by
// [Session.Frames]. Default: 50 frames.
func WithFrameBuffer(n int) Option {
	return func(s *Session) { s.frameBuffer = max(n, 1) }
}
