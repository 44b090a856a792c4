package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/duplex/internal/observe"
	"github.com/MrWong99/duplex/internal/resilience"
	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/processor"
	"github.com/MrWong99/duplex/pkg/provider/processor/passthrough"
	"github.com/MrWong99/duplex/pkg/provider/vad"
)

type lifecycle int

const (
	stateCreated lifecycle = iota
	stateRunning
	stateStopped
	stateReleased
)

func (l lifecycle) String() string {
	switch l {
	case stateCreated:
		return "created"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	case stateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Reference feed owners.
const (
	ownerRender int32 = iota
	ownerAsset
)

func ownerName(o int32) string {
	if o == ownerAsset {
		return "asset"
	}
	return "render"
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Stats is a point-in-time view of a session.
type Stats struct {
	SessionID      string
	State          string
	CaptureEnabled bool
	Sync           SyncState
	VAD            VadState
	QueueLength    int
	ConsumerDrops  uint64
	ReferenceOwner string
	AssetPath      string
	Breaker        string
	BreakerTrips   int
	RenderOverruns uint64
}

// Session runs one full-duplex audio pipeline: a paced render loop that
// drains the playback queue into the render device, a capture loop that
// cleans microphone frames through the processor and hands them to the
// consumer, a hangover poller for voice activity and an optional asset
// feeder.
//
// The lifecycle is Created → Running → Stopped → Released. A stopped session
// can be started again; every run starts with fresh counters, a fresh queue
// and a fresh processor. All methods are safe for concurrent use.
type Session struct {
	id        string
	backend   audio.Backend
	factory   processor.Factory
	vadEngine vad.Engine
	metrics   *observe.Metrics
	now       func() time.Time

	frameBuffer int
	frames      chan audio.Frame
	events      chan VoiceEvent

	captureEnabled atomic.Bool

	mu      sync.Mutex
	cfg     Config
	state   lifecycle
	run     *run
	asset   *loadedAsset
	lastErr error
}

// run holds everything owned by a single Start/Stop cycle.
type run struct {
	cfg     Config
	done    chan struct{}
	stopped chan struct{}
	running atomic.Bool

	stopOnce sync.Once
	failOnce sync.Once

	capture audio.CaptureDevice
	render  audio.RenderDevice
	proc    processor.Processor
	queue   *PlaybackQueue
	gate    *SynchronizationGate
	vad     *VoiceActivityController
	breaker *resilience.CircuitBreaker

	refOwner       atomic.Int32
	assetPaused    atomic.Bool
	consumerDrops  atomic.Uint64
	renderOverruns atomic.Uint64

	depthReg metric.Registration
	workers  []*worker

	// feeder is guarded by Session.mu.
	feeder *worker
}

type worker struct {
	name string
	stop chan struct{}
	done chan struct{}
}

// New returns a session that opens its devices from backend on Start. cfg is
// validated by Start, not here.
func New(cfg Config, backend audio.Backend, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		backend:     backend,
		factory:     passthrough.New,
		now:         time.Now,
		frameBuffer: 50,
		cfg:         cfg,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.frames = make(chan audio.Frame, s.frameBuffer)
	s.events = make(chan VoiceEvent, 16)
	s.captureEnabled.Store(true)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Frames returns the channel on which processed capture frames are
// delivered. The channel is never closed; use [Session.Done] to learn when a
// run ends. Frames are dropped when the channel is full.
func (s *Session) Frames() <-chan audio.Frame { return s.frames }

// VoiceEvents returns the channel carrying voice activity transitions. It is
// never closed. Events are dropped when the channel is full.
func (s *Session) VoiceEvents() <-chan VoiceEvent { return s.events }

// Start validates the configuration, opens the devices and starts the
// session goroutines. On error nothing is left open or running.
func (s *Session) Start(ctx context.Context) error {
	ctx, span := observe.StartSessionSpan(ctx, s.id, "Start")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == stateReleased:
		return ErrReleased
	case s.run != nil:
		return ErrAlreadyRunning
	}

	cfg, err := s.cfg.normalize()
	if err != nil {
		return err
	}
	if cfg.VAD.Mode == VADDelegated && s.vadEngine == nil {
		return fmt.Errorf("%w: vad mode %q requires a vad engine", ErrInvalidConfig, VADDelegated)
	}

	var detector vad.SessionHandle
	if cfg.VAD.Mode == VADDelegated {
		detector, err = s.vadEngine.NewSession(vad.Config{SampleRate: cfg.SampleRate, FrameSizeMs: cfg.VAD.FrameMs})
		if err != nil {
			return fmt.Errorf("%w: create vad session: %w", ErrInvalidConfig, err)
		}
	}

	proc, err := s.factory(cfg.processorConfig())
	if err != nil {
		closeQuietly("vad detector", detector)
		return fmt.Errorf("engine: create processor: %w", err)
	}

	capture, err := s.backend.OpenCapture(audio.Format{SampleRate: cfg.SampleRate, Channels: 1})
	if err != nil {
		closeQuietly("processor", proc)
		closeQuietly("vad detector", detector)
		return fmt.Errorf("%w: open capture: %w", ErrDevice, err)
	}
	render, err := s.backend.OpenRender(audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.RenderChannels})
	if err != nil {
		closeQuietly("capture device", capture)
		closeQuietly("processor", proc)
		closeQuietly("vad detector", detector)
		return fmt.Errorf("%w: open render: %w", ErrDevice, err)
	}

	rs := &run{
		cfg:     cfg,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		capture: capture,
		render:  render,
		proc:    proc,
		queue:   NewPlaybackQueue(cfg.QueueCapacity),
		gate:    NewSynchronizationGate(cfg.Sync, cfg.EchoStrength),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "processor",
			MaxFailures:  2 * cfg.Sync.EscalateAfter,
			ResetTimeout: cfg.BypassCooldown,
			HalfOpenMax:  1,
			Now:          s.now,
		}),
	}
	rs.vad = NewVoiceActivityController(cfg.VAD, cfg.SampleRate, detector, s.onVoice(rs))
	rs.running.Store(true)

	if rs.depthReg, err = s.metrics.ObserveQueueDepth(rs.queue.Len); err != nil {
		slog.Warn("engine: queue depth gauge unavailable", "err", err)
	}
	s.metrics.ActiveSessions.Add(ctx, 1)

	s.run = rs
	s.state = stateRunning
	s.lastErr = nil

	s.spawn(rs, "render", func() { s.renderLoop(rs) })
	s.spawn(rs, "capture", func() { s.captureLoop(rs) })
	s.spawn(rs, "hangover", func() { s.hangoverLoop(rs) })
	if s.asset != nil {
		rs.feeder = s.startFeeder(rs, s.asset)
	}

	observe.SessionLogger(ctx, s.id).Info("engine: session started",
		"sample_rate", cfg.SampleRate,
		"render_channels", cfg.RenderChannels,
		"echo_strength", cfg.EchoStrength,
		"vad_mode", cfg.VAD.Mode,
	)
	return nil
}

func (s *Session) spawn(rs *run, name string, fn func()) {
	w := &worker{name: name, done: make(chan struct{})}
	rs.workers = append(rs.workers, w)
	go func() {
		defer close(w.done)
		fn()
	}()
}

// join waits up to timeout for w. It reports false when w was abandoned.
func join(w *worker, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		slog.Warn("engine: goroutine did not stop in time, abandoning it", "worker", w.name, "timeout", timeout)
		return false
	}
}

// Stop ends the current run. It is a no-op on a session that is not running
// and after Release.
func (s *Session) Stop() error {
	s.mu.Lock()
	rs := s.run
	s.mu.Unlock()
	if rs == nil {
		return nil
	}
	s.stop(rs)
	return nil
}

// stop tears rs down. Concurrent callers block until the first one is done.
func (s *Session) stop(rs *run) {
	rs.stopOnce.Do(func() {
		_, span := observe.StartSessionSpan(context.Background(), s.id, "Stop")
		defer span.End()

		rs.running.Store(false)
		close(rs.done)

		s.mu.Lock()
		feeder := rs.feeder
		rs.feeder = nil
		s.mu.Unlock()
		if feeder != nil {
			close(feeder.stop)
			join(feeder, rs.cfg.JoinTimeout)
		}
		for _, w := range rs.workers {
			join(w, rs.cfg.JoinTimeout)
		}

		closeQuietly("capture device", rs.capture)
		closeQuietly("render device", rs.render)
		closeQuietly("processor", rs.proc)
		closeQuietly("vad detector", rs.vad)
		if rs.depthReg != nil {
			if err := rs.depthReg.Unregister(); err != nil {
				slog.Debug("engine: unregister queue depth gauge", "err", err)
			}
		}
		s.metrics.ActiveSessions.Add(context.Background(), -1)

		s.mu.Lock()
		if s.run == rs {
			s.run = nil
			if s.state != stateReleased {
				s.state = stateStopped
			}
		}
		s.mu.Unlock()

		snap := rs.gate.Snapshot()
		slog.Info("engine: session stopped",
			"session_id", s.id,
			"render_frames", snap.RenderFrames,
			"capture_frames", snap.CaptureFrames,
			"escalations", snap.Escalations,
			"consumer_drops", rs.consumerDrops.Load(),
		)
		close(rs.stopped)
	})
}

// fail records a fatal device error and stops rs in the background.
func (s *Session) fail(rs *run, direction string, err error) {
	if !rs.running.Load() {
		return
	}
	rs.failOnce.Do(func() {
		s.metrics.RecordDeviceError(context.Background(), direction)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		slog.Error("engine: device failure, stopping session", "session_id", s.id, "direction", direction, "err", err)
		go s.stop(rs)
	})
}

// Release stops the session if needed and makes it unusable. It is
// idempotent.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return nil
	}
	s.state = stateReleased
	rs := s.run
	s.asset = nil
	s.mu.Unlock()

	if rs != nil {
		s.stop(rs)
	}
	return nil
}

// Done returns a channel closed when the current run ends, whether by Stop
// or by a device failure. It is already closed when the session is not
// running.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return closedChan
	}
	return s.run.stopped
}

// Err returns the device error that ended the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Running reports whether the session is running.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.running.Load()
}

// SetCaptureEnabled toggles capture processing. Disabled capture keeps
// reading the device but neither processes nor emits frames. Every toggle
// resets synchronisation.
func (s *Session) SetCaptureEnabled(enabled bool) error {
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrReleased
	}
	changed := s.captureEnabled.Swap(enabled) != enabled
	rs := s.run
	s.mu.Unlock()

	if changed && rs != nil {
		rs.gate.Reset()
		slog.Debug("engine: capture toggled, synchronisation reset", "session_id", s.id, "enabled", enabled)
	}
	return nil
}

// SetPlaybackDelayHint sets the external playback delay added to every delay
// estimate. It applies to the current run and to later ones.
func (s *Session) SetPlaybackDelayHint(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: playback delay hint %s must not be negative", ErrInvalidConfig, d)
	}
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrReleased
	}
	s.cfg.Sync.PlaybackDelayHint = d
	rs := s.run
	s.mu.Unlock()

	if rs != nil {
		rs.gate.SetDelayHint(d)
	}
	return nil
}

// SetHangover changes the voice activity hangover for the current run and
// later ones.
func (s *Session) SetHangover(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: vad hangover %s must be positive", ErrInvalidConfig, d)
	}
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrReleased
	}
	s.cfg.VAD.Hangover = d
	rs := s.run
	s.mu.Unlock()

	if rs != nil {
		rs.vad.SetHangover(d)
	}
	return nil
}

// Enqueue slices samples into frames and queues them for playback. It
// returns the number of frames accepted; frames that do not fit are dropped.
// Nothing is accepted while the session is not running.
func (s *Session) Enqueue(samples []int16) int {
	s.mu.Lock()
	rs := s.run
	s.mu.Unlock()
	if rs == nil || !rs.running.Load() {
		return 0
	}

	frames := audio.SliceFrames(samples, rs.cfg.FrameSamples())
	accepted := 0
	for _, f := range frames {
		if rs.queue.Enqueue(f) {
			accepted++
		}
	}
	s.metrics.RecordQueueDrops(context.Background(), "full", len(frames)-accepted)
	return accepted
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		SessionID:      s.id,
		State:          s.state.String(),
		CaptureEnabled: s.captureEnabled.Load(),
		ReferenceOwner: ownerName(ownerRender),
	}
	if s.asset != nil {
		st.AssetPath = s.asset.path
	}
	rs := s.run
	s.mu.Unlock()

	if rs != nil {
		st.Sync = rs.gate.Snapshot()
		st.VAD = rs.vad.Snapshot()
		st.QueueLength = rs.queue.Len()
		st.ConsumerDrops = rs.consumerDrops.Load()
		st.ReferenceOwner = ownerName(rs.refOwner.Load())
		st.Breaker = rs.breaker.State().String()
		st.BreakerTrips = rs.breaker.Trips()
		st.RenderOverruns = rs.renderOverruns.Load()
	}
	return st
}

// onVoice returns the transition callback for rs's voice activity controller.
func (s *Session) onVoice(rs *run) func(VoiceEvent) {
	return func(ev VoiceEvent) {
		ctx := context.Background()
		if ev.Active {
			n := rs.queue.Clear()
			s.metrics.RecordQueueDrops(ctx, "barge_in", n)
			if n > 0 {
				s.metrics.BargeIns.Add(ctx, 1)
			}
			rs.assetPaused.Store(true)
			rs.refOwner.Store(ownerRender)
			slog.Debug("engine: speech started", "session_id", s.id, "dropped_frames", n)
		} else {
			rs.assetPaused.Store(false)
			slog.Debug("engine: speech ended", "session_id", s.id)
		}
		s.metrics.RecordVoiceTransition(ctx, ev.Active)

		select {
		case s.events <- ev:
		default:
			slog.Warn("engine: voice event dropped, listener too slow", "session_id", s.id, "active", ev.Active)
		}
	}
}

func (s *Session) hangoverLoop(rs *run) {
	ticker := time.NewTicker(rs.cfg.VAD.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rs.done:
			return
		case <-ticker.C:
			rs.vad.CheckHangover(s.now())
		}
	}
}

type closer interface{ Close() error }

func closeQuietly(what string, c closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, audio.ErrClosed) {
		slog.Warn("engine: close failed", "what", what, "err", err)
	}
}
