// Package webrtc implements [vad.Engine] with the WebRTC voice activity
// detector through github.com/pidato/vad-go.
//
// The detector runs in its aggressive mode and accepts 10, 20 or 30 ms frames
// at 8 or 16 kHz.
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	vadgo "github.com/pidato/vad-go"

	"github.com/MrWong99/duplex/pkg/provider/vad"
)

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("webrtc vad: session closed")

// Engine creates WebRTC VAD sessions.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// Name implements [vad.Engine].
func (*Engine) Name() string { return "webrtc" }

// NewSession implements [vad.Engine].
func (*Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	s.init()
	return s, nil
}

func validate(cfg vad.Config) error {
	switch cfg.SampleRate {
	case 8000, 16000:
	default:
		return fmt.Errorf("webrtc vad: unsupported sample rate %d", cfg.SampleRate)
	}
	switch cfg.FrameSizeMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("webrtc vad: unsupported frame size %d ms", cfg.FrameSizeMs)
	}
	return nil
}

// detector is the subset of the binding used per frame.
type detector interface {
	Process(frame []int16) vadgo.Result
}

type session struct {
	mu     sync.Mutex
	cfg    vad.Config
	det    detector
	closed bool
}

// init must be called with s.mu held or before the session is shared.
func (s *session) init() {
	d := vadgo.New()
	d.SetSampleRate(int32(s.cfg.SampleRate))
	d.SetMode(vadgo.Aggressive)
	s.det = d
}

func (s *session) ProcessFrame(frame []int16) (vad.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Result{}, ErrClosed
	}
	if want := s.cfg.FrameSamples(); len(frame) != want {
		return vad.Result{}, fmt.Errorf("webrtc vad: frame has %d samples, want %d", len(frame), want)
	}
	if s.det.Process(frame) == vadgo.Active {
		return vad.Result{Speech: true, Probability: 1}, nil
	}
	return vad.Result{}, nil
}

// Reset replaces the detector; the binding exposes no state reset.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.init()
	}
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.det = nil
	return nil
}

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)
