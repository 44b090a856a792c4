// Package oto implements a playback-only [audio.Backend] with
// github.com/ebitengine/oto/v3.
//
// oto allows a single context per process, so a Backend is bound to the
// format of its first OpenRender call and rejects later calls with a
// different format. Pair it with a capture-capable backend through
// [audio.Combine].
package oto

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/duplex/pkg/audio"
)

// ErrCaptureUnsupported is returned by [Backend.OpenCapture].
var ErrCaptureUnsupported = errors.New("oto: capture is not supported")

const (
	defaultBufferSize = 40 * time.Millisecond
	maxQueued         = 200 * time.Millisecond
)

// Backend is a playback-only backend.
type Backend struct {
	mu         sync.Mutex
	ctx        *oto.Context
	format     audio.Format
	bufferSize time.Duration
}

// New returns a Backend whose player buffers bufferSize of audio. A zero
// bufferSize selects 40 ms.
func New(bufferSize time.Duration) *Backend {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Backend{bufferSize: bufferSize}
}

// OpenCapture implements [audio.Backend]. Always fails.
func (b *Backend) OpenCapture(audio.Format) (audio.CaptureDevice, error) {
	return nil, ErrCaptureUnsupported
}

// OpenRender implements [audio.Backend].
func (b *Backend) OpenRender(f audio.Format) (audio.RenderDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   b.bufferSize,
		})
		if err != nil {
			return nil, fmt.Errorf("oto: create context: %w", err)
		}
		<-ready
		b.ctx = ctx
		b.format = f
	} else if b.format != f {
		return nil, fmt.Errorf("oto: context is bound to %s, cannot open %s", b.format, f)
	}

	src := &source{
		buf: make([]int16, 0, int(int64(f.SampleRate)*int64(f.Channels)*int64(maxQueued)/int64(time.Second))),
	}
	p := b.ctx.NewPlayer(src)
	p.Play()
	slog.Info("oto: playback started", "format", f.String(), "bufferSize", b.bufferSize)
	return &renderDevice{src: src, player: p}, nil
}

// Close suspends the oto context. oto cannot release it until process exit.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Suspend(); err != nil {
		return fmt.Errorf("oto: suspend context: %w", err)
	}
	return nil
}

// source is the io.Reader pulled by the oto player. It never blocks: when no
// audio is queued it yields silence so device timing stays continuous.
type source struct {
	mu     sync.Mutex
	buf    []int16
	closed bool
}

func (s *source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(p) / 2
	take := min(n, len(s.buf))
	out := audio.AppendPCM(p[:0], s.buf[:take])
	s.buf = s.buf[:copy(s.buf, s.buf[take:])]
	clear(p[len(out) : n*2])
	return n * 2, nil
}

func (s *source) write(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, audio.ErrClosed
	}
	room := cap(s.buf) - len(s.buf)
	n := min(room, len(samples))
	s.buf = append(s.buf, samples[:n]...)
	return n, nil
}

type renderDevice struct {
	src       *source
	player    *oto.Player
	closeOnce sync.Once
	closeErr  error
}

func (r *renderDevice) Write(samples []int16) (int, error) {
	return r.src.write(samples)
}

func (r *renderDevice) Close() error {
	r.closeOnce.Do(func() {
		r.src.mu.Lock()
		r.src.closed = true
		r.src.mu.Unlock()
		r.closeErr = r.player.Close()
	})
	return r.closeErr
}

// Compile-time interface assertions.
var (
	_ audio.Backend      = (*Backend)(nil)
	_ audio.RenderDevice = (*renderDevice)(nil)
)
