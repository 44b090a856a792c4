// Package miniaudio implements [audio.Backend] on top of miniaudio through
// github.com/gen2brain/malgo.
//
// Both directions use callback devices bridged to the blocking/pacing model
// of the engine with sample rings: the capture callback fills a ring that
// [audio.CaptureDevice.Read] drains, and [audio.RenderDevice.Write] fills a
// ring that the playback callback drains, zero-filling on underrun.
package miniaudio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/duplex/pkg/audio"
)

const (
	// defaultCaptureBuffer is how much captured audio is retained when the
	// reader falls behind. Older samples are overwritten.
	defaultCaptureBuffer = time.Second

	// defaultRenderBuffer bounds queued playback so write latency stays low.
	defaultRenderBuffer = 200 * time.Millisecond

	periodMs = 10
)

// Option is a functional option for [New].
type Option func(*Backend)

// WithCaptureBuffer sets how much captured audio is retained for a slow reader.
func WithCaptureBuffer(d time.Duration) Option {
	return func(b *Backend) { b.captureBuffer = d }
}

// WithRenderBuffer sets the maximum amount of queued playback audio.
func WithRenderBuffer(d time.Duration) Option {
	return func(b *Backend) { b.renderBuffer = d }
}

// Backend opens miniaudio capture and playback devices on the default host
// audio API.
type Backend struct {
	ctx           *malgo.AllocatedContext
	captureBuffer time.Duration
	renderBuffer  time.Duration
}

// New initialises a miniaudio context.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		captureBuffer: defaultCaptureBuffer,
		renderBuffer:  defaultRenderBuffer,
	}
	for _, o := range opts {
		o(b)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	b.ctx = ctx
	return b, nil
}

// OpenCapture implements [audio.Backend].
func (b *Backend) OpenCapture(f audio.Format) (audio.CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = periodMs
	cfg.Alsa.NoMMap = 1

	c := &captureDevice{
		ring: newRing(samplesFor(f, b.captureBuffer)),
	}
	onRecv := func(_, input []byte, _ uint32) {
		c.ring.write(audio.DecodePCM(input), true)
	}
	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init capture device %s: %w", f, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("miniaudio: start capture device: %w", err)
	}
	c.dev = dev
	slog.Info("miniaudio: capture device started", "format", f.String())
	return c, nil
}

// OpenRender implements [audio.Backend].
func (b *Backend) OpenRender(f audio.Format) (audio.RenderDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = periodMs
	cfg.Alsa.NoMMap = 1

	r := &renderDevice{
		ring: newRing(samplesFor(f, b.renderBuffer)),
	}
	var scratch []int16
	onSend := func(output, _ []byte, _ uint32) {
		n := len(output) / 2
		if cap(scratch) < n {
			scratch = make([]int16, n)
		}
		scratch = scratch[:n]
		r.ring.readAvailable(scratch)
		audio.AppendPCM(output[:0], scratch)
	}
	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSend})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init playback device %s: %w", f, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("miniaudio: start playback device: %w", err)
	}
	r.dev = dev
	slog.Info("miniaudio: playback device started", "format", f.String())
	return r, nil
}

// Close releases the miniaudio context. Devices must be closed first.
func (b *Backend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

func samplesFor(f audio.Format, d time.Duration) int {
	n := int(int64(f.SampleRate) * int64(f.Channels) * int64(d) / int64(time.Second))
	return max(n, f.Channels*audio.FrameSize(f.SampleRate))
}

// ─── capture ──────────────────────────────────────────────────────────────────

type captureDevice struct {
	ring      *ring
	dev       *malgo.Device
	closeOnce sync.Once
}

func (c *captureDevice) Read(buf []int16) (int, error) {
	n, ok := c.ring.readBlocking(buf)
	if !ok {
		return 0, audio.ErrClosed
	}
	return n, nil
}

func (c *captureDevice) Close() error {
	c.closeOnce.Do(func() {
		c.ring.close()
		c.dev.Uninit()
		if d := c.ring.droppedSamples(); d > 0 {
			slog.Warn("miniaudio: capture overflow", "droppedSamples", d)
		}
	})
	return nil
}

// ─── render ───────────────────────────────────────────────────────────────────

type renderDevice struct {
	ring      *ring
	dev       *malgo.Device
	closeOnce sync.Once
}

func (r *renderDevice) Write(samples []int16) (int, error) {
	if r.ring.closedState() {
		return 0, audio.ErrClosed
	}
	return r.ring.write(samples, false), nil
}

func (r *renderDevice) Close() error {
	r.closeOnce.Do(func() {
		r.ring.close()
		r.dev.Uninit()
		if d := r.ring.droppedSamples(); d > 0 {
			slog.Warn("miniaudio: playback overflow", "droppedSamples", d)
		}
	})
	return nil
}

// Compile-time interface assertions.
var (
	_ audio.Backend       = (*Backend)(nil)
	_ audio.CaptureDevice = (*captureDevice)(nil)
	_ audio.RenderDevice  = (*renderDevice)(nil)
)
