// Package mock provides in-memory mock implementations of the
// [audio.CaptureDevice], [audio.RenderDevice] and [audio.Backend] interfaces
// for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control behaviour.
//
// Typical usage:
//
//	mic := &mock.CaptureDevice{
//	    Interval: 10 * time.Millisecond,
//	    Next:     func(n int) []int16 { return tone(n) },
//	}
//	spk := &mock.RenderDevice{}
//	backend := &mock.Backend{Capture: mic, Render: spk}
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/duplex/pkg/audio"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice is a mock implementation of [audio.CaptureDevice].
// Set the exported fields before use; inspect the CallCount* fields after.
type CaptureDevice struct {
	mu sync.Mutex

	// Interval is how long each refill blocks, simulating device pacing.
	// Zero means refills return immediately.
	Interval time.Duration

	// Next supplies the samples for a refill; n is the length of the buffer
	// passed to the Read that triggered it. Defaults to n zero samples.
	Next func(n int) []int16

	// MaxChunk caps the samples returned per Read to simulate partial reads.
	// Zero means no cap.
	MaxChunk int

	// ReadError, when non-nil, is returned by every Read.
	ReadError error

	// CloseError is returned by [CaptureDevice.Close].
	CloseError error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	pending []int16
	done    chan struct{}
	closed  bool
}

func (d *CaptureDevice) doneChan() chan struct{} {
	if d.done == nil {
		d.done = make(chan struct{})
	}
	return d.done
}

// Read implements [audio.CaptureDevice].
func (d *CaptureDevice) Read(buf []int16) (int, error) {
	d.mu.Lock()
	d.CallCountRead++
	if d.ReadError != nil {
		err := d.ReadError
		d.mu.Unlock()
		return 0, err
	}
	if d.closed {
		d.mu.Unlock()
		return 0, audio.ErrClosed
	}
	done := d.doneChan()
	if len(d.pending) == 0 {
		interval, next := d.Interval, d.Next
		d.mu.Unlock()

		if interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-done:
				timer.Stop()
				return 0, audio.ErrClosed
			case <-timer.C:
			}
		}
		var chunk []int16
		if next != nil {
			chunk = next(len(buf))
		} else {
			chunk = make([]int16, len(buf))
		}

		d.mu.Lock()
		d.pending = append(d.pending, chunk...)
	}
	n := len(buf)
	if d.MaxChunk > 0 && n > d.MaxChunk {
		n = d.MaxChunk
	}
	n = copy(buf[:n], d.pending)
	d.pending = d.pending[n:]
	d.mu.Unlock()
	return n, nil
}

// Close implements [audio.CaptureDevice]. Returns CloseError.
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	if !d.closed {
		d.closed = true
		close(d.doneChan())
	}
	return d.CloseError
}

// Reads returns the current Read call count.
func (d *CaptureDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountRead
}

// ─── RenderDevice ─────────────────────────────────────────────────────────────

// RenderDevice is a mock implementation of [audio.RenderDevice].
// Every written buffer is copied into Written.
type RenderDevice struct {
	mu sync.Mutex

	// WriteError, when non-nil, is returned by every Write.
	WriteError error

	// FullWrites is how many of the next Write calls accept nothing, as a
	// device with a full buffer does.
	FullWrites int

	// CloseError is returned by [RenderDevice.Close].
	CloseError error

	// Written holds a copy of every buffer passed to Write, in order.
	Written [][]int16

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Write implements [audio.RenderDevice].
func (d *RenderDevice) Write(samples []int16) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteError != nil {
		return 0, d.WriteError
	}
	if d.FullWrites > 0 {
		d.FullWrites--
		return 0, nil
	}
	cp := make([]int16, len(samples))
	copy(cp, samples)
	d.Written = append(d.Written, cp)
	return len(samples), nil
}

// Close implements [audio.RenderDevice]. Returns CloseError.
func (d *RenderDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return d.CloseError
}

// Writes returns a snapshot of the buffers written so far.
func (d *RenderDevice) Writes() [][]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]int16, len(d.Written))
	copy(out, d.Written)
	return out
}

// Closes returns how many times Close was called.
func (d *RenderDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountClose
}

// ─── Backend ──────────────────────────────────────────────────────────────────

// Backend is a mock implementation of [audio.Backend]. It hands out the
// configured devices and records the formats requested.
type Backend struct {
	mu sync.Mutex

	// Capture is returned by OpenCapture.
	Capture audio.CaptureDevice

	// Render is returned by OpenRender.
	Render audio.RenderDevice

	// OpenCaptureError, when non-nil, is returned by OpenCapture.
	OpenCaptureError error

	// OpenRenderError, when non-nil, is returned by OpenRender.
	OpenRenderError error

	// CaptureFormats records the format of every OpenCapture call.
	CaptureFormats []audio.Format

	// RenderFormats records the format of every OpenRender call.
	RenderFormats []audio.Format

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// OpenCapture implements [audio.Backend].
func (b *Backend) OpenCapture(f audio.Format) (audio.CaptureDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CaptureFormats = append(b.CaptureFormats, f)
	if b.OpenCaptureError != nil {
		return nil, b.OpenCaptureError
	}
	return b.Capture, nil
}

// OpenRender implements [audio.Backend].
func (b *Backend) OpenRender(f audio.Format) (audio.RenderDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RenderFormats = append(b.RenderFormats, f)
	if b.OpenRenderError != nil {
		return nil, b.OpenRenderError
	}
	return b.Render, nil
}

// Close implements [audio.Backend].
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountClose++
	return nil
}

// Compile-time interface assertions.
var (
	_ audio.CaptureDevice = (*CaptureDevice)(nil)
	_ audio.RenderDevice  = (*RenderDevice)(nil)
	_ audio.Backend       = (*Backend)(nil)
)
