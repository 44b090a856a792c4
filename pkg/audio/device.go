package audio

import "errors"

// ErrClosed is returned by device operations after Close.
var ErrClosed = errors.New("audio: device closed")

// Format describes the sample rate and channel count of a device stream.
// Samples are always signed 16-bit little-endian, interleaved.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// CaptureDevice is a blocking microphone source.
//
// Implementations must be safe for one reader goroutine concurrently with
// Close. Close must unblock a pending Read.
type CaptureDevice interface {
	// Read fills buf with up to len(buf) interleaved samples and returns how
	// many were written. Read blocks until at least one sample is available;
	// short reads are normal and callers loop until a frame is complete.
	// After Close, Read returns [ErrClosed].
	Read(buf []int16) (int, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// RenderDevice is a speaker sink. The caller paces writes; the device must
// buffer at least a few frames so a paced writer never underruns.
//
// Implementations must be safe for one writer goroutine concurrently with
// Close.
type RenderDevice interface {
	// Write queues interleaved samples for playback and returns how many were
	// accepted. A full device buffer is reported as a short count with a nil
	// error. Write must not block for longer than one frame duration.
	Write(samples []int16) (int, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Backend opens devices on a host audio subsystem.
type Backend interface {
	// OpenCapture opens the default input device with format f.
	OpenCapture(f Format) (CaptureDevice, error)

	// OpenRender opens the default output device with format f.
	OpenRender(f Format) (RenderDevice, error)

	// Close releases backend-wide resources once every device is closed.
	Close() error
}

// Combine returns a Backend that opens capture devices on capture and render
// devices on render. Close closes both, once each, even when they are the
// same backend.
func Combine(capture, render Backend) Backend {
	return &combined{capture: capture, render: render}
}

type combined struct {
	capture Backend
	render  Backend
}

func (c *combined) OpenCapture(f Format) (CaptureDevice, error) { return c.capture.OpenCapture(f) }
func (c *combined) OpenRender(f Format) (RenderDevice, error)   { return c.render.OpenRender(f) }

func (c *combined) Close() error {
	err := c.capture.Close()
	if c.render != c.capture {
		err = errors.Join(err, c.render.Close())
	}
	return err
}
