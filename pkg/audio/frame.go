// Package audio defines the frame type and device abstractions shared by the
// duplex engine and its device adapters.
//
// The primary abstractions are:
//
//   - [Frame]: exactly 10 ms of mono 16-bit PCM at the session sample rate.
//   - [CaptureDevice]: a blocking microphone source.
//   - [RenderDevice]: a speaker sink paced by the caller.
//   - [Backend]: opens capture and render devices for a [Format].
//
// Implementations of the device interfaces are provided by backend packages
// (audio/miniaudio, audio/oto) and by audio/mock for tests.
//
// This package lives under pkg/ because external code (custom device backends)
// is expected to implement [CaptureDevice] and [RenderDevice].
package audio

import (
	"math"
	"time"
)

// FrameDuration is the fixed duration of every [Frame] exchanged with the
// processor, regardless of what the device or producer deliver.
const FrameDuration = 10 * time.Millisecond

// Frame is a fixed-length run of mono int16 PCM samples covering
// [FrameDuration] at the session sample rate (160 samples at 16 kHz).
type Frame []int16

// FrameSize returns the number of mono samples in one [Frame] at sampleRate.
func FrameSize(sampleRate int) int {
	return sampleRate * int(FrameDuration/time.Millisecond) / 1000
}

// Silence returns an all-zero frame of the given size.
func Silence(size int) Frame {
	return make(Frame, size)
}

// Clone returns a copy of f that shares no memory with it.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// RMS returns the root-mean-square amplitude of f in raw sample units.
func (f Frame) RMS() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}

// ZeroCrossings counts sign changes between adjacent samples. Zero samples
// carry the sign of the previous non-zero sample so DC and digital silence
// produce no crossings.
func (f Frame) ZeroCrossings() int {
	var (
		n    int
		prev int16
	)
	for _, s := range f {
		if s == 0 {
			continue
		}
		if (prev < 0 && s > 0) || (prev > 0 && s < 0) {
			n++
		}
		prev = s
	}
	return n
}

// IsSilent reports whether every sample in f is zero.
func (f Frame) IsSilent() bool {
	for _, s := range f {
		if s != 0 {
			return false
		}
	}
	return true
}

// SliceFrames splits samples into frames of exactly size samples. Oversized
// input yields several frames; a short tail is zero-padded. The returned
// frames never alias samples. Empty input or a non-positive size yields nil.
func SliceFrames(samples []int16, size int) []Frame {
	if size <= 0 || len(samples) == 0 {
		return nil
	}
	n := (len(samples) + size - 1) / size
	frames := make([]Frame, 0, n)
	for off := 0; off < len(samples); off += size {
		f := make(Frame, size)
		copy(f, samples[off:min(off+size, len(samples))])
		frames = append(frames, f)
	}
	return frames
}
