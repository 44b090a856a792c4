// Package wavrec records mono frames to a 16-bit PCM WAVE file.
package wavrec

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/duplex/pkg/audio"
)

const (
	bitDepth  = 16
	formatPCM = 1
)

// Writer appends frames to a WAVE file. The header is finalised by Close.
// Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	samples int
	closed  bool
}

// Create truncates or creates path and prepares a mono WAVE stream at
// sampleRate.
func Create(path string, sampleRate int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavrec: create %s: %w", path, err)
	}
	return &Writer{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, bitDepth, 1, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// WriteFrame appends one frame.
func (w *Writer) WriteFrame(f audio.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return audio.ErrClosed
	}
	w.buf.Data = w.buf.Data[:0]
	for _, s := range f {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wavrec: write: %w", err)
	}
	w.samples += len(f)
	return nil
}

// Samples returns how many samples have been written.
func (w *Writer) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Close finalises the header and closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("wavrec: finalise: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("wavrec: close: %w", fileErr)
	}
	return nil
}
