// Package decode turns prepared audio assets (prompts, tones) into mono
// 16-bit PCM at a requested sample rate.
//
// Supported containers are chosen by file extension:
//
//   - .wav: RIFF/WAVE, 16-bit integer PCM, any channel count
//   - .mp3: MPEG-1/2 Layer III
//   - .pcm, .raw: headerless mono little-endian int16 at the target rate
//
// Multi-channel input is downmixed and other sample rates are resampled
// linearly. Every failure caused by the asset content wraps [ErrDecode].
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/duplex/pkg/audio"
)

// ErrDecode marks malformed or unsupported asset audio.
var ErrDecode = errors.New("decode: malformed audio")

// Asset is a decoded track ready to be sliced into frames.
type Asset struct {
	// Path is the file the asset was loaded from.
	Path string

	// Samples is mono PCM at SampleRate.
	Samples []int16

	// SampleRate is the rate of Samples, always the rate requested from Load.
	SampleRate int

	// SourceFormat is the format found in the file before conversion.
	SourceFormat audio.Format
}

// Load reads and decodes the asset at path, converting it to mono at
// sampleRate.
func Load(path string, sampleRate int) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode: read %s: %w", path, err)
	}

	var (
		samples []int16
		src     audio.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		samples, src, err = WAV(bytes.NewReader(data))
	case ".mp3":
		samples, src, err = MP3(bytes.NewReader(data))
	case ".pcm", ".raw":
		samples, err = Raw(data)
		src = audio.Format{SampleRate: sampleRate, Channels: 1}
	default:
		return nil, fmt.Errorf("%w: unsupported asset extension %q", ErrDecode, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("decode %s: %w: no samples", path, ErrDecode)
	}
	out := audio.ResampleMono(samples, src.SampleRate, sampleRate)
	if len(out) == 0 {
		return nil, fmt.Errorf("decode %s: %w: %d samples at %d Hz is shorter than one sample at %d Hz",
			path, ErrDecode, len(samples), src.SampleRate, sampleRate)
	}

	return &Asset{
		Path:         path,
		Samples:      out,
		SampleRate:   sampleRate,
		SourceFormat: src,
	}, nil
}

// Raw decodes headerless mono little-endian int16 PCM.
func Raw(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d in raw PCM", ErrDecode, len(data))
	}
	return audio.DecodePCM(data), nil
}

// readAll drains r, used by decoders whose libraries stream.
func readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
