package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/MrWong99/duplex/pkg/audio"
)

// WAV decodes a 16-bit integer PCM WAVE stream and downmixes it to mono.
func WAV(r io.ReadSeeker) ([]int16, audio.Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, audio.Format{}, fmt.Errorf("%w: not a valid WAVE file", ErrDecode)
	}
	if d.BitDepth != 16 {
		return nil, audio.Format{}, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, d.BitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: wav: %w", ErrDecode, err)
	}

	f := audio.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if f.Channels < 1 || f.SampleRate <= 0 {
		return nil, audio.Format{}, fmt.Errorf("%w: invalid format %s", ErrDecode, f)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return audio.Downmix(samples, f.Channels), f, nil
}
