package decode

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/duplex/pkg/audio"
)

// MP3 decodes an MP3 stream. The decoder always produces interleaved stereo
// int16, which is downmixed to mono here.
func MP3(r io.Reader) ([]int16, audio.Format, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
	}
	pcm, err := readAll(d)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
	}
	f := audio.Format{SampleRate: d.SampleRate(), Channels: 2}
	return audio.Downmix(audio.DecodePCM(pcm), 2), f, nil
}
