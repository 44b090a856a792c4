package decode_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/audio/decode"
)

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

func TestLoad_WAVMono(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prompt.wav")
	data := make([]int, 320)
	for i := range data {
		data[i] = i
	}
	writeWAV(t, path, 16000, 1, data)

	a, err := decode.Load(path, 16000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(a.Samples) != 320 {
		t.Fatalf("samples = %d, want 320", len(a.Samples))
	}
	if a.Samples[10] != 10 {
		t.Errorf("sample 10 = %d, want 10", a.Samples[10])
	}
	if a.SourceFormat != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("source format = %s", a.SourceFormat)
	}
}

func TestLoad_WAVStereoResampled(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// 160 stereo frames at 16 kHz, L=100 R=300.
	data := make([]int, 320)
	for i := range 160 {
		data[i*2] = 100
		data[i*2+1] = 300
	}
	writeWAV(t, path, 16000, 2, data)

	a, err := decode.Load(path, 8000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(a.Samples) != 80 {
		t.Fatalf("samples = %d, want 80", len(a.Samples))
	}
	if a.Samples[0] != 200 {
		t.Errorf("downmixed sample = %d, want 200", a.Samples[0])
	}
	if a.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", a.SampleRate)
	}
}

func TestLoad_Raw(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tone.pcm")
	if err := os.WriteFile(path, audio.AppendPCM(nil, []int16{1, 2, 3}), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := decode.Load(path, 16000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(a.Samples) != 3 || a.Samples[2] != 3 {
		t.Errorf("samples = %v, want [1 2 3]", a.Samples)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content []byte
	}{
		{"garbage wav", "bad.wav", []byte("definitely not RIFF")},
		{"garbage mp3", "bad.mp3", []byte("definitely not MPEG")},
		{"odd raw", "odd.raw", []byte{1, 2, 3}},
		{"empty raw", "empty.raw", nil},
		{"unknown extension", "prompt.ogg", []byte("OggS")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := decode.Load(path, 16000)
			if !errors.Is(err, decode.ErrDecode) {
				t.Errorf("Load(%s) error = %v, want ErrDecode", tt.file, err)
			}
		})
	}
}

func TestLoad_TooShortAfterResampling(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "click.wav")
	writeWAV(t, path, 48000, 1, []int{1000, -1000})

	a, err := decode.Load(path, 16000)
	if !errors.Is(err, decode.ErrDecode) {
		t.Fatalf("Load error = %v, want ErrDecode", err)
	}
	if a != nil {
		t.Errorf("Load returned %d samples alongside the error", len(a.Samples))
	}
}

func TestLoad_MissingFileIsNotDecodeError(t *testing.T) {
	t.Parallel()
	_, err := decode.Load(filepath.Join(t.TempDir(), "missing.wav"), 16000)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, decode.ErrDecode) {
		t.Error("missing file must not be reported as a decode error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}
