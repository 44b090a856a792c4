package audio_test

import (
	"testing"

	"github.com/MrWong99/duplex/pkg/audio"
)

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestInterleave_Stereo(t *testing.T) {
	got := audio.Interleave([]int16{100, 200, 300}, 2)
	equalSamples(t, got, []int16{100, 100, 200, 200, 300, 300})
}

func TestInterleave_MonoCopies(t *testing.T) {
	in := []int16{1, 2}
	got := audio.Interleave(in, 1)
	got[0] = 99
	if in[0] != 1 {
		t.Error("Interleave with one channel must not alias its input")
	}
}

func TestDownmix(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := audio.Downmix([]int16{100, 200, -100, -200}, 2)
	equalSamples(t, got, []int16{150, -150})
}

func TestDownmix_NoOverflow(t *testing.T) {
	got := audio.Downmix([]int16{32767, 32767, -32768, -32768}, 2)
	equalSamples(t, got, []int16{32767, -32768})
}

func TestDownmix_DropsPartialFrame(t *testing.T) {
	got := audio.Downmix([]int16{10, 20, 30}, 2)
	equalSamples(t, got, []int16{15})
}

func TestResampleMono_SameRate(t *testing.T) {
	in := []int16{100, 200, 300}
	out := audio.ResampleMono(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResampleMono_Upsample(t *testing.T) {
	// 2 samples at 8kHz → 4 samples at 16kHz
	got := audio.ResampleMono([]int16{1000, 2000}, 8000, 16000)
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	if got[1] != 1500 {
		t.Errorf("interpolated sample: got %d, want 1500", got[1])
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	// 441 samples at 44.1kHz → 160 samples at 16kHz
	in := make([]int16, 441)
	got := audio.ResampleMono(in, 44100, 16000)
	if len(got) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(got))
	}
}

func TestResampleMono_InvalidRate(t *testing.T) {
	in := []int16{1, 2, 3}
	if got := audio.ResampleMono(in, 0, 16000); len(got) != 3 {
		t.Errorf("invalid source rate should return input, got %d samples", len(got))
	}
}

func TestPCMBytes(t *testing.T) {
	b := audio.AppendPCM(nil, []int16{1, -1, 256})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if string(b) != string(want) {
		t.Fatalf("AppendPCM = %v, want %v", b, want)
	}
	equalSamples(t, audio.DecodePCM(append(b, 0x7f)), []int16{1, -1, 256})
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 48000, Channels: 6}, "48000Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format%+v.String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}
