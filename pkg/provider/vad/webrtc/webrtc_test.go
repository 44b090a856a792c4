package webrtc_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/duplex/pkg/provider/vad"
	"github.com/MrWong99/duplex/pkg/provider/vad/webrtc"
)

func TestNewSession_RejectsUnsupportedConfig(t *testing.T) {
	t.Parallel()
	eng := webrtc.New()
	tests := []vad.Config{
		{SampleRate: 44100, FrameSizeMs: 10},
		{SampleRate: 16000, FrameSizeMs: 15},
	}
	for _, cfg := range tests {
		if _, err := eng.NewSession(cfg); err == nil {
			t.Errorf("NewSession(%+v) succeeded, want error", cfg)
		}
	}
}

func TestSession_SilenceAndFrameSize(t *testing.T) {
	t.Parallel()
	sess, err := webrtc.New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 10})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	res, err := sess.ProcessFrame(make([]int16, 160))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if res.Speech {
		t.Error("digital silence classified as speech")
	}
	if _, err := sess.ProcessFrame(make([]int16, 100)); err == nil {
		t.Error("expected error for wrong frame size")
	}

	_ = sess.Close()
	if _, err := sess.ProcessFrame(make([]int16, 160)); !errors.Is(err, webrtc.ErrClosed) {
		t.Errorf("ProcessFrame after Close = %v, want ErrClosed", err)
	}
}
