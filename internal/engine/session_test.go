package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/duplex/internal/engine"
	"github.com/MrWong99/duplex/internal/observe"
	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/audio/decode"
	audiomock "github.com/MrWong99/duplex/pkg/audio/mock"
	"github.com/MrWong99/duplex/pkg/provider/processor"
	procmock "github.com/MrWong99/duplex/pkg/provider/processor/mock"
	vadmock "github.com/MrWong99/duplex/pkg/provider/vad/mock"
)

type harness struct {
	session *engine.Session
	backend *audiomock.Backend
	mic     *audiomock.CaptureDevice
	speaker *audiomock.RenderDevice
	proc    *procmock.Processor
	reader  *sdkmetric.ManualReader
}

func newHarness(t *testing.T, cfg engine.Config, opts ...engine.Option) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &harness{
		mic:     &audiomock.CaptureDevice{Interval: 10 * time.Millisecond},
		speaker: &audiomock.RenderDevice{},
		proc:    &procmock.Processor{},
		reader:  reader,
	}
	h.backend = &audiomock.Backend{Capture: h.mic, Render: h.speaker}
	opts = append([]engine.Option{
		engine.WithMetrics(m),
		engine.WithProcessorFactory(h.proc.Factory()),
	}, opts...)
	h.session = engine.New(cfg, h.backend, opts...)
	t.Cleanup(func() { _ = h.session.Release() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) counter(t *testing.T, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); key == "" || (ok && v.AsString() == value) {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.JoinTimeout = 500 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_StartStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start(t)

	if !h.session.Running() {
		t.Fatal("Running() = false after Start")
	}
	waitFor(t, "render writes", func() bool { return len(h.speaker.Writes()) >= 5 })
	waitFor(t, "capture frames", func() bool { return len(h.session.Frames()) > 0 })

	if err := h.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.session.Running() {
		t.Fatal("Running() = true after Stop")
	}
	select {
	case <-h.session.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
	if h.mic.CallCountClose != 1 || h.speaker.Closes() != 1 {
		t.Errorf("device closes = %d/%d, want 1/1", h.mic.CallCountClose, h.speaker.Closes())
	}
	if h.proc.CloseCallCount != 1 {
		t.Errorf("processor closes = %d, want 1", h.proc.CloseCallCount)
	}
	if got := h.session.Stats().State; got != "stopped" {
		t.Errorf("State = %q, want stopped", got)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	if err := h.session.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	h.start(t)
	for i := range 3 {
		if err := h.session.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
	if h.mic.CallCountClose != 1 {
		t.Errorf("capture closed %d times, want 1", h.mic.CallCountClose)
	}
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start(t)
	if err := h.session.Start(context.Background()); !errors.Is(err, engine.ErrAlreadyRunning) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyRunning", err)
	}
}

func TestSession_InvalidConfigOpensNothing(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.SampleRate = 44100
	cfg.VAD.FrameMs = 25
	h := newHarness(t, cfg)

	err := h.session.Start(context.Background())
	if !errors.Is(err, engine.ErrInvalidConfig) {
		t.Fatalf("Start: err = %v, want ErrInvalidConfig", err)
	}
	if len(h.backend.CaptureFormats) != 0 || len(h.backend.RenderFormats) != 0 {
		t.Error("a device was opened despite the invalid configuration")
	}
	if h.session.Running() {
		t.Error("Running() = true after a failed Start")
	}
}

func TestSession_LongerFrameForcedTo10ms(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.FrameMs = 20
	cfg.SampleRate = 8000
	h := newHarness(t, cfg)
	h.start(t)

	select {
	case f := <-h.session.Frames():
		if len(f) != 80 {
			t.Fatalf("frame length = %d, want 80", len(f))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no capture frame")
	}
	if got := h.backend.CaptureFormats[0]; got != (audio.Format{SampleRate: 8000, Channels: 1}) {
		t.Errorf("capture format = %v", got)
	}
}

func TestSession_OpenRenderFailureClosesCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.backend.OpenRenderError = errors.New("no speaker")

	err := h.session.Start(context.Background())
	if !errors.Is(err, engine.ErrDevice) {
		t.Fatalf("Start: err = %v, want ErrDevice", err)
	}
	if h.mic.CallCountClose != 1 {
		t.Errorf("capture closes = %d, want 1", h.mic.CallCountClose)
	}
	if h.proc.CloseCallCount != 1 {
		t.Errorf("processor closes = %d, want 1", h.proc.CloseCallCount)
	}
}

func TestSession_RenderCountsEveryTick(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RenderChannels = 2
	h := newHarness(t, cfg)
	h.start(t)

	waitFor(t, "render writes", func() bool { return len(h.speaker.Writes()) >= 10 })
	stats := h.session.Stats()
	if err := h.session.Stop(); err != nil {
		t.Fatal(err)
	}

	writes := h.speaker.Writes()
	for i, w := range writes {
		if len(w) != 320 {
			t.Fatalf("write %d: %d samples, want 320 (stereo)", i, len(w))
		}
		if !audio.Frame(w).IsSilent() {
			t.Fatalf("write %d is not silence", i)
		}
	}
	refs, _, _, _ := h.proc.Snapshot()
	if refs != len(writes) {
		t.Errorf("reference pushes = %d, render writes = %d", refs, len(writes))
	}
	if stats.Sync.RenderFrames < 10 {
		t.Errorf("RenderFrames = %d, want at least 10", stats.Sync.RenderFrames)
	}
	if got := h.counter(t, "duplex.render.frames", "source", "silence"); got != int64(len(writes)) {
		t.Errorf("render frame metric = %d, want %d", got, len(writes))
	}
}

func TestSession_EnqueueRendersAudio(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	if n := h.session.Enqueue(frameOf(7, 160)); n != 0 {
		t.Fatalf("Enqueue before Start accepted %d frames", n)
	}
	h.start(t)

	// 400 samples make three frames, the last zero-padded.
	if n := h.session.Enqueue(frameOf(7, 400)); n != 3 {
		t.Fatalf("Enqueue accepted %d frames, want 3", n)
	}
	waitFor(t, "queued audio rendered", func() bool {
		loud := 0
		for _, w := range h.speaker.Writes() {
			if w[0] == 7 {
				loud++
			}
		}
		return loud == 3
	})

	_ = h.session.Stop()
	found := false
	for _, ref := range h.proc.References {
		if ref[0] == 7 {
			found = true
			break
		}
	}
	if !found {
		t.Error("queued frame was not pushed as echo reference")
	}
}

func TestSession_QueueFullDropsNewest(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.QueueCapacity = 4
	h := newHarness(t, cfg)
	h.start(t)

	n := h.session.Enqueue(frameOf(1, 160*40))
	if n < 4 || n > 8 {
		t.Fatalf("Enqueue accepted %d of 40 frames, want about the capacity", n)
	}
	if got := h.counter(t, "duplex.queue.drops", "reason", "full"); got != int64(40-n) {
		t.Errorf("queue drop metric = %d, want %d", got, 40-n)
	}
}

func TestSession_CaptureDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	if err := h.session.SetCaptureEnabled(false); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	waitFor(t, "capture reads", func() bool { return h.mic.Reads() >= 5 })
	select {
	case <-h.session.Frames():
		t.Fatal("frame emitted while capture was disabled")
	default:
	}

	if err := h.session.SetCaptureEnabled(true); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.session.Frames():
	case <-time.After(3 * time.Second):
		t.Fatal("no frame after enabling capture")
	}
	if s := h.session.Stats(); s.Sync.CaptureFrames == 0 || !s.CaptureEnabled {
		t.Errorf("stats after enabling = %+v", s)
	}
}

func TestSession_DeviceErrorStopsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.mic.ReadError = errors.New("unplugged")
	h.start(t)

	select {
	case <-h.session.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop after a capture error")
	}
	if err := h.session.Err(); !errors.Is(err, engine.ErrDevice) {
		t.Fatalf("Err() = %v, want ErrDevice", err)
	}
	waitFor(t, "session stopped", func() bool { return !h.session.Running() })
	if got := h.counter(t, "duplex.device.errors", "direction", "capture"); got != 1 {
		t.Errorf("device error metric = %d, want 1", got)
	}

	// A failed session can be started again with working devices.
	h.backend.Capture = &audiomock.CaptureDevice{Interval: 10 * time.Millisecond}
	h.start(t)
	if err := h.session.Err(); err != nil {
		t.Errorf("Err() after restart = %v, want nil", err)
	}
}

func TestSession_FullRenderBufferDropsFrameAndKeepsRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.speaker.FullWrites = 1
	h.start(t)

	waitFor(t, "render frames after the overrun", func() bool {
		return h.session.Stats().Sync.RenderFrames >= 10
	})
	if !h.session.Running() {
		t.Fatalf("session stopped after a full render buffer: %v", h.session.Err())
	}
	if err := h.session.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if got := h.session.Stats().RenderOverruns; got != 1 {
		t.Errorf("RenderOverruns = %d, want 1", got)
	}
	if got := h.counter(t, "duplex.render.overruns", "", ""); got != 1 {
		t.Errorf("overrun metric = %d, want 1", got)
	}
	if got := h.counter(t, "duplex.device.errors", "direction", "render"); got != 0 {
		t.Errorf("device error metric = %d, want 0", got)
	}
	if len(h.speaker.Writes()) == 0 {
		t.Error("nothing written after the overrun")
	}
}

func TestSession_ProcessorFailuresPassThroughAndEscalateOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.proc.ProcessErr = errors.New("overloaded")
	h.mic.Interval = time.Millisecond
	h.mic.Next = func(n int) []int16 { return frameOf(5, n) }
	h.start(t)

	waitFor(t, "200 processor failures", func() bool {
		_, processed, _, _ := h.proc.Snapshot()
		return processed >= 250
	})

	select {
	case f := <-h.session.Frames():
		if f[0] != 5 || f[len(f)-1] != 5 {
			t.Fatalf("frame = %v..., want the raw capture frame", f[:4])
		}
	default:
		t.Fatal("no frame delivered while the processor was failing")
	}

	_, _, _, strengths := h.proc.Snapshot()
	if len(strengths) != 1 || strengths[0] != processor.StrengthFull {
		t.Fatalf("SetStrength calls = %v, want exactly [full]", strengths)
	}
	if got := h.session.Stats().Sync.Escalations; got != 1 {
		t.Errorf("Escalations = %d, want 1", got)
	}
}

func TestSession_BreakerTripInStats(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Sync.EscalateAfter = 5
	cfg.BypassCooldown = time.Hour
	h := newHarness(t, cfg)
	h.proc.ProcessErr = errors.New("overloaded")
	h.mic.Interval = 2 * time.Millisecond
	h.start(t)

	waitFor(t, "breaker trip", func() bool { return h.session.Stats().BreakerTrips == 1 })
	if got := h.session.Stats().Breaker; got != "open" {
		t.Errorf("Breaker = %q, want open", got)
	}
	waitFor(t, "bypassed frames", func() bool {
		return h.counter(t, "duplex.capture.frames", "outcome", "bypassed") > 0
	})
}

func TestSession_DelayEstimateForwarded(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Sync.DelayUpdateEvery = 5
	h := newHarness(t, cfg)
	if err := h.session.SetPlaybackDelayHint(40 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	waitFor(t, "delay updates", func() bool {
		_, _, delays, _ := h.proc.Snapshot()
		return len(delays) >= 2
	})
	_, _, delays, _ := h.proc.Snapshot()
	for _, d := range delays {
		if d < 40 {
			t.Errorf("delay %d ms does not include the 40 ms hint", d)
		}
	}
}

func TestSession_BargeInAndHangover(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.QueueCapacity = 50
	cfg.VAD.Hangover = 150 * time.Millisecond
	h := newHarness(t, cfg)

	var loud atomic.Bool
	h.mic.Next = func(n int) []int16 {
		if loud.Load() {
			return alternating(6000, n)
		}
		return alternating(40, n)
	}
	h.start(t)
	waitFor(t, "noise floor", func() bool { return h.session.Stats().Sync.CaptureFrames >= 5 })

	if n := h.session.Enqueue(frameOf(9, 160*50)); n < 45 {
		t.Fatalf("Enqueue accepted %d frames", n)
	}
	loud.Store(true)

	select {
	case ev := <-h.session.VoiceEvents():
		if !ev.Active || ev.DetectorMode != engine.VADEnergy || ev.HangoverMs != 150 {
			t.Fatalf("event = %+v, want speech start", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no speech event")
	}
	if q := h.session.Stats().QueueLength; q != 0 {
		t.Errorf("queue length after barge-in = %d, want 0", q)
	}
	if got := h.counter(t, "duplex.vad.barge_ins", "", ""); got != 1 {
		t.Errorf("barge-in metric = %d, want 1", got)
	}

	loud.Store(false)
	select {
	case ev := <-h.session.VoiceEvents():
		if ev.Active {
			t.Fatalf("event = %+v, want speech end", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no speech end event")
	}
	if h.session.Stats().VAD.Speaking {
		t.Error("still Speaking after the hangover")
	}
}

func writeRawAsset(t *testing.T, v int16, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.pcm")
	if err := os.WriteFile(path, audio.AppendPCM(nil, frameOf(v, n)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSession_AssetFeedsRenderAndReference(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	path := writeRawAsset(t, 1000, 1600)

	if err := h.session.LoadAsset(context.Background(), path); err != nil {
		t.Fatalf("LoadAsset before Start: %v", err)
	}
	h.start(t)

	waitFor(t, "asset rendered", func() bool {
		for _, w := range h.speaker.Writes() {
			if w[0] == 1000 {
				return true
			}
		}
		return false
	})
	waitFor(t, "asset owns the reference", func() bool { return h.session.Stats().ReferenceOwner == "asset" })
	if got := h.counter(t, "duplex.reference.frames", "owner", "asset"); got == 0 {
		t.Error("no asset reference frames counted")
	}
	if got := h.session.Stats().AssetPath; got != path {
		t.Errorf("AssetPath = %q, want %q", got, path)
	}

	if err := h.session.UnloadAsset(); err != nil {
		t.Fatal(err)
	}
	if got := h.session.Stats().ReferenceOwner; got != "render" {
		t.Errorf("ReferenceOwner after unload = %q, want render", got)
	}

	// The asset survives Stop only when still loaded.
	_ = h.session.Stop()
	h.backend.Capture = &audiomock.CaptureDevice{Interval: 10 * time.Millisecond}
	h.start(t)
	if got := h.session.Stats().AssetPath; got != "" {
		t.Errorf("AssetPath after unload and restart = %q", got)
	}
}

func TestSession_AssetDecodeErrorLeavesSessionRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start(t)

	bad := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(bad, []byte("definitely not RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := h.session.LoadAsset(context.Background(), bad)
	if !errors.Is(err, decode.ErrDecode) {
		t.Fatalf("LoadAsset: err = %v, want ErrDecode", err)
	}
	if !h.session.Running() {
		t.Fatal("decode error stopped the session")
	}
	if got := h.session.Stats().AssetPath; got != "" {
		t.Errorf("AssetPath = %q after failed load", got)
	}
}

func TestSession_AssetTooShortForSampleRateIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	good := writeRawAsset(t, 1000, 320)
	if err := h.session.LoadAsset(context.Background(), good); err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	h.start(t)

	// Two samples at 48 kHz resample to nothing at 16 kHz.
	click := filepath.Join(t.TempDir(), "click.wav")
	f, err := os.Create(click)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 48000, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           []int{1000, -1000},
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	_ = f.Close()

	if err := h.session.LoadAsset(context.Background(), click); !errors.Is(err, decode.ErrDecode) {
		t.Fatalf("LoadAsset: err = %v, want ErrDecode", err)
	}
	if got := h.session.Stats().AssetPath; got != good {
		t.Errorf("AssetPath = %q, want the previous asset %q", got, good)
	}
	waitFor(t, "render frames after the rejected asset", func() bool {
		return h.session.Stats().Sync.RenderFrames >= 10
	})
	if !h.session.Running() {
		t.Fatalf("session stopped: %v", h.session.Err())
	}
}

func TestSession_RestartResetsCounters(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start(t)
	waitFor(t, "render frames", func() bool { return h.session.Stats().Sync.RenderFrames >= 20 })
	_ = h.session.Stop()

	h.backend.Capture = &audiomock.CaptureDevice{Interval: 10 * time.Millisecond}
	h.start(t)
	if got := h.session.Stats().Sync.RenderFrames; got >= 20 {
		t.Errorf("RenderFrames right after restart = %d, want a fresh count", got)
	}
}

func TestSession_ConsumerDropsCounted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig(), engine.WithFrameBuffer(1))
	h.mic.Interval = time.Millisecond
	h.start(t)

	waitFor(t, "consumer drops", func() bool { return h.session.Stats().ConsumerDrops >= 3 })
	if got := h.counter(t, "duplex.consumer.drops", "", ""); got < 3 {
		t.Errorf("consumer drop metric = %d, want at least 3", got)
	}
}

func TestSession_DelegatedVAD(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.VAD.Mode = engine.VADDelegated
	cfg.VAD.FrameMs = 20

	h := newHarness(t, cfg)
	if err := h.session.Start(context.Background()); !errors.Is(err, engine.ErrInvalidConfig) {
		t.Fatalf("Start without a vad engine: err = %v, want ErrInvalidConfig", err)
	}

	eng := &vadmock.Engine{Session: &vadmock.Session{}}
	h = newHarness(t, cfg, engine.WithVADEngine(eng))
	h.start(t)
	if len(eng.NewSessionCalls) != 1 {
		t.Fatalf("NewSession calls = %d, want 1", len(eng.NewSessionCalls))
	}
	if got := eng.NewSessionCalls[0].Cfg; got.SampleRate != 16000 || got.FrameSizeMs != 20 {
		t.Errorf("vad config = %+v", got)
	}
}

func TestSession_Release(t *testing.T) {
	t.Parallel()
	h := newHarness(t, testConfig())
	h.start(t)

	if err := h.session.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.session.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if err := h.session.Stop(); err != nil {
		t.Fatalf("Stop after Release: %v", err)
	}
	if err := h.session.Start(context.Background()); !errors.Is(err, engine.ErrReleased) {
		t.Errorf("Start after Release: err = %v, want ErrReleased", err)
	}
	if err := h.session.SetCaptureEnabled(false); !errors.Is(err, engine.ErrReleased) {
		t.Errorf("SetCaptureEnabled after Release: err = %v, want ErrReleased", err)
	}
	if err := h.session.LoadAsset(context.Background(), "x.pcm"); !errors.Is(err, engine.ErrReleased) {
		t.Errorf("LoadAsset after Release: err = %v, want ErrReleased", err)
	}
	if h.mic.CallCountClose != 1 {
		t.Errorf("capture closes = %d, want 1", h.mic.CallCountClose)
	}
	if got := h.session.Stats().State; got != "released" {
		t.Errorf("State = %q, want released", got)
	}
}
