package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/duplex/pkg/audio"
)

// renderLoop runs one paced tick per frame until the run stops. Every tick
// writes exactly one frame (queued audio or silence) and counts exactly one
// render frame, so the reference timeline never stalls.
func (s *Session) renderLoop(rs *run) {
	ctx := context.Background()
	p := newPacer(audio.FrameDuration)
	silence := audio.Silence(rs.cfg.FrameSamples())

	for rs.running.Load() {
		if !p.wait(rs.done) {
			return
		}

		f, ok := rs.queue.Dequeue(rs.cfg.DequeueTimeout)
		source := "queue"
		if !ok {
			f = silence
			source = "silence"
		}

		if rs.refOwner.Load() == ownerRender {
			if err := rs.proc.PushReference(f); err != nil {
				slog.Debug("engine: push render reference", "session_id", s.id, "err", err)
			} else {
				s.metrics.RecordReference(ctx, "render")
			}
		}
		rs.gate.RecordRender(s.now())
		s.metrics.RecordRender(ctx, source)

		dropped, err := writeFull(rs.render, audio.Interleave(f, rs.cfg.RenderChannels))
		if err != nil {
			s.fail(rs, "render", fmt.Errorf("%w: render write: %w", ErrDevice, err))
			return
		}
		if dropped > 0 {
			n := rs.renderOverruns.Add(1)
			s.metrics.RenderOverruns.Add(ctx, 1)
			if n%100 == 1 {
				slog.Warn("engine: render device buffer full, audio dropped",
					"session_id", s.id,
					"dropped_samples", dropped,
					"overruns", n,
				)
			}
		}
	}
}

// writeFull writes all of samples, looping on short writes. A write that
// accepts nothing means the device buffer is full: the rest is dropped and
// its length returned.
func writeFull(dev audio.RenderDevice, samples []int16) (dropped int, err error) {
	for len(samples) > 0 {
		n, err := dev.Write(samples)
		if err != nil {
			return 0, err
		}
		if n <= 0 {
			return len(samples), nil
		}
		samples = samples[n:]
	}
	return 0, nil
}
