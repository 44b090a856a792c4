package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// errStopping ends a read that was interrupted by Stop.
var errStopping = errors.New("engine: stopping")

// captureLoop reads one full frame at a time until the run stops. The device
// is read even while capture is disabled so its buffer never overflows.
func (s *Session) captureLoop(rs *run) {
	ctx := context.Background()
	buf := make(audio.Frame, rs.cfg.FrameSamples())
	var lastSkip SkipReason

	for rs.running.Load() {
		if err := readFull(rs, buf); err != nil {
			if errors.Is(err, errStopping) || !rs.running.Load() {
				return
			}
			s.fail(rs, "capture", fmt.Errorf("%w: capture read: %w", ErrDevice, err))
			return
		}
		if !rs.running.Load() {
			return
		}
		if !s.captureEnabled.Load() {
			s.metrics.RecordCapture(ctx, "disabled")
			continue
		}

		out, skip := s.processCapture(ctx, rs, buf)
		if skip != lastSkip {
			if skip != ReasonOK {
				slog.Debug("engine: echo cancellation skipped", "session_id", s.id, "reason", skip)
			}
			lastSkip = skip
		}

		rs.vad.Observe(out, s.now())
		s.emit(ctx, rs, out)
	}
}

// readFull fills buf from the capture device, looping on partial reads.
func readFull(rs *run, buf []int16) error {
	for n := 0; n < len(buf); {
		if !rs.running.Load() {
			return errStopping
		}
		m, err := rs.capture.Read(buf[n:])
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

// processCapture runs one captured frame through the gate and the processor.
// It always returns a frame the caller owns: the processed frame, or a copy
// of in when cancellation was skipped, bypassed or failed.
func (s *Session) processCapture(ctx context.Context, rs *run, in audio.Frame) (audio.Frame, SkipReason) {
	d := rs.gate.Decide(s.now())
	if d.UpdateDelay {
		if err := rs.proc.SetEstimatedDelay(d.DelayMs); err != nil {
			slog.Debug("engine: set estimated delay", "session_id", s.id, "delay_ms", d.DelayMs, "err", err)
		}
	}
	if !d.Attempt {
		s.metrics.RecordGateSkip(ctx, string(d.Reason))
		s.metrics.RecordCapture(ctx, "passthrough")
		return in.Clone(), d.Reason
	}

	permit, err := rs.breaker.Allow()
	if err != nil {
		s.metrics.RecordCapture(ctx, "bypassed")
		return in.Clone(), ReasonOK
	}

	start := time.Now()
	out, err := rs.proc.Process(in)
	s.metrics.ProcessDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil && len(out) != len(in) {
		err = fmt.Errorf("processor returned %d samples, want %d", len(out), len(in))
	}
	permit.Done(err)

	if rs.gate.RecordResult(err) {
		s.escalate(ctx, rs)
	}
	if err != nil {
		s.metrics.ProcessorFailures.Add(ctx, 1)
		s.metrics.RecordCapture(ctx, "passthrough")
		return in.Clone(), ReasonOK
	}
	s.metrics.RecordCapture(ctx, "processed")
	return out, ReasonOK
}

func (s *Session) escalate(ctx context.Context, rs *run) {
	s.metrics.Escalations.Add(ctx, 1)
	if err := rs.proc.SetStrength(processor.StrengthFull); err != nil {
		slog.Warn("engine: escalate echo strength", "session_id", s.id, "err", err)
		return
	}
	slog.Warn("engine: repeated processor failures, echo strength escalated",
		"session_id", s.id,
		"strength", processor.StrengthFull,
		"after_failures", rs.cfg.Sync.EscalateAfter,
	)
}

// emit hands out to the consumer without ever blocking the capture loop.
func (s *Session) emit(ctx context.Context, rs *run, out audio.Frame) {
	select {
	case s.frames <- out:
	default:
		n := rs.consumerDrops.Add(1)
		s.metrics.ConsumerDrops.Add(ctx, 1)
		if n%100 == 1 {
			slog.Warn("engine: consumer too slow, dropping capture frames", "session_id", s.id, "dropped", n)
		}
	}
}
