package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/duplex/internal/observe"
	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/audio/decode"
)

// loadedAsset is a decoded asset already sliced into frames.
type loadedAsset struct {
	path   string
	frames []audio.Frame
}

// LoadAsset decodes the asset at path and plays it through the render path
// in a loop, paused while the local user speaks. It replaces any asset loaded
// before. Decode failures wrap [decode.ErrDecode] and leave the session
// untouched. When the session is not running the asset starts playing on
// the next Start.
func (s *Session) LoadAsset(ctx context.Context, path string) error {
	ctx, span := observe.StartSessionSpan(ctx, s.id, "LoadAsset",
		attribute.String("asset.path", path))
	defer span.End()

	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrReleased
	}
	rate := s.cfg.SampleRate
	s.mu.Unlock()

	a, err := decode.Load(path, rate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return fmt.Errorf("engine: load asset: %w", err)
	}
	loaded := &loadedAsset{
		path:   path,
		frames: audio.SliceFrames(a.Samples, audio.FrameSize(rate)),
	}
	if len(loaded.frames) == 0 {
		err := fmt.Errorf("engine: load asset %s: %w: no frames", path, decode.ErrDecode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty asset")
		return err
	}

	s.haltFeeder()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateReleased {
		return ErrReleased
	}
	s.asset = loaded
	if rs := s.run; rs != nil && rs.running.Load() && rs.feeder == nil {
		rs.feeder = s.startFeeder(rs, loaded)
	}
	observe.SessionLogger(ctx, s.id).Info("engine: asset loaded",
		"path", path,
		"source_format", a.SourceFormat,
		"frames", len(loaded.frames),
	)
	return nil
}

// UnloadAsset stops asset playback and hands the reference feed back to the
// render path.
func (s *Session) UnloadAsset() error {
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrReleased
	}
	s.asset = nil
	s.mu.Unlock()

	s.haltFeeder()
	return nil
}

// haltFeeder stops the current run's feeder, if any, and waits for it.
func (s *Session) haltFeeder() {
	s.mu.Lock()
	rs := s.run
	var f *worker
	if rs != nil {
		f = rs.feeder
		rs.feeder = nil
	}
	s.mu.Unlock()

	if f == nil {
		return
	}
	close(f.stop)
	join(f, rs.cfg.JoinTimeout)
	rs.refOwner.Store(ownerRender)
}

// startFeeder launches the feeder goroutine. Must be called with s.mu held.
func (s *Session) startFeeder(rs *run, a *loadedAsset) *worker {
	w := &worker{name: "asset", stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		s.feedLoop(rs, a, w.stop)
	}()
	return w
}

// feedLoop enqueues one asset frame per tick and pushes it as the echo
// reference. While the user speaks it hands the reference feed back to the
// render path and holds its position; a full queue also holds the position.
// At the end of the asset it starts over.
func (s *Session) feedLoop(rs *run, a *loadedAsset, stop <-chan struct{}) {
	ctx := context.Background()
	defer rs.refOwner.Store(ownerRender)
	if len(a.frames) == 0 {
		return
	}

	p := newPacer(audio.FrameDuration)
	pos := 0
	for p.wait(stop) {
		select {
		case <-rs.done:
			return
		default:
		}

		if rs.assetPaused.Load() {
			rs.refOwner.Store(ownerRender)
			continue
		}
		f := a.frames[pos]
		if !rs.queue.Enqueue(f) {
			continue
		}
		rs.refOwner.Store(ownerAsset)
		if err := rs.proc.PushReference(f); err != nil {
			slog.Debug("engine: push asset reference", "session_id", s.id, "err", err)
		} else {
			s.metrics.RecordReference(ctx, "asset")
		}

		pos++
		if pos == len(a.frames) {
			pos = 0
			slog.Debug("engine: asset looped", "session_id", s.id, "path", a.path)
		}
	}
}
