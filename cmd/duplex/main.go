// Command duplex runs a full-duplex audio session on the local sound devices:
// it plays queued audio and an optional looping asset, cleans the microphone
// signal against what was played and reports voice activity.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/duplex/internal/config"
	"github.com/MrWong99/duplex/internal/engine"
	"github.com/MrWong99/duplex/internal/health"
	"github.com/MrWong99/duplex/internal/observe"
	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/audio/miniaudio"
	"github.com/MrWong99/duplex/pkg/audio/oto"
	"github.com/MrWong99/duplex/pkg/audio/wavrec"
	"github.com/MrWong99/duplex/pkg/provider/vad/webrtc"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// errSessionEnded is returned by the supervisor when the session stops
// without a device error.
var errSessionEnded = errors.New("session ended")

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "duplex.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "duplex: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "duplex: %v\n", err)
		}
		return 1
	}

	var level slog.LevelVar
	level.Set(levelFor(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("duplex starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.BackendName(),
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "duplex",
		ServiceVersion: version,
		RuntimeMetrics: true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	backend, err := openBackend(cfg)
	if err != nil {
		slog.Error("failed to open audio backend", "err", err)
		sctx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod())
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
		return 1
	}

	sess := engine.New(cfg.ToEngineConfig(), backend, engine.WithVADEngine(webrtc.New()))
	if cfg.Asset.Path != "" {
		if err := sess.LoadAsset(ctx, cfg.Asset.Path); err != nil {
			slog.Warn("asset not loaded, continuing without it", "path", cfg.Asset.Path, "err", err)
		}
	}

	var rec *wavrec.Writer
	if cfg.Record.Path != "" {
		if rec, err = wavrec.Create(cfg.Record.Path, cfg.ToEngineConfig().SampleRate); err != nil {
			slog.Error("failed to create recording", "err", err)
			shutdown(cfg.GracePeriod(), sess, nil, backend, tel)
			return 1
		}
	}

	if err := sess.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		shutdown(cfg.GracePeriod(), sess, rec, backend, tel)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(ctx, &level, sess, config.Diff(old, new))
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		shutdown(cfg.GracePeriod(), sess, rec, backend, tel)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return consumeFrames(gctx, sess, rec) })
	g.Go(func() error { return logVoiceEvents(gctx, sess) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sess.Done():
			if err := sess.Err(); err != nil {
				return fmt.Errorf("session stopped: %w", err)
			}
			return errSessionEnded
		}
	})

	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg.Server.ListenAddr, sess, tel)
		ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			slog.Error("failed to listen", "addr", cfg.Server.ListenAddr, "err", err)
			stop()
			_ = g.Wait()
			shutdown(cfg.GracePeriod(), sess, rec, backend, tel)
			return 1
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod())
			defer cancel()
			return srv.Shutdown(sctx)
		})
		slog.Info("serving health and metrics", "addr", ln.Addr().String())
	}

	slog.Info("session running, press Ctrl+C to stop", "session_id", sess.ID())

	code := 0
	if err := g.Wait(); err != nil {
		slog.Error("stopping after failure", "err", err)
		code = 1
	} else {
		slog.Info("shutdown signal received, stopping")
	}

	if !shutdown(cfg.GracePeriod(), sess, rec, backend, tel) {
		code = 1
	}
	if code == 0 {
		slog.Info("goodbye")
	}
	return code
}

// openBackend builds the configured audio backend. The oto backend only
// renders, so capture always goes through miniaudio.
func openBackend(cfg *config.Config) (audio.Backend, error) {
	if cfg.BackendName() == config.BackendOto {
		ma, err := miniaudio.New()
		if err != nil {
			return nil, err
		}
		return audio.Combine(ma, oto.New(cfg.Audio.OutputBuffer)), nil
	}
	var opts []miniaudio.Option
	if cfg.Audio.OutputBuffer > 0 {
		opts = append(opts, miniaudio.WithRenderBuffer(cfg.Audio.OutputBuffer))
	}
	ma, err := miniaudio.New(opts...)
	if err != nil {
		return nil, err
	}
	return ma, nil
}

// newServer routes the control-plane endpoints through the observability
// middleware.
func newServer(addr string, sess *engine.Session, tel *observe.Telemetry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", tel.MetricsHandler())
	health.New(health.SessionChecker("session", sess)).
		WithStatus(func() any { return sess.Stats() }).
		Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// consumeFrames drains processed capture frames, writing them to rec when
// recording is enabled. A write failure stops the recording, not the
// session.
func consumeFrames(ctx context.Context, sess *engine.Session, rec *wavrec.Writer) error {
	frames := sess.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-frames:
			if rec == nil {
				continue
			}
			if err := rec.WriteFrame(f); err != nil {
				slog.Error("recording stopped", "err", err)
				rec = nil
			}
		}
	}
}

// logVoiceEvents logs every voice-activity transition.
func logVoiceEvents(ctx context.Context, sess *engine.Session) error {
	events := sess.VoiceEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Active {
				slog.Info("voice activity started", "detector", ev.DetectorMode, "frame_ms", ev.FrameMs)
			} else {
				slog.Info("voice activity ended", "detector", ev.DetectorMode, "hangover_ms", ev.HangoverMs)
			}
		}
	}
}

// shutdown stops and releases the session, then flushes the recording, the
// devices and telemetry. It reports false when the grace period ran out or
// a step failed.
func shutdown(grace time.Duration, sess *engine.Session, rec *wavrec.Writer, backend audio.Backend, tel *observe.Telemetry) bool {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		ok := true
		if err := sess.Release(); err != nil {
			slog.Error("session release error", "err", err)
			ok = false
		}
		if rec != nil {
			if err := rec.Close(); err != nil {
				slog.Error("recording close error", "err", err)
				ok = false
			} else {
				slog.Info("recording saved", "samples", rec.Samples())
			}
		}
		if err := backend.Close(); err != nil {
			slog.Warn("audio backend close error", "err", err)
		}
		if err := tel.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
		done <- ok
	}()

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		slog.Error("shutdown did not finish within the grace period", "grace", grace)
		return false
	}
}

func levelFor(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
