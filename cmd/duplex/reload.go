package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/duplex/internal/config"
)

// reloadTarget is the part of a session that can change while running.
type reloadTarget interface {
	SetHangover(d time.Duration) error
	SetPlaybackDelayHint(d time.Duration) error
	LoadAsset(ctx context.Context, path string) error
	UnloadAsset() error
}

// applyReload applies the hot-reloadable part of d and warns about the rest.
func applyReload(ctx context.Context, level *slog.LevelVar, t reloadTarget, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(levelFor(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.HangoverChanged {
		if err := t.SetHangover(d.NewHangover); err != nil {
			slog.Warn("hangover not applied", "err", err)
		} else {
			slog.Info("vad hangover changed", "hangover", d.NewHangover)
		}
	}
	if d.DelayHintChanged {
		if err := t.SetPlaybackDelayHint(d.NewDelayHint); err != nil {
			slog.Warn("playback delay hint not applied", "err", err)
		} else {
			slog.Info("playback delay hint changed", "hint", d.NewDelayHint)
		}
	}
	if d.AssetChanged {
		var err error
		if d.NewAssetPath == "" {
			err = t.UnloadAsset()
		} else {
			err = t.LoadAsset(ctx, d.NewAssetPath)
		}
		if err != nil {
			slog.Warn("asset change not applied", "path", d.NewAssetPath, "err", err)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}
