package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded carry new values; any other
// change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	HangoverChanged bool
	NewHangover     time.Duration

	DelayHintChanged bool
	NewDelayHint     time.Duration

	// AssetChanged is set when asset.path changed. An empty NewAssetPath
	// unloads the asset.
	AssetChanged bool
	NewAssetPath string

	// RestartRequired names the sections whose changes only apply after a
	// restart.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.HangoverChanged && !d.DelayHintChanged && !d.AssetChanged &&
		len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oe, ne := old.ToEngineConfig(), new.ToEngineConfig()
	if oe.VAD.Hangover != ne.VAD.Hangover {
		d.HangoverChanged = true
		d.NewHangover = ne.VAD.Hangover
	}
	if oe.Sync.PlaybackDelayHint != ne.Sync.PlaybackDelayHint {
		d.DelayHintChanged = true
		d.NewDelayHint = ne.Sync.PlaybackDelayHint
	}

	if old.Asset.Path != new.Asset.Path {
		d.AssetChanged = true
		d.NewAssetPath = new.Asset.Path
	}

	// Compare everything else with the hot-reloadable fields masked out.
	oe.VAD.Hangover, ne.VAD.Hangover = 0, 0
	oe.Sync.PlaybackDelayHint, ne.Sync.PlaybackDelayHint = 0, 0
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.BackendName() != new.BackendName() || old.Audio.OutputBuffer != new.Audio.OutputBuffer ||
		oe.SampleRate != ne.SampleRate || oe.FrameMs != ne.FrameMs || oe.RenderChannels != ne.RenderChannels ||
		oe.QueueCapacity != ne.QueueCapacity || oe.DequeueTimeout != ne.DequeueTimeout {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if oe.EchoStrength != ne.EchoStrength || oe.NoiseSuppression != ne.NoiseSuppression ||
		oe.Gain != ne.Gain || oe.BypassCooldown != ne.BypassCooldown {
		d.RestartRequired = append(d.RestartRequired, "processing")
	}
	if oe.Sync != ne.Sync {
		d.RestartRequired = append(d.RestartRequired, "sync")
	}
	if oe.VAD != ne.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if old.Record != new.Record {
		d.RestartRequired = append(d.RestartRequired, "record")
	}
	if oe.JoinTimeout != ne.JoinTimeout || old.GracePeriod() != new.GracePeriod() {
		d.RestartRequired = append(d.RestartRequired, "shutdown")
	}
	return d
}
