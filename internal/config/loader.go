package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Problems
// that do not prevent startup are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Audio.Backend != "" && !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: miniaudio, oto", cfg.Audio.Backend))
	}
	if cfg.Audio.OutputBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.output_buffer %s must not be negative", cfg.Audio.OutputBuffer))
	}
	if cfg.Processing.EchoStrength != "" {
		if _, err := processor.ParseStrength(cfg.Processing.EchoStrength); err != nil {
			errs = append(errs, fmt.Errorf("processing.echo_strength %q is invalid; valid values: light, full", cfg.Processing.EchoStrength))
		}
	}
	if cfg.Shutdown.Grace < 0 {
		errs = append(errs, fmt.Errorf("shutdown.grace %s must not be negative", cfg.Shutdown.Grace))
	}

	if err := cfg.ToEngineConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Asset.Path != "" {
		if _, err := os.Stat(cfg.Asset.Path); err != nil {
			slog.Warn("asset.path is not readable; the session will run without an asset", "path", cfg.Asset.Path, "err", err)
		}
	}
	if cfg.Record.Path != "" {
		if _, err := os.Stat(filepath.Dir(cfg.Record.Path)); err != nil {
			slog.Warn("record.path directory does not exist; recording will fail", "path", cfg.Record.Path)
		}
	}

	return errors.Join(errs...)
}
