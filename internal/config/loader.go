package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/originalmmd/rift-robotics-ai/internal/intent"
	"github.com/originalmmd/rift-robotics-ai/pkg/audio/fx"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. Environment overrides (see [EnvOverrides])
// take precedence over the file. A relative rules.source path is resolved
// against the directory containing path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.Rules.Source = resolveSource(cfg.Rules.Source, filepath.Dir(path))
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates it and applies
// defaults. Useful in tests where configs are constructed from string
// literals.
// The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	return decode(r, nil)
}

func decode(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		if err := ApplyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Rules
	if cfg.Rules.Source == "" {
		errs = append(errs, errors.New("rules.source is required"))
	} else if _, err := intent.NewSource(cfg.Rules.Source, nil); err != nil {
		errs = append(errs, fmt.Errorf("rules.source: %w", err))
	}
	if cfg.Rules.TTL < 0 {
		errs = append(errs, fmt.Errorf("rules.ttl %s must be positive", cfg.Rules.TTL))
	}
	if cfg.Rules.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("rules.fetch_timeout %s must be positive", cfg.Rules.FetchTimeout))
	}
	if cfg.Rules.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("rules.breaker.max_failures %d must not be negative", cfg.Rules.Breaker.MaxFailures))
	}
	if cfg.Rules.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("rules.breaker.reset_timeout %s must be positive", cfg.Rules.Breaker.ResetTimeout))
	}

	// FX: unknown presets are legal (they pass audio through) but usually a typo.
	if p := cfg.FX.DefaultPreset; p != "" && !fx.Known(p) {
		slog.Warn("config: unknown fx.default_preset; replies will not be processed",
			"preset", p,
			"known", fx.Names(),
		)
	}

	// Voice
	if cfg.Voice.Speed != 0 && (cfg.Voice.Speed < 0.5 || cfg.Voice.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed %.2f is out of range [0.5, 2.0]", cfg.Voice.Speed))
	}

	return errors.Join(errs...)
}

// resolveSource joins a relative file path onto dir. URLs and absolute paths
// are returned unchanged.
func resolveSource(source, dir string) string {
	src, err := intent.NewSource(source, nil)
	if err != nil {
		return source
	}
	fs, ok := src.(intent.FileSource)
	if !ok || fs.Path != source || filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(dir, source)
}
