package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvOverrides maps environment variables to the config keys they replace.
// Set variables win over the YAML file; empty values are ignored.
var EnvOverrides = []struct {
	Name string
	Key  string
}{
	{"RIFT_LISTEN_ADDR", "server.listen_addr"},
	{"RIFT_LOG_LEVEL", "server.log_level"},
	{"RIFT_RULES_SOURCE", "rules.source"},
	{"RIFT_RULES_TTL", "rules.ttl"},
	{"RIFT_FX_DEFAULT_PRESET", "fx.default_preset"},
	{"RIFT_VOICE_ID", "voice.voice_id"},
}

// ApplyEnv writes the [EnvOverrides] found through lookup into cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, o := range EnvOverrides {
		v, ok := lookup(o.Name)
		if !ok || v == "" {
			continue
		}
		switch o.Key {
		case "server.listen_addr":
			cfg.Server.ListenAddr = v
		case "server.log_level":
			cfg.Server.LogLevel = LogLevel(v)
		case "rules.source":
			cfg.Rules.Source = v
		case "rules.ttl":
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", o.Name, err)
			}
			cfg.Rules.TTL = d
		case "fx.default_preset":
			cfg.FX.DefaultPreset = v
		case "voice.voice_id":
			cfg.Voice.VoiceID = v
		}
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
