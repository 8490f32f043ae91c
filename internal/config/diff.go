package config

// ConfigDiff describes what changed between two configs.
// Hot-applicable changes get their own fields; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultPresetChanged bool
	NewDefaultPreset     string

	VoiceChanged bool
	NewVoice     VoiceConfig

	// RestartRequired names changed settings that only take effect on
	// restart, in the YAML dotted form (e.g. "rules.source").
	RestartRequired []string
}

// Changed reports whether d contains any difference.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DefaultPresetChanged || d.VoiceChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.FX.DefaultPreset != new.FX.DefaultPreset {
		d.DefaultPresetChanged = true
		d.NewDefaultPreset = new.FX.DefaultPreset
	}
	if !voiceEqual(old.Voice, new.Voice) {
		d.VoiceChanged = true
		d.NewVoice = new.Voice
	}

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.service_name", old.Server.ServiceName != new.Server.ServiceName)
	restart("rules.source", old.Rules.Source != new.Rules.Source)
	restart("rules.ttl", old.Rules.TTL != new.Rules.TTL)
	restart("rules.fetch_timeout", old.Rules.FetchTimeout != new.Rules.FetchTimeout)
	restart("rules.breaker", old.Rules.Breaker != new.Rules.Breaker)

	return d
}

func voiceEqual(a, b VoiceConfig) bool {
	if a.VoiceID != b.VoiceID || a.Language != b.Language || a.Speed != b.Speed {
		return false
	}
	if len(a.Keywords) != len(b.Keywords) {
		return false
	}
	for i := range a.Keywords {
		if a.Keywords[i] != b.Keywords[i] {
			return false
		}
	}
	return true
}
