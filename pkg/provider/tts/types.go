package tts

// VoiceProfile describes the voice a reply is rendered with.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. Empty means default.
	ID string

	// Language is the BCP-47 language tag (e.g., "en-US"). Empty lets the
	// provider decide.
	Language string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default, 0 = unset).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}
