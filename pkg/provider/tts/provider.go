// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and returns one complete
// WAV byte stream per reply. The voice pipeline decodes that stream, runs the
// turn's FX preset over it and re-encodes it, so providers should emit 16-bit
// PCM mono where they can; any other layout is passed through unprocessed.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns a complete
	// RIFF/WAVE byte stream.
	//
	// Returns an error if synthesis fails or ctx is cancelled. An empty voice
	// ID selects the provider's default voice.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
