// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service and turns one complete WAV
// recording into a [Transcript]. The voice pipeline only consumes the
// transcript text; confidence and language are carried for logging.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Config carries recognition hints for a single Transcribe call.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language.
	Language string

	// Keywords lists vocabulary hints (robot names, command words) that should
	// be favoured by the recogniser. Providers without hint support ignore it.
	Keywords []string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in wav, a complete RIFF/WAVE byte
	// stream, and returns the final transcript.
	//
	// Returns an error if recognition fails or ctx is cancelled. Silence is
	// not an error: it yields a Transcript with empty Text.
	Transcribe(ctx context.Context, wav []byte, cfg Config) (Transcript, error)
}
