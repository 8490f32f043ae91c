package stt

import "time"

// Transcript represents a final speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the detected or requested language tag, if known.
	Language string

	// Duration is the length of the recognised audio.
	Duration time.Duration
}
