// Package audio holds the sample buffer type and the RIFF/WAVE codec used by the
// voice-response pipeline.
//
// Audio enters the core as a WAV byte stream (normally produced by a TTS
// collaborator), is decoded into a [PCMBuffer], transformed in place by the
// filters in package dsp, and serialised back to a WAV byte stream with
// [Encode]. Only 16-bit integer PCM, mono, is accepted; everything else is
// reported as [ErrUnsupportedLayout] so callers can pass the original bytes
// through untouched.
package audio

import "time"

// PCMBuffer is a decoded mono audio signal. Samples are normalised to
// [-1.0, 1.0]; filter stages may push them outside that range temporarily and
// [Encode] clamps on the way out.
//
// A PCMBuffer is a plain value owned by the call chain that decoded it. It is
// not safe for concurrent mutation.
type PCMBuffer struct {
	// SampleRate in Hz, copied verbatim from the fmt chunk.
	SampleRate uint32

	// Samples in declaration order.
	Samples []float32
}

// Len returns the number of samples in b.
func (b PCMBuffer) Len() int { return len(b.Samples) }

// Duration returns the playback length of b. A zero sample rate yields zero.
func (b PCMBuffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(len(b.Samples)) * int64(time.Second) / int64(b.SampleRate))
}
