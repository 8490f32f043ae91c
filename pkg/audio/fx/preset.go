// Package fx maps named voice-effect presets to fixed DSP chains and applies
// them to WAV byte streams.
//
// Only [Archive] ships by default. Preset names are trimmed and lowercased
// before lookup, so "Archive " and "archive" select the same chain. Unknown
// names are a no-op: the input bytes are returned as-is without decoding.
//
// All functions are safe for concurrent use.
package fx

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/originalmmd/rift-robotics-ai/pkg/audio"
	"github.com/originalmmd/rift-robotics-ai/pkg/audio/dsp"
)

// Archive is the name of the built-in "old recording" tone preset:
// high-pass 500 Hz, then low-pass 3000 Hz, then gain −1 dB.
const Archive = "archive"

// Chain is an ordered sequence of in-place DSP stages.
type Chain []dsp.Stage

// Outcome reports what [Process] did with its input.
type Outcome string

const (
	// OutcomeApplied means the input was decoded, filtered and re-encoded.
	OutcomeApplied Outcome = "applied"

	// OutcomePassthrough means the preset name is unknown and the input was
	// returned without decoding.
	OutcomePassthrough Outcome = "passthrough"

	// OutcomeUnsupported means the preset is known but the input could not be
	// decoded, so it was returned unchanged.
	OutcomeUnsupported Outcome = "unsupported"
)

// Result is the return value of [Process].
type Result struct {
	// Audio is the output WAV stream. For any outcome other than
	// [OutcomeApplied] it is the caller's input slice.
	Audio []byte

	// Preset is the normalised preset name that was looked up.
	Preset string

	// Outcome describes which path was taken.
	Outcome Outcome
}

var (
	mu      sync.RWMutex
	presets = map[string]Chain{
		Archive: {
			dsp.HighPassStage(500),
			dsp.LowPassStage(3000),
			dsp.GainStage(-1.0),
		},
	}
)

// Normalize returns the registry key for name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces the preset stored under Normalize(name).
// An empty name or an empty chain is ignored.
func Register(name string, chain Chain) {
	key := Normalize(name)
	if key == "" || len(chain) == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	presets[key] = slices.Clone(chain)
}

// Known reports whether name resolves to a registered preset.
func Known(name string) bool {
	_, ok := lookup(Normalize(name))
	return ok
}

// Names returns the registered preset names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Apply runs preset over wav and returns the resulting bytes. See [Process].
func Apply(wav []byte, preset string) []byte {
	return Process(wav, preset).Audio
}

// Process runs the chain registered under preset over wav.
//
// An unknown preset returns wav unchanged without decoding it. A known preset
// over input that is not PCM16 mono also returns wav unchanged; the decode
// failure is logged at debug level and reported as [OutcomeUnsupported].
func Process(wav []byte, preset string) Result {
	key := Normalize(preset)
	chain, ok := lookup(key)
	if !ok {
		return Result{Audio: wav, Preset: key, Outcome: OutcomePassthrough}
	}

	buf, err := audio.Decode(wav)
	if err != nil {
		slog.Debug("fx: input not decodable, passing through",
			"preset", key,
			"bytes", len(wav),
			"err", err,
		)
		return Result{Audio: wav, Preset: key, Outcome: OutcomeUnsupported}
	}

	for _, st := range chain {
		st.Apply(buf.Samples, buf.SampleRate)
	}
	return Result{Audio: audio.Encode(buf), Preset: key, Outcome: OutcomeApplied}
}

func lookup(key string) (Chain, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := presets[key]
	return c, ok
}
