package intent

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/originalmmd/rift-robotics-ai/pkg/audio/fx"
)

// ErrNoReplies is returned by [PickReply] for a rule without reply variants.
// Validated rule sets never produce it.
var ErrNoReplies = errors.New("intent: rule has no reply variants")

// Picker chooses an index in [0, n). Implementations must be safe for
// concurrent use and may assume n > 0.
type Picker interface {
	IntN(n int) int
}

// RandomPicker draws from the process-wide math/rand/v2 source.
type RandomPicker struct{}

// IntN implements [Picker].
func (RandomPicker) IntN(n int) int { return rand.IntN(n) }

// SeededPicker is a deterministic [Picker]: two pickers built from the same
// seed yield the same sequence.
type SeededPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededPicker returns a [SeededPicker] seeded with seed.
func NewSeededPicker(seed uint64) *SeededPicker {
	return &SeededPicker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// IntN implements [Picker].
func (p *SeededPicker) IntN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

var (
	_ Picker = RandomPicker{}
	_ Picker = (*SeededPicker)(nil)
)

// PickReply returns one of r.ReplyVariants chosen by p. A nil p uses
// [RandomPicker].
func PickReply(p Picker, r Rule) (string, error) {
	if len(r.ReplyVariants) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoReplies, r.ID)
	}
	if p == nil {
		p = RandomPicker{}
	}
	return r.ReplyVariants[p.IntN(len(r.ReplyVariants))], nil
}

// ResolvePreset returns the FX preset for a reply produced by r: the rule's
// own voice_fx, else defaultPreset, else [fx.Archive]. Blank values count as
// unset.
func ResolvePreset(r Rule, defaultPreset string) string {
	if p := strings.TrimSpace(r.VoiceFX); p != "" {
		return p
	}
	if p := strings.TrimSpace(defaultPreset); p != "" {
		return p
	}
	return fx.Archive
}
