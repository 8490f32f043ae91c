// Package voice turns one operator utterance into one spoken reply.
//
// A turn runs: transcript → rule-set lookup → intent match → reply pick →
// TTS synthesis → FX preset. [Pipeline.Prepare] stops before synthesis,
// [Pipeline.Respond] runs the full chain from text and [Pipeline.Listen]
// starts from recorded WAV audio by transcribing it first.
//
// Rule-set load failures, synthesis and transcription failures and rules
// without replies are returned as errors. Soft failures (a regex that does
// not compile, audio the FX engine cannot decode, an unknown preset) are
// logged and counted but never fail the turn.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/originalmmd/rift-robotics-ai/internal/intent"
	"github.com/originalmmd/rift-robotics-ai/internal/observe"
	"github.com/originalmmd/rift-robotics-ai/pkg/audio/fx"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/stt"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/tts"
)

var (
	// ErrNoTranscriber is returned by [Pipeline.Listen] when the pipeline was
	// built without [WithSTT].
	ErrNoTranscriber = errors.New("voice: no speech-to-text provider configured")

	// ErrNoSynthesizer is returned by [Pipeline.Respond] and [Pipeline.Listen]
	// when the pipeline was built without a TTS provider.
	ErrNoSynthesizer = errors.New("voice: no text-to-speech provider configured")
)

// RuleSets supplies the current rule set. [*intent.Cache] is the production
// implementation.
type RuleSets interface {
	Get(ctx context.Context) (*intent.RuleSet, error)
}

var _ RuleSets = (*intent.Cache)(nil)

// Response is the outcome of one turn.
type Response struct {
	// ID is a time-ordered UUID (v7) identifying the turn.
	ID string `json:"id"`

	// Transcript is the text the turn was matched against.
	Transcript string `json:"transcript"`

	// RuleID is the matched rule, or [intent.FallbackID].
	RuleID string `json:"rule_id"`

	// Fallback reports that no rule matched.
	Fallback bool `json:"fallback"`

	// Reply is the chosen reply text.
	Reply string `json:"reply"`

	// Preset is the FX preset resolved for the reply.
	Preset string `json:"preset"`

	// Actions is the matched rule's opaque payload.
	Actions intent.Payload `json:"actions,omitempty"`

	// Skipped lists rules passed over while matching.
	Skipped []intent.Skip `json:"skipped,omitempty"`

	// FX reports what the preset did to the audio. Empty when no audio was
	// produced.
	FX fx.Outcome `json:"fx,omitempty"`

	// Audio is the processed WAV reply. It is base64 in JSON.
	Audio []byte `json:"audio,omitempty"`
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithSTT enables [Pipeline.Listen] with the given transcriber and hints.
func WithSTT(p stt.Provider, cfg stt.Config) Option {
	return func(pl *Pipeline) {
		pl.stt = p
		pl.sttCfg = cfg
	}
}

// WithMatcher replaces the default [intent.Matcher].
func WithMatcher(m *intent.Matcher) Option {
	return func(pl *Pipeline) { pl.matcher = m }
}

// WithPicker sets the reply picker. The default draws at random.
func WithPicker(p intent.Picker) Option {
	return func(pl *Pipeline) { pl.picker = p }
}

// WithDefaultPreset sets the preset used for rules that name none. Empty
// means [fx.Archive].
func WithDefaultPreset(name string) Option {
	return func(pl *Pipeline) { pl.defaultPreset = name }
}

// WithMetrics records pipeline metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// Pipeline runs voice turns against a shared rule set. It is safe for
// concurrent use; the voice profile and default preset can be swapped at
// runtime with [Pipeline.SetVoice] and [Pipeline.SetDefaultPreset].
type Pipeline struct {
	rules   RuleSets
	matcher *intent.Matcher
	picker  intent.Picker
	tts     tts.Provider
	stt     stt.Provider
	sttCfg  stt.Config
	metrics *observe.Metrics

	mu            sync.RWMutex
	voice         tts.VoiceProfile
	defaultPreset string
}

// New constructs a Pipeline that matches against rules and speaks through
// synth with the given voice. A nil synth limits the pipeline to
// [Pipeline.Prepare].
func New(rules RuleSets, synth tts.Provider, voice tts.VoiceProfile, opts ...Option) *Pipeline {
	p := &Pipeline{
		rules: rules,
		tts:   synth,
		voice: voice,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.matcher == nil {
		p.matcher = intent.NewMatcher(intent.WithMatcherMetrics(p.metrics))
	}
	return p
}

// SetVoice replaces the voice profile used by later turns.
func (p *Pipeline) SetVoice(v tts.VoiceProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice = v
}

// SetDefaultPreset replaces the default preset used by later turns.
func (p *Pipeline) SetDefaultPreset(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultPreset = name
}

func (p *Pipeline) settings() (tts.VoiceProfile, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voice, p.defaultPreset
}

// Prepare matches transcript and picks the reply and preset without
// producing audio.
func (p *Pipeline) Prepare(ctx context.Context, transcript string) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "voice.prepare")
	defer span.End()

	_, defaultPreset := p.settings()
	resp, err := p.prepare(ctx, transcript, defaultPreset)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	annotate(span, resp)
	return resp, nil
}

// Respond runs a full turn from transcript text: it prepares the reply,
// synthesises it and applies the resolved FX preset.
func (p *Pipeline) Respond(ctx context.Context, transcript string) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "voice.respond")
	defer span.End()

	resp, err := p.respond(ctx, transcript)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	annotate(span, resp)
	return resp, nil
}

// Listen transcribes wav and then runs [Pipeline.Respond] on the transcript.
// An empty transcript is matched like any other and normally selects the
// fallback.
func (p *Pipeline) Listen(ctx context.Context, wav []byte) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "voice.listen")
	defer span.End()

	if p.stt == nil {
		observe.FailSpan(span, ErrNoTranscriber)
		return nil, ErrNoTranscriber
	}

	start := time.Now()
	tr, err := p.stt.Transcribe(ctx, wav, p.sttCfg)
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt")
		err = fmt.Errorf("voice: transcribe: %w", err)
		observe.FailSpan(span, err)
		return nil, err
	}
	observe.Logger(ctx).Debug("voice: transcribed",
		"chars", len(tr.Text),
		"confidence", tr.Confidence,
		"language", tr.Language,
	)

	resp, err := p.respond(ctx, tr.Text)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	annotate(span, resp)
	return resp, nil
}

func (p *Pipeline) respond(ctx context.Context, transcript string) (*Response, error) {
	if p.tts == nil {
		return nil, ErrNoSynthesizer
	}
	voice, defaultPreset := p.settings()
	resp, err := p.prepare(ctx, transcript, defaultPreset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	wav, err := p.tts.Synthesize(ctx, resp.Reply, voice)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts")
		return nil, fmt.Errorf("voice: synthesize %q: %w", resp.RuleID, err)
	}

	start = time.Now()
	res := fx.Process(wav, resp.Preset)
	p.metrics.RecordFX(ctx, res.Preset, string(res.Outcome), time.Since(start).Seconds())
	if res.Outcome != fx.OutcomeApplied {
		observe.Logger(ctx).Debug("voice: reply audio not processed",
			"preset", res.Preset,
			"outcome", res.Outcome,
		)
	}

	resp.Audio = res.Audio
	resp.FX = res.Outcome
	return resp, nil
}

func (p *Pipeline) prepare(ctx context.Context, transcript, defaultPreset string) (*Response, error) {
	rs, err := p.rules.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("voice: load rules: %w", err)
	}

	m := p.matcher.Match(ctx, rs, transcript)
	reply, err := intent.PickReply(p.picker, m.Rule)
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}

	resp := &Response{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Transcript: transcript,
		RuleID:     m.Rule.ID,
		Fallback:   m.Fallback,
		Reply:      reply,
		Preset:     intent.ResolvePreset(m.Rule, defaultPreset),
		Actions:    m.Rule.Actions,
		Skipped:    m.Skipped,
	}
	observe.Logger(ctx).Debug("voice: turn prepared",
		"turn_id", resp.ID,
		"rule_id", resp.RuleID,
		"fallback", resp.Fallback,
		"preset", resp.Preset,
		"skipped", len(resp.Skipped),
	)
	return resp, nil
}

func annotate(span trace.Span, resp *Response) {
	span.SetAttributes(
		attribute.String("rift.turn_id", resp.ID),
		attribute.String("rift.rule_id", resp.RuleID),
		attribute.Bool("rift.fallback", resp.Fallback),
		attribute.String("rift.preset", resp.Preset),
	)
	if resp.FX != "" {
		span.SetAttributes(attribute.String("rift.fx", string(resp.FX)))
	}
}
