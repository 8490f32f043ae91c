package voice_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/originalmmd/rift-robotics-ai/internal/intent"
	"github.com/originalmmd/rift-robotics-ai/internal/observe"
	"github.com/originalmmd/rift-robotics-ai/internal/voice"
	"github.com/originalmmd/rift-robotics-ai/pkg/audio"
	"github.com/originalmmd/rift-robotics-ai/pkg/audio/fx"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/stt"
	sttmock "github.com/originalmmd/rift-robotics-ai/pkg/provider/stt/mock"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/tts"
	ttsmock "github.com/originalmmd/rift-robotics-ai/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type staticRules struct {
	rs  *intent.RuleSet
	err error
}

func (s staticRules) Get(context.Context) (*intent.RuleSet, error) { return s.rs, s.err }

func testRuleSet() *intent.RuleSet {
	return &intent.RuleSet{
		Version: 1,
		Rules: []intent.Rule{
			{ID: "greet", MatchAny: []string{"hello"}, ReplyVariants: []string{"Hello, operator."}},
			{ID: "status", MatchRegex: `^status\b`, ReplyVariants: []string{"All systems nominal."}, VoiceFX: "radio", Actions: intent.Payload(`{"type":"report"}`)},
			{ID: "broken", MatchRegex: `(`, ReplyVariants: []string{"never"}},
		},
		Fallback: intent.Rule{ReplyVariants: []string{"Say again?"}},
	}
}

func testWAV() []byte {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/16000))
	}
	return audio.Encode(audio.PCMBuffer{SampleRate: 16000, Samples: samples})
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestRespond_MatchedRuleWithArchive(t *testing.T) {
	t.Parallel()
	wav := testWAV()
	synth := &ttsmock.Provider{Audio: wav}
	m, reader := newTestMetrics(t)
	vp := tts.VoiceProfile{ID: "rift-v1", Language: "en-GB"}
	p := voice.New(staticRules{rs: testRuleSet()}, synth, vp, voice.WithMetrics(m))

	resp, err := p.Respond(context.Background(), "Hello there, robot")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.RuleID != "greet" || resp.Fallback || resp.Reply != "Hello, operator." {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Preset != fx.Archive || resp.FX != fx.OutcomeApplied {
		t.Errorf("preset/fx = %q/%q, want archive/applied", resp.Preset, resp.FX)
	}
	if !bytes.Equal(resp.Audio, fx.Apply(wav, fx.Archive)) {
		t.Error("audio is not the archive-processed synthesis")
	}

	if synth.CallCount() != 1 {
		t.Fatalf("Synthesize calls = %d, want 1", synth.CallCount())
	}
	call := synth.SynthesizeCalls[0]
	if call.Text != "Hello, operator." || call.Voice.ID != "rift-v1" || call.Voice.Language != "en-GB" {
		t.Errorf("Synthesize call = %+v", call)
	}
	if n := counterTotal(t, reader, "rift.fx.runs"); n != 1 {
		t.Errorf("fx runs = %d, want 1", n)
	}
}

func TestRespond_RulePresetAndActions(t *testing.T) {
	t.Parallel()
	wav := testWAV()
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{Audio: wav}, tts.VoiceProfile{})

	resp, err := p.Respond(context.Background(), "STATUS report")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.RuleID != "status" || resp.Preset != "radio" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.FX != fx.OutcomePassthrough || !bytes.Equal(resp.Audio, wav) {
		t.Errorf("unknown preset should pass audio through, fx = %q", resp.FX)
	}
	if string(resp.Actions) != `{"type":"report"}` {
		t.Errorf("actions = %s", resp.Actions)
	}
}

func TestRespond_FallbackReportsSkips(t *testing.T) {
	t.Parallel()
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{Audio: testWAV()}, tts.VoiceProfile{})

	resp, err := p.Respond(context.Background(), "zzz unmatched zzz")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !resp.Fallback || resp.RuleID != intent.FallbackID || resp.Reply != "Say again?" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].RuleID != "broken" {
		t.Errorf("skipped = %+v, want the broken regex rule", resp.Skipped)
	}
}

func TestRespond_DefaultPreset(t *testing.T) {
	t.Parallel()
	wav := testWAV()
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{Audio: wav}, tts.VoiceProfile{},
		voice.WithDefaultPreset("dry"))

	resp, err := p.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Preset != "dry" || resp.FX != fx.OutcomePassthrough {
		t.Errorf("preset/fx = %q/%q, want dry/passthrough", resp.Preset, resp.FX)
	}

	p.SetDefaultPreset("")
	resp, err = p.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Preset != fx.Archive {
		t.Errorf("preset after reset = %q, want archive", resp.Preset)
	}
}

func TestRespond_SetVoice(t *testing.T) {
	t.Parallel()
	synth := &ttsmock.Provider{Audio: testWAV()}
	p := voice.New(staticRules{rs: testRuleSet()}, synth, tts.VoiceProfile{ID: "a"})

	p.SetVoice(tts.VoiceProfile{ID: "b", SpeedFactor: 1.2})
	if _, err := p.Respond(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got := synth.SynthesizeCalls[0].Voice; got.ID != "b" || got.SpeedFactor != 1.2 {
		t.Errorf("voice = %+v, want the replaced profile", got)
	}
}

func TestRespond_UndecodableSynthesis(t *testing.T) {
	t.Parallel()
	raw := []byte("not a wav stream")
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{Audio: raw}, tts.VoiceProfile{})

	resp, err := p.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.FX != fx.OutcomeUnsupported || !bytes.Equal(resp.Audio, raw) {
		t.Errorf("fx = %q, want unsupported with the original bytes", resp.FX)
	}
}

func TestRespond_RuleSetFailure(t *testing.T) {
	t.Parallel()
	src := intent.SourceFunc(func(context.Context) (*intent.RuleSet, error) {
		return nil, errors.New("unreachable")
	})
	synth := &ttsmock.Provider{Audio: testWAV()}
	p := voice.New(intent.NewCache(src), synth, tts.VoiceProfile{})

	_, err := p.Respond(context.Background(), "hello")
	if !errors.Is(err, intent.ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
	if synth.CallCount() != 0 {
		t.Error("Synthesize was called after a rule-set failure")
	}
}

func TestRespond_SynthesisFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("tts down")
	m, reader := newTestMetrics(t)
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{SynthesizeErr: boom}, tts.VoiceProfile{},
		voice.WithMetrics(m))

	_, err := p.Respond(context.Background(), "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the TTS error", err)
	}
	if n := counterTotal(t, reader, "rift.provider.errors"); n != 1 {
		t.Errorf("provider errors = %d, want 1", n)
	}
}

func TestRespond_NoReplies(t *testing.T) {
	t.Parallel()
	rs := &intent.RuleSet{Rules: []intent.Rule{{ID: "mute", MatchAny: []string{"hello"}}}}
	synth := &ttsmock.Provider{Audio: testWAV()}
	p := voice.New(staticRules{rs: rs}, synth, tts.VoiceProfile{})

	if _, err := p.Respond(context.Background(), "hello"); !errors.Is(err, intent.ErrNoReplies) {
		t.Errorf("err = %v, want ErrNoReplies", err)
	}
	if synth.CallCount() != 0 {
		t.Error("Synthesize was called without a reply")
	}
}

func TestPrepare_NoAudio(t *testing.T) {
	t.Parallel()
	synth := &ttsmock.Provider{Audio: testWAV()}
	p := voice.New(staticRules{rs: testRuleSet()}, synth, tts.VoiceProfile{})

	resp, err := p.Prepare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if resp.RuleID != "greet" || resp.Audio != nil || resp.FX != "" {
		t.Errorf("resp = %+v", resp)
	}
	if synth.CallCount() != 0 {
		t.Error("Prepare called Synthesize")
	}
}

func TestPrepare_TurnIDs(t *testing.T) {
	t.Parallel()
	p := voice.New(staticRules{rs: testRuleSet()}, &ttsmock.Provider{}, tts.VoiceProfile{})

	seen := make(map[string]bool)
	for range 5 {
		resp, err := p.Prepare(context.Background(), "hello")
		if err != nil {
			t.Fatal(err)
		}
		id, err := uuid.Parse(resp.ID)
		if err != nil {
			t.Fatalf("ID %q: %v", resp.ID, err)
		}
		if id.Version() != 7 {
			t.Errorf("ID version = %d, want 7", id.Version())
		}
		if seen[resp.ID] {
			t.Errorf("duplicate ID %s", resp.ID)
		}
		seen[resp.ID] = true
	}
}

func TestPrepare_SeededPickerIsDeterministic(t *testing.T) {
	t.Parallel()
	rs := testRuleSet()
	rs.Rules[0].ReplyVariants = []string{"a", "b", "c", "d"}

	run := func() []string {
		p := voice.New(staticRules{rs: rs}, &ttsmock.Provider{}, tts.VoiceProfile{},
			voice.WithPicker(intent.NewSeededPicker(9)))
		var out []string
		for range 10 {
			resp, err := p.Prepare(context.Background(), "hello")
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, resp.Reply)
		}
		return out
	}
	if a, b := run(), run(); strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("seeded runs differ: %v vs %v", a, b)
	}
}

func TestListen(t *testing.T) {
	t.Parallel()
	recording := testWAV()
	tr := &sttmock.Provider{Result: stt.Transcript{Text: "hello rift", Confidence: 0.9}}
	synth := &ttsmock.Provider{Audio: testWAV()}
	cfg := stt.Config{Language: "en-GB", Keywords: []string{"rift"}}
	p := voice.New(staticRules{rs: testRuleSet()}, synth, tts.VoiceProfile{}, voice.WithSTT(tr, cfg))

	resp, err := p.Listen(context.Background(), recording)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if resp.Transcript != "hello rift" || resp.RuleID != "greet" || resp.FX != fx.OutcomeApplied {
		t.Errorf("resp = %+v", resp)
	}
	if len(tr.TranscribeCalls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(tr.TranscribeCalls))
	}
	call := tr.TranscribeCalls[0]
	if !bytes.Equal(call.Audio, recording) || call.Cfg.Language != "en-GB" || len(call.Cfg.Keywords) != 1 {
		t.Errorf("Transcribe call = %+v", call.Cfg)
	}
}

func TestListen_Errors(t *testing.T) {
	t.Parallel()
	rules := staticRules{rs: testRuleSet()}

	p := voice.New(rules, &ttsmock.Provider{}, tts.VoiceProfile{})
	if _, err := p.Listen(context.Background(), testWAV()); !errors.Is(err, voice.ErrNoTranscriber) {
		t.Errorf("without STT: err = %v, want ErrNoTranscriber", err)
	}

	boom := errors.New("stt down")
	synth := &ttsmock.Provider{Audio: testWAV()}
	p = voice.New(rules, synth, tts.VoiceProfile{}, voice.WithSTT(&sttmock.Provider{TranscribeErr: boom}, stt.Config{}))
	if _, err := p.Listen(context.Background(), testWAV()); !errors.Is(err, boom) {
		t.Errorf("STT failure: err = %v, want the STT error", err)
	}
	if synth.CallCount() != 0 {
		t.Error("Synthesize was called after a transcription failure")
	}
}

func TestResponse_JSON(t *testing.T) {
	t.Parallel()
	resp := voice.Response{
		Transcript: "status",
		RuleID:     "status",
		Reply:      "ok",
		Preset:     "archive",
		Actions:    intent.Payload(`{"type":"report"}`),
		FX:         fx.OutcomeApplied,
		Audio:      []byte{0x52, 0x49, 0x46, 0x46},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["audio"] != base64.StdEncoding.EncodeToString(resp.Audio) {
		t.Errorf("audio = %v, want base64", got["audio"])
	}
	actions, ok := got["actions"].(map[string]any)
	if !ok || actions["type"] != "report" {
		t.Errorf("actions = %v, want the raw payload object", got["actions"])
	}
	if _, ok := got["skipped"]; ok {
		t.Error("empty skipped list should be omitted")
	}
}

func TestRespond_NoSynthesizer(t *testing.T) {
	t.Parallel()
	p := voice.New(staticRules{rs: testRuleSet()}, nil, tts.VoiceProfile{})

	if _, err := p.Respond(context.Background(), "hello"); !errors.Is(err, voice.ErrNoSynthesizer) {
		t.Errorf("err = %v, want ErrNoSynthesizer", err)
	}
	if _, err := p.Prepare(context.Background(), "hello"); err != nil {
		t.Errorf("Prepare without synthesizer: %v", err)
	}
}
