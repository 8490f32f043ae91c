// Package app wires the rift subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the rule-set source,
// circuit breaker, cache and voice pipeline from the config, Run serves the
// ops listener until the context ends, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithSynthesizer,
// WithHTTPClient, WithMetrics, etc.). When an option is not provided, New
// builds the default from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/originalmmd/rift-robotics-ai/internal/config"
	"github.com/originalmmd/rift-robotics-ai/internal/health"
	"github.com/originalmmd/rift-robotics-ai/internal/intent"
	"github.com/originalmmd/rift-robotics-ai/internal/observe"
	"github.com/originalmmd/rift-robotics-ai/internal/resilience"
	"github.com/originalmmd/rift-robotics-ai/internal/voice"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/stt"
	"github.com/originalmmd/rift-robotics-ai/pkg/provider/tts"
)

// Providers holds the speech collaborators. Nil means not configured.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider

	// Backups are tried in order when the primary fails or its breaker is
	// open.
	STTBackups []Named[stt.Provider]
	TTSBackups []Named[tts.Provider]
}

// Named labels a backup provider in logs and breaker metrics.
type Named[T any] struct {
	Name     string
	Provider T
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers Providers
	metrics   *observe.Metrics
	client    *http.Client
	picker    intent.Picker
	level     *slog.LevelVar
	metricsH  http.Handler

	breaker  *resilience.CircuitBreaker
	source   *intent.GuardedSource
	cache    *intent.Cache
	pipeline *voice.Pipeline
	health   *health.Handler

	server   *http.Server
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSynthesizer sets the TTS provider used by the voice pipeline.
func WithSynthesizer(p tts.Provider) Option {
	return func(a *App) { a.providers.TTS = p }
}

// WithTranscriber sets the STT provider used by [voice.Pipeline.Listen].
func WithTranscriber(p stt.Provider) Option {
	return func(a *App) { a.providers.STT = p }
}

// WithBackupSynthesizer adds a TTS provider tried when the ones before it
// fail.
func WithBackupSynthesizer(name string, p tts.Provider) Option {
	return func(a *App) {
		a.providers.TTSBackups = append(a.providers.TTSBackups, Named[tts.Provider]{name, p})
	}
}

// WithBackupTranscriber adds an STT provider tried when the ones before it
// fail.
func WithBackupTranscriber(name string, p stt.Provider) Option {
	return func(a *App) {
		a.providers.STTBackups = append(a.providers.STTBackups, Named[stt.Provider]{name, p})
	}
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHTTPClient sets the client used by HTTP rule-set sources.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.client = c }
}

// WithPicker sets the reply picker, e.g. a seeded one for reproducible runs.
func WithPicker(p intent.Picker) Option {
	return func(a *App) { a.picker = p }
}

// WithLogLevel lets [App.Reload] adjust the process log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithTelemetry records on tel.Metrics and serves tel's registry on
// /metrics.
func WithTelemetry(tel *observe.Telemetry) Option {
	return func(a *App) {
		a.metrics = tel.Metrics
		a.metricsH = tel.Handler()
	}
}

// WithMetricsHandler replaces the /metrics handler. Without it or
// [WithTelemetry] the default Prometheus registry is served.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. cfg must already be validated with defaults
// applied, as returned by [config.Load].
//
// New performs no I/O; the rule set is first fetched on the first turn or
// readiness probe.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.client == nil {
		a.client = &http.Client{}
	}
	if a.metricsH == nil {
		a.metricsH = promhttp.Handler()
	}

	// ── 1. Rule-set source behind a breaker ──────────────────────────────
	src, err := intent.NewSource(cfg.Rules.Source, a.client)
	if err != nil {
		return nil, fmt.Errorf("app: rule set source: %w", err)
	}
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "ruleset",
		MaxFailures:  cfg.Rules.Breaker.MaxFailures,
		ResetTimeout: cfg.Rules.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			slog.Warn("app: circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	})
	a.source = intent.Guard(src, a.breaker)

	// ── 2. Cache ─────────────────────────────────────────────────────────
	a.cache = intent.NewCache(a.source,
		intent.WithTTL(cfg.Rules.TTL),
		intent.WithFetchTimeout(cfg.Rules.FetchTimeout),
		intent.WithCacheMetrics(a.metrics),
	)

	// ── 3. Voice pipeline ────────────────────────────────────────────────
	synth, transcriber := a.speechProviders()
	popts := []voice.Option{
		voice.WithMetrics(a.metrics),
		voice.WithDefaultPreset(cfg.FX.DefaultPreset),
	}
	if a.picker != nil {
		popts = append(popts, voice.WithPicker(a.picker))
	}
	if transcriber != nil {
		popts = append(popts, voice.WithSTT(transcriber, sttConfig(cfg.Voice)))
	}
	a.pipeline = voice.New(a.cache, synth, voiceProfile(cfg.Voice), popts...)

	// ── 4. Health ────────────────────────────────────────────────────────
	a.health = health.New([]health.Checker{
		{Name: "ruleset", Check: a.checkRuleSet},
	}, health.WithCheckTimeout(cfg.Rules.FetchTimeout+time.Second))

	return a, nil
}

// speechProviders wraps the configured providers in failover groups when
// backups were given. A missing primary is replaced by the first backup.
func (a *App) speechProviders() (tts.Provider, stt.Provider) {
	fcfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			slog.Warn("app: provider breaker state changed", "name", name, "from", from, "to", to)
		},
	}}

	synth := a.providers.TTS
	if backups := a.providers.TTSBackups; len(backups) > 0 {
		name := "primary"
		if synth == nil {
			name, synth, backups = backups[0].Name, backups[0].Provider, backups[1:]
		}
		fb := resilience.NewTTSFallback(synth, name, fcfg)
		for _, b := range backups {
			fb.AddFallback(b.Name, b.Provider)
		}
		synth = fb
	}

	transcriber := a.providers.STT
	if backups := a.providers.STTBackups; len(backups) > 0 {
		name := "primary"
		if transcriber == nil {
			name, transcriber, backups = backups[0].Name, backups[0].Provider, backups[1:]
		}
		fb := resilience.NewSTTFallback(transcriber, name, fcfg)
		for _, b := range backups {
			fb.AddFallback(b.Name, b.Provider)
		}
		transcriber = fb
	}
	return synth, transcriber
}

func voiceProfile(v config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{ID: v.VoiceID, Language: v.Language, SpeedFactor: v.Speed}
}

func sttConfig(v config.VoiceConfig) stt.Config {
	return stt.Config{Language: v.Language, Keywords: v.Keywords}
}

// checkRuleSet reports ready when a rule set can be served.
func (a *App) checkRuleSet(ctx context.Context) error {
	if _, err := a.cache.Get(ctx); err != nil {
		return fmt.Errorf("%w (breaker %s)", err, a.source.State())
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Pipeline returns the voice pipeline.
func (a *App) Pipeline() *voice.Pipeline { return a.pipeline }

// Cache returns the rule-set cache.
func (a *App) Cache() *intent.Cache { return a.cache }

// Breaker returns the circuit breaker guarding the rule-set source.
func (a *App) Breaker() *resilience.CircuitBreaker { return a.breaker }

// Handler returns the ops mux: /healthz, /readyz and /metrics wrapped in
// [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.metricsH)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of a config change. Settings that
// need a restart are logged and ignored.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.DefaultPresetChanged {
		a.pipeline.SetDefaultPreset(d.NewDefaultPreset)
		slog.Info("app: default fx preset changed", "preset", d.NewDefaultPreset)
	}
	if d.VoiceChanged {
		a.pipeline.SetVoice(voiceProfile(d.NewVoice))
		slog.Info("app: voice profile changed", "voice_id", d.NewVoice.VoiceID)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart to take effect", "fields", d.RestartRequired)
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves the ops listener on cfg.Server.ListenAddr until ctx is done. It
// returns nil after a clean stop. With no listen address it just waits for
// ctx.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		slog.Info("app running without ops listener")
		<-ctx.Done()
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.closers = append(a.closers, a.server.Shutdown)

	errc := make(chan error, 1)
	go func() { errc <- a.server.Serve(ln) }()
	slog.Info("app: ops listener started", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the ops listener and runs every registered closer. It is
// safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
