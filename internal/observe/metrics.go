// Package observe provides application-wide observability primitives for
// rift: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all rift metrics.
const meterName = "github.com/originalmmd/rift-robotics-ai"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Rule-set source and cache ---

	// RuleSetFetchDuration tracks rule-set source latency.
	RuleSetFetchDuration metric.Float64Histogram

	// RuleSetFetches counts source fetches. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	RuleSetFetches metric.Int64Counter

	// CacheLookups counts rule-set cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// --- Intent matching ---

	// IntentMatches counts selected intents. Use with attributes:
	//   attribute.String("rule_id", ...), attribute.Bool("fallback", ...)
	IntentMatches metric.Int64Counter

	// RulesSkipped counts rules skipped during matching. Use with attributes:
	//   attribute.String("rule_id", ...), attribute.String("reason", ...)
	RulesSkipped metric.Int64Counter

	// --- FX ---

	// FXDuration tracks preset processing latency. Use with attribute:
	//   attribute.String("preset", ...)
	FXDuration metric.Float64Histogram

	// FXRuns counts preset runs. Use with attributes:
	//   attribute.String("preset", ...), attribute.String("outcome", ...)
	FXRuns metric.Int64Counter

	// --- Speech providers ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ProviderErrors counts collaborator failures. Use with attribute:
	//   attribute.String("kind", "stt"|"tts"|"ruleset")
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("name", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider calls and rule-set fetches.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// dspBuckets covers in-process FX runs, which finish in microseconds to a
// few milliseconds.
var dspBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RuleSetFetchDuration, err = m.Float64Histogram("rift.ruleset.fetch.duration",
		metric.WithDescription("Latency of rule-set source fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FXDuration, err = m.Float64Histogram("rift.fx.duration",
		metric.WithDescription("Latency of FX preset processing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dspBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("rift.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("rift.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RuleSetFetches, err = m.Int64Counter("rift.ruleset.fetches",
		metric.WithDescription("Total rule-set source fetches by status."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("rift.ruleset.cache.lookups",
		metric.WithDescription("Total rule-set cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.IntentMatches, err = m.Int64Counter("rift.intent.matches",
		metric.WithDescription("Total selected intents by rule ID."),
	); err != nil {
		return nil, err
	}
	if met.RulesSkipped, err = m.Int64Counter("rift.intent.rules_skipped",
		metric.WithDescription("Total rules skipped during matching by rule ID and reason."),
	); err != nil {
		return nil, err
	}
	if met.FXRuns, err = m.Int64Counter("rift.fx.runs",
		metric.WithDescription("Total FX preset runs by preset and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("rift.provider.errors",
		metric.WithDescription("Total collaborator errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("rift.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("rift.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFetch records one rule-set source fetch and its latency in seconds.
func (m *Metrics) RecordFetch(ctx context.Context, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RuleSetFetchDuration.Record(ctx, seconds)
	m.RuleSetFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordMatch records a selected intent.
func (m *Metrics) RecordMatch(ctx context.Context, ruleID string, fallback bool) {
	m.IntentMatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("rule_id", ruleID),
			attribute.Bool("fallback", fallback),
		),
	)
}

// RecordRuleSkipped records a rule that was skipped during matching.
func (m *Metrics) RecordRuleSkipped(ctx context.Context, ruleID, reason string) {
	m.RulesSkipped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("rule_id", ruleID),
			attribute.String("reason", reason),
		),
	)
}

// RecordFX records one FX preset run and its latency in seconds.
func (m *Metrics) RecordFX(ctx context.Context, preset, outcome string, seconds float64) {
	m.FXDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("preset", preset)))
	m.FXRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("preset", preset),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderError records a collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
