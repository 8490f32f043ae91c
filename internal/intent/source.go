package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/originalmmd/rift-robotics-ai/internal/resilience"
)

// DefaultMaxRuleSetBytes bounds the size of a rule-set document read by
// [FileSource] and [HTTPSource].
const DefaultMaxRuleSetBytes = 4 << 20

// Source loads a complete rule set. Fetch is called by [Cache] whenever its
// entry is missing or expired; it must return a fresh value each time and
// respect ctx.
type Source interface {
	Fetch(ctx context.Context) (*RuleSet, error)
}

// SourceFunc adapts an ordinary function to [Source].
type SourceFunc func(ctx context.Context) (*RuleSet, error)

// Fetch implements [Source].
func (f SourceFunc) Fetch(ctx context.Context) (*RuleSet, error) { return f(ctx) }

// Format selects the encoding of a rule-set document.
type Format int

const (
	// FormatYAML decodes YAML with unknown keys rejected.
	FormatYAML Format = iota
	// FormatJSON decodes JSON with unknown keys rejected.
	FormatJSON
)

// Parse decodes and validates a rule-set document.
func Parse(data []byte, format Format) (*RuleSet, error) {
	var rs RuleSet
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rs); err != nil {
			return nil, fmt.Errorf("intent: decode rule set json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&rs); err != nil {
			return nil, fmt.Errorf("intent: decode rule set yaml: %w", err)
		}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// FileSource reads a rule set from a local file on every fetch. Files ending
// in ".json" are decoded as JSON, everything else as YAML.
type FileSource struct {
	Path string
}

// Fetch implements [Source].
func (s FileSource) Fetch(ctx context.Context) (*RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("intent: open rule set %q: %w", s.Path, err)
	}
	defer f.Close()

	data, err := readBounded(f, DefaultMaxRuleSetBytes)
	if err != nil {
		return nil, fmt.Errorf("intent: read rule set %q: %w", s.Path, err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(s.Path), ".json") {
		format = FormatJSON
	}
	rs, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("intent: rule set %q: %w", s.Path, err)
	}
	return rs, nil
}

// HTTPSource fetches a rule set with a GET request on every fetch. The body
// is decoded as YAML when the response Content-Type says so, otherwise as
// JSON. Any non-2xx status is a failure.
type HTTPSource struct {
	// URL is the rule-set document location.
	URL string

	// Client performs the request. Nil means [http.DefaultClient]; the
	// request deadline comes from the fetch context.
	Client *http.Client

	// MaxBytes bounds the response body. Zero means [DefaultMaxRuleSetBytes].
	MaxBytes int64
}

// Fetch implements [Source].
func (s *HTTPSource) Fetch(ctx context.Context) (*RuleSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("intent: build rule set request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intent: get rule set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("intent: get rule set %s: unexpected status %s", redact(s.URL), resp.Status)
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxRuleSetBytes
	}
	data, err := readBounded(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("intent: read rule set body: %w", err)
	}

	format := FormatJSON
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); strings.Contains(mt, "yaml") {
		format = FormatYAML
	}
	return Parse(data, format)
}

var errTooLarge = errors.New("document exceeds size limit")

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", errTooLarge, limit)
	}
	return data, nil
}

// redact strips credentials and the query string from a URL for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// GuardedSource protects a [Source] with a circuit breaker. While the breaker
// is open Fetch fails immediately with an error wrapping
// [resilience.ErrCircuitOpen]; the wrapped source is not retried.
type GuardedSource struct {
	src     Source
	breaker *resilience.CircuitBreaker
}

// Guard wraps src with breaker.
func Guard(src Source, breaker *resilience.CircuitBreaker) *GuardedSource {
	return &GuardedSource{src: src, breaker: breaker}
}

// Fetch implements [Source].
func (g *GuardedSource) Fetch(ctx context.Context) (*RuleSet, error) {
	var rs *RuleSet
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		rs, err = g.src.Fetch(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// State reports the breaker state, for readiness output and tests.
func (g *GuardedSource) State() resilience.State { return g.breaker.State() }

// NewSource picks a [Source] implementation for location: http and https URLs
// yield an [HTTPSource] using client, file URLs and plain paths yield a
// [FileSource].
func NewSource(location string, client *http.Client) (Source, error) {
	if location == "" {
		return nil, errors.New("intent: rule set location is empty")
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, or a Windows drive letter.
		return FileSource{Path: location}, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return &HTTPSource{URL: location, Client: client}, nil
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("intent: file url %q has no path", location)
		}
		return FileSource{Path: u.Path}, nil
	default:
		return nil, fmt.Errorf("intent: unsupported rule set scheme %q", u.Scheme)
	}
}

var (
	_ Source = SourceFunc(nil)
	_ Source = FileSource{}
	_ Source = (*HTTPSource)(nil)
	_ Source = (*GuardedSource)(nil)
)
