package intent

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/originalmmd/rift-robotics-ai/internal/observe"
)

// SkipReasonBadRegex marks a rule whose match_regex failed to compile.
const SkipReasonBadRegex = "bad_regex"

// Skip describes a rule that was passed over during matching because its
// definition could not be evaluated.
type Skip struct {
	RuleID  string `json:"rule_id"`
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// Match is the result of [Matcher.Match].
type Match struct {
	// Rule is the selected rule. When Fallback is true its ID is [FallbackID].
	Rule Rule

	// Fallback reports that no rule matched.
	Fallback bool

	// Skipped lists rules that were passed over before the selection was made.
	Skipped []Skip
}

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithMatcherMetrics records match and skip counts on m instead of
// [observe.DefaultMetrics].
func WithMatcherMetrics(m *observe.Metrics) MatcherOption {
	return func(mt *Matcher) { mt.metrics = m }
}

// Matcher selects the first rule of a [RuleSet] that matches a transcript.
//
// Compiled regular expressions, and compile failures, are memoised per
// pattern for the rule set most recently matched against. Matching a
// different *RuleSet drops the previous memo, so patterns from rotated rule
// sets do not accumulate. A Matcher is safe for concurrent use.
type Matcher struct {
	metrics *observe.Metrics
	memo    atomic.Pointer[regexMemo]
}

type regexMemo struct {
	set      *RuleSet
	patterns sync.Map // pattern -> compiled
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// NewMatcher returns a ready-to-use [Matcher].
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Match walks rs.Rules in order and returns the first rule that matches
// transcript:
//
//  1. The transcript and every match_any phrase are passed through
//     [Normalize]; the rule matches if any phrase is a substring of the
//     transcript. Phrases that normalise to nothing never match.
//  2. Otherwise, if the rule has a match_regex, it is compiled with the
//     case-insensitive flag and tested against the raw transcript. A pattern
//     that does not compile is recorded in [Match.Skipped] and the walk
//     continues.
//
// When no rule matches, the fallback is returned with Fallback set.
func (m *Matcher) Match(ctx context.Context, rs *RuleSet, transcript string) Match {
	norm := Normalize(transcript)
	memo := m.memoFor(rs)
	var skipped []Skip

	for _, r := range rs.Rules {
		if containsAny(norm, r.MatchAny) {
			return m.selected(ctx, Match{Rule: r, Skipped: skipped})
		}
		if r.MatchRegex == "" {
			continue
		}
		re, err := m.compile(ctx, memo, r)
		if err != nil {
			skipped = append(skipped, Skip{
				RuleID:  r.ID,
				Pattern: r.MatchRegex,
				Reason:  SkipReasonBadRegex,
				Detail:  err.Error(),
			})
			m.metrics.RecordRuleSkipped(ctx, r.ID, SkipReasonBadRegex)
			continue
		}
		if re.MatchString(transcript) {
			return m.selected(ctx, Match{Rule: r, Skipped: skipped})
		}
	}
	return m.selected(ctx, Match{Rule: rs.FallbackRule(), Fallback: true, Skipped: skipped})
}

func (m *Matcher) selected(ctx context.Context, res Match) Match {
	m.metrics.RecordMatch(ctx, res.Rule.ID, res.Fallback)
	return res
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if np := Normalize(p); np != "" && strings.Contains(norm, np) {
			return true
		}
	}
	return false
}

// memoFor returns the memo for rs, replacing the current one when rs is a
// different rule set. If another goroutine swaps in a memo for yet another
// set first, the caller gets a private memo for this call only.
func (m *Matcher) memoFor(rs *RuleSet) *regexMemo {
	cur := m.memo.Load()
	if cur != nil && cur.set == rs {
		return cur
	}
	fresh := &regexMemo{set: rs}
	if m.memo.CompareAndSwap(cur, fresh) {
		return fresh
	}
	if cur = m.memo.Load(); cur != nil && cur.set == rs {
		return cur
	}
	return fresh
}

// compile returns the memoised case-insensitive regexp for r.MatchRegex.
// The first failure for a pattern within a rule set is logged at warn level.
func (m *Matcher) compile(ctx context.Context, memo *regexMemo, r Rule) (*regexp.Regexp, error) {
	if v, ok := memo.patterns.Load(r.MatchRegex); ok {
		c := v.(compiled)
		return c.re, c.err
	}
	re, err := regexp.Compile("(?i)" + r.MatchRegex)
	v, loaded := memo.patterns.LoadOrStore(r.MatchRegex, compiled{re: re, err: err})
	c := v.(compiled)
	if c.err != nil && !loaded {
		observe.Logger(ctx).Warn("intent: regex rule skipped",
			"rule_id", r.ID,
			"pattern", r.MatchRegex,
			"err", c.err,
		)
	}
	return c.re, c.err
}
