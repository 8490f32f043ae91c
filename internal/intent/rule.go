// Package intent selects a reply for a voice transcript from an ordered rule
// set.
//
// A [RuleSet] is loaded wholesale from a [Source] and held by a [Cache] for a
// fixed TTL. The [Matcher] walks the rules in order and returns the first one
// whose normalised match_any phrases occur in the normalised transcript, or
// whose match_regex matches the raw transcript case-insensitively. When
// nothing matches, the rule set's fallback is returned under [FallbackID].
//
// Example rule set (YAML; JSON uses the same keys):
//
//	version: 3
//	rules:
//	  - id: greet
//	    match_any: ["hello", "hi rift"]
//	    reply_variants: ["Hello, operator.", "Standing by."]
//	    voice_fx: archive
//	  - id: status
//	    match_regex: '^status\b'
//	    reply_variants: ["All systems nominal."]
//	    actions: {type: report, target: diagnostics}
//	fallback:
//	  reply_variants: ["I did not catch that."]
package intent

import (
	"errors"
	"fmt"
	"strings"
)

// FallbackID is the rule ID reported when no rule matched.
const FallbackID = "FALLBACK"

// ErrInvalidRuleSet is wrapped by [RuleSet.Validate] failures.
var ErrInvalidRuleSet = errors.New("intent: invalid rule set")

// Rule maps transcript patterns to a set of reply texts, an optional FX
// preset and an optional opaque action payload. Rules are never modified
// after loading.
type Rule struct {
	// ID identifies the rule in logs, metrics and responses.
	ID string `json:"id" yaml:"id"`

	// MatchAny lists phrases that select the rule when any of them occurs in
	// the normalised transcript. Phrases are normalised the same way.
	MatchAny []string `json:"match_any,omitempty" yaml:"match_any"`

	// MatchRegex is tried against the raw transcript, case-insensitively,
	// when no MatchAny phrase hit. It uses RE2 syntax.
	MatchRegex string `json:"match_regex,omitempty" yaml:"match_regex"`

	// ReplyVariants holds the candidate reply texts; one is picked at random.
	ReplyVariants []string `json:"reply_variants" yaml:"reply_variants"`

	// VoiceFX names the FX preset for this rule's reply. Empty defers to the
	// configured default.
	VoiceFX string `json:"voice_fx,omitempty" yaml:"voice_fx"`

	// Actions is passed through to the caller uninterpreted.
	Actions Payload `json:"actions,omitempty" yaml:"actions"`
}

// RuleSet is an ordered list of rules plus the reply used when none match.
// Order is significant: the first matching rule wins.
type RuleSet struct {
	Version  int    `json:"version" yaml:"version"`
	Rules    []Rule `json:"rules" yaml:"rules"`
	Fallback Rule   `json:"fallback" yaml:"fallback"`
}

// FallbackRule returns the fallback with its ID fixed to [FallbackID].
func (rs *RuleSet) FallbackRule() Rule {
	r := rs.Fallback
	r.ID = FallbackID
	return r
}

// Validate reports every structural problem in rs: rules without an ID,
// duplicate IDs, rules or a fallback without reply variants, rules with no
// match criteria, and match_any phrases that normalise to nothing. Regex
// syntax is not checked here; a bad pattern only disables its own rule.
func (rs *RuleSet) Validate() error {
	var errs []error
	seen := make(map[string]int, len(rs.Rules))
	for i, r := range rs.Rules {
		where := fmt.Sprintf("rules[%d]", i)
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		} else {
			where = fmt.Sprintf("rules[%d] (%s)", i, r.ID)
			if j, dup := seen[r.ID]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate id, first used by rules[%d]", where, j))
			} else {
				seen[r.ID] = i
			}
		}
		if r.ID == FallbackID {
			errs = append(errs, fmt.Errorf("%s: id %q is reserved", where, FallbackID))
		}
		if len(r.ReplyVariants) == 0 {
			errs = append(errs, fmt.Errorf("%s: reply_variants must not be empty", where))
		}
		if len(r.MatchAny) == 0 && strings.TrimSpace(r.MatchRegex) == "" {
			errs = append(errs, fmt.Errorf("%s: needs match_any or match_regex", where))
		}
		for k, p := range r.MatchAny {
			if Normalize(p) == "" {
				errs = append(errs, fmt.Errorf("%s: match_any[%d] %q is empty after normalisation", where, k, p))
			}
		}
	}
	if len(rs.Fallback.ReplyVariants) == 0 {
		errs = append(errs, errors.New("fallback: reply_variants must not be empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRuleSet, errors.Join(errs...))
}
