package firewall

import (
	"context"
	"strings"
)

// RuleSource provides the current firewall rule set
type RuleSource interface {
	Rules(ctx context.Context) ([]Rule, error)
}

// Matcher finds rules bound to an executable
type Matcher struct {
	source RuleSource
}

// NewMatcher creates a matcher over source
func NewMatcher(source RuleSource) *Matcher {
	return &Matcher{source: source}
}

// All returns the full current rule set
func (m *Matcher) All(ctx context.Context) ([]Rule, error) {
	return m.source.Rules(ctx)
}

// Match re-queries the rule set and returns the rules whose program is path.
// The rule set can change outside this process at any time, so nothing is cached.
func (m *Matcher) Match(ctx context.Context, path string) ([]Rule, error) {
	rules, err := m.source.Rules(ctx)
	if err != nil {
		return nil, err
	}
	return MatchRules(rules, path), nil
}

// MatchRules filters rules by case-insensitive program path.
// Rules without a program and an empty path never match.
func MatchRules(rules []Rule, path string) []Rule {
	matched := []Rule{}
	if path == "" {
		return matched
	}

	for _, rule := range rules {
		if rule.HasProgram() && strings.EqualFold(rule.ApplicationPath, path) {
			matched = append(matched, rule)
		}
	}

	return matched
}
