package room

import (
	"fmt"
	"regexp"
)

// Ruleset is an ordered, immutable set of classification patterns
// TECHNICAL DISCOVERY: regexp.Regexp is safe for concurrent use, so one compiled
// ruleset is shared read-only by every room and every session goroutine
type Ruleset struct {
	patterns []*regexp.Regexp
}

// NewRuleset compiles patterns in order; the index of each pattern is its identity
func NewRuleset(patterns []string) (*Ruleset, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %d %q: %v", ErrInvalidPattern, i, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Ruleset{patterns: compiled}, nil
}

// Match returns the indices of every pattern matching text, in pattern order
func (r *Ruleset) Match(text string) []int {
	if r == nil {
		return nil
	}
	var matches []int
	for i, re := range r.patterns {
		if re.MatchString(text) {
			matches = append(matches, i)
		}
	}
	return matches
}

// Len returns the number of patterns
func (r *Ruleset) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
