// Package filter decides whether a notice is relevant to the configured
// subject-matter keywords.
package filter

import "regexp"

// Filter is a pure predicate over a fixed set of compiled patterns.
type Filter struct {
	patterns []*regexp.Regexp
}

func New(patterns []*regexp.Regexp) *Filter {
	return &Filter{patterns: patterns}
}

// Match reports whether any configured pattern matches anywhere in text.
func (f *Filter) Match(text string) bool {
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
