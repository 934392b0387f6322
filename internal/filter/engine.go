// Package filter decides which normalized items of a creator URL are kept.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"creator_ingest/internal/model"
)

// Rule is a filter prepared for matching. Regex rules are compiled once.
type Rule struct {
	model.Filter
	re *regexp.Regexp
}

// Compile prepares filters for repeated matching. Rules with an invalid
// pattern never match.
func Compile(filters []model.Filter) []Rule {
	rules := make([]Rule, 0, len(filters))
	for _, f := range filters {
		r := Rule{Filter: f}
		if f.Kind == model.FilterIncludeRe || f.Kind == model.FilterExcludeRe {
			r.re, _ = regexp.Compile("(?i)" + f.Value)
		} else {
			r.Value = strings.ToLower(f.Value)
		}
		rules = append(rules, r)
	}
	return rules
}

// Match reports whether item passes rules. No rules pass everything.
// Include rules are ORed: at least one must match when any exist.
// A single matching exclude rule rejects the item.
func Match(item model.CreateContentInput, rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false
	for _, r := range rules {
		switch r.Kind {
		case model.FilterInclude, model.FilterIncludeRe:
			hasIncludes = true
			if !anyIncludeMatched && r.matches(item) {
				anyIncludeMatched = true
			}
		case model.FilterExclude, model.FilterExcludeRe:
			if r.matches(item) {
				return false
			}
		}
	}
	return !hasIncludes || anyIncludeMatched
}

// Apply returns the items of in that pass filters, in order, and the
// number dropped.
func Apply(in []model.CreateContentInput, filters []model.Filter) ([]model.CreateContentInput, int) {
	if len(filters) == 0 {
		return in, 0
	}
	rules := Compile(filters)
	kept := make([]model.CreateContentInput, 0, len(in))
	for _, item := range in {
		if Match(item, rules) {
			kept = append(kept, item)
		}
	}
	return kept, len(in) - len(kept)
}

func (r Rule) matches(item model.CreateContentInput) bool {
	text := textForScope(item, r.Scope)
	switch r.Kind {
	case model.FilterInclude, model.FilterExclude:
		return strings.Contains(strings.ToLower(text), r.Value)
	case model.FilterIncludeRe, model.FilterExcludeRe:
		return r.re != nil && r.re.MatchString(text)
	}
	return false
}

func textForScope(item model.CreateContentInput, scope model.FilterScope) string {
	body := item.Description
	if item.ContentBody != "" && item.ContentBody != item.Description {
		body += " " + item.ContentBody
	}
	switch scope {
	case model.ScopeTitle:
		return item.Title
	case model.ScopeContent:
		return body
	default:
		return item.Title + " " + body
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
