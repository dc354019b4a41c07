// Package filter decides which announcements become calendar events.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"starrail_calendar/internal/model"
)

type rule struct {
	filter model.Filter
	re     *regexp.Regexp
}

// Set is a compiled group of filter rules.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
// An empty set passes every event.
type Set struct {
	includes []rule
	excludes []rule
}

// Compile validates the rules and precompiles regular expressions.
func Compile(filters []model.Filter) (*Set, error) {
	s := &Set{}
	for _, f := range filters {
		r := rule{filter: f}
		switch f.Kind {
		case model.FilterInclude, model.FilterExclude:
			r.filter.Value = strings.ToLower(f.Value)
		case model.FilterIncludeRe, model.FilterExcludeRe:
			re, err := compileRegex(f.Value)
			if err != nil {
				return nil, err
			}
			r.re = re
		default:
			return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
		}
		switch f.Scope {
		case model.ScopeTitle, model.ScopeContent, model.ScopeAll:
		default:
			return nil, fmt.Errorf("unknown filter scope %q", f.Scope)
		}

		if f.Kind == model.FilterInclude || f.Kind == model.FilterIncludeRe {
			s.includes = append(s.includes, r)
		} else {
			s.excludes = append(s.excludes, r)
		}
	}
	return s, nil
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.includes) + len(s.excludes)
}

// Match checks whether an event passes the set.
func (s *Set) Match(ev model.Event) bool {
	if s.Len() == 0 {
		return true
	}
	for _, r := range s.excludes {
		if r.matches(ev) {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, r := range s.includes {
		if r.matches(ev) {
			return true
		}
	}
	return false
}

// Apply returns the events that pass the set, keeping their order.
func (s *Set) Apply(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if s.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (r rule) matches(ev model.Event) bool {
	text := textForScope(ev, r.filter.Scope)
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.filter.Value)
}

func textForScope(ev model.Event, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(ev.Title)
	case model.ScopeContent:
		return strings.ToLower(ev.Summary)
	default:
		return strings.ToLower(ev.Title + " " + ev.Summary)
	}
}

// ParseRules parses "kind:scope:value" rules separated by ";".
// The value may itself contain colons. Blank entries are ignored.
func ParseRules(s string) ([]model.Filter, error) {
	var filters []model.Filter
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 || fields[2] == "" {
			return nil, fmt.Errorf("invalid filter rule %q: want kind:scope:value", part)
		}
		filters = append(filters, model.Filter{
			Kind:  model.FilterKind(strings.ToLower(strings.TrimSpace(fields[0]))),
			Scope: model.FilterScope(strings.ToLower(strings.TrimSpace(fields[1]))),
			Value: fields[2],
		})
	}
	return filters, nil
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}
