package privacy

import (
	"errors"
	"strings"
)

// ErrUnknownDetector is returned for detector names that map to no category
var ErrUnknownDetector = errors.New("unknown detector")

// Registry holds the enabled rules in priority order. It is immutable once
// built and safe for concurrent use.
type Registry struct {
	rules   []Rule
	enabled map[Category]bool
}

// NewRegistry builds a registry from detector names. "all" enables every
// rule; any other name is matched case-insensitively against the categories.
// Enabling never changes the relative order of rules.
func NewRegistry(detectors []string) (*Registry, error) {
	enabled := make(map[Category]bool, len(AllCategories))

	for _, detector := range detectors {
		if strings.EqualFold(strings.TrimSpace(detector), "all") {
			for _, c := range AllCategories {
				enabled[c] = true
			}
			continue
		}

		category, err := ParseCategory(detector)
		if err != nil {
			return nil, err
		}
		enabled[category] = true
	}

	var rules []Rule
	for _, rule := range DefaultRules() {
		if enabled[rule.Category] {
			rules = append(rules, rule)
		}
	}

	return &Registry{rules: rules, enabled: enabled}, nil
}

// MustNewRegistry is like NewRegistry but panics on error
func MustNewRegistry(detectors ...string) *Registry {
	r, err := NewRegistry(detectors)
	if err != nil {
		panic("privacy.NewRegistry: " + err.Error())
	}
	return r
}

// Match returns the first enabled rule that accepts the field
func (r *Registry) Match(field, value string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Match(field, value) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Rules returns the enabled rules in evaluation order
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Standalone returns the enabled standalone rules in priority order
func (r *Registry) Standalone() []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Kind == KindStandalone {
			out = append(out, rule)
		}
	}
	return out
}

// Categories returns the enabled categories in evaluation order
func (r *Registry) Categories() []Category {
	out := make([]Category, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Category)
	}
	return out
}

// Enabled reports whether a category is active
func (r *Registry) Enabled(category Category) bool {
	return r.enabled[category]
}
