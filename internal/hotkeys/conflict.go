package hotkeys

import "strings"

// Conflict is a pair of actions bound to the same combination.
type Conflict struct {
	First  Action
	Second Action
	Combo  string
}

// canonicalCombo renders combo for comparison. Unparseable text is compared
// as typed so that identical invalid entries still collide.
func canonicalCombo(combo string) string {
	trimmed := strings.TrimSpace(combo)
	if trimmed == "" {
		return ""
	}
	if binding, err := ParseBinding(trimmed); err == nil {
		return binding.Normalized()
	}
	return trimmed
}

// DetectConflict reports whether combo, proposed for candidate, equals the
// current combo of any other action. Comparison is case-insensitive on the
// rendered form. An empty combo never conflicts.
func DetectConflict(bindings map[Action]string, candidate Action, combo string) bool {
	want := canonicalCombo(combo)
	if want == "" {
		return false
	}
	for action, other := range bindings {
		if action == candidate {
			continue
		}
		if strings.EqualFold(canonicalCombo(other), want) {
			return true
		}
	}
	return false
}

// Conflicts returns every conflicting pair among the known actions, in
// registration order.
func Conflicts(bindings Bindings) []Conflict {
	actions := Actions()
	var out []Conflict
	for i, first := range actions {
		a := canonicalCombo(bindings[first])
		if a == "" {
			continue
		}
		for _, second := range actions[i+1:] {
			if strings.EqualFold(a, canonicalCombo(bindings[second])) {
				out = append(out, Conflict{First: first, Second: second, Combo: a})
			}
		}
	}
	return out
}
