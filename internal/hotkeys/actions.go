package hotkeys

import (
	"maps"
	"strings"
)

// Action is a logical operation a hotkey triggers.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionToggle Action = "toggle"
)

// actionIDs are stable for the process lifetime and sent to the OS as
// hotkey identifiers.
var actionIDs = map[Action]int32{
	ActionPause:  1,
	ActionResume: 2,
	ActionToggle: 3,
}

// Actions returns every action in registration order.
func Actions() []Action {
	return []Action{ActionPause, ActionResume, ActionToggle}
}

// ID returns the stable hotkey identifier of a, or 0 for unknown actions.
func (a Action) ID() int32 {
	return actionIDs[a]
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a.ID() != 0
}

// ParseAction resolves a case-insensitive action name.
func ParseAction(name string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	return a, a.Valid()
}

// Bindings maps actions to combo strings. An empty combo leaves the action
// unbound. A Bindings value is always replaced wholesale.
type Bindings map[Action]string

// DefaultBindings returns the built-in bindings.
func DefaultBindings() Bindings {
	return Bindings{
		ActionPause:  "Ctrl+Alt+P",
		ActionResume: "Ctrl+Alt+R",
		ActionToggle: "",
	}
}

// Clone returns a copy of b.
func (b Bindings) Clone() Bindings {
	return maps.Clone(b)
}
