package hotkeys

import "strings"

// Modifier represents a Win32 hotkey modifier bitmask.
type Modifier uint32

// VKey represents a Win32 virtual-key code.
type VKey uint32

const (
	ModAlt     Modifier = 0x0001
	ModControl Modifier = 0x0002
	ModShift   Modifier = 0x0004
	ModWin     Modifier = 0x0008
	// ModNoRepeat suppresses auto-repeat delivery while the combo is held.
	// The manager adds it to every registration; it is never part of a Binding.
	ModNoRepeat Modifier = 0x4000
)

// modifierOrder fixes the rendering order of modifiers.
var modifierOrder = []Modifier{ModControl, ModAlt, ModShift, ModWin}

// Binding describes a parsed global hotkey.
// Construct only via ParseBinding to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        VKey
	normalized string
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Key returns the virtual-key code.
func (b Binding) Key() VKey { return b.key }

// Normalized returns the canonical human-readable binding string.
func (b Binding) Normalized() string { return b.normalized }

// String renders the binding as "Ctrl+Alt+Shift+Win+KEY" with modifiers in
// that fixed order. ParseBinding(b.String()) yields an equal Binding.
func (b Binding) String() string { return b.normalized }

// IsZero reports whether b is the unbound zero value.
func (b Binding) IsZero() bool { return b.key == 0 }

func renderBinding(mods Modifier, key VKey) string {
	parts := make([]string, 0, len(modifierOrder)+1)
	for _, mod := range modifierOrder {
		if mods&mod != 0 {
			parts = append(parts, modifierName(mod))
		}
	}
	parts = append(parts, keyName(key))
	return strings.Join(parts, "+")
}

func modifierName(mod Modifier) string {
	switch mod {
	case ModControl:
		return "Ctrl"
	case ModShift:
		return "Shift"
	case ModAlt:
		return "Alt"
	case ModWin:
		return "Win"
	default:
		return "Mod"
	}
}
