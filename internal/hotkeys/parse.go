package hotkeys

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const (
	vkBack     VKey = 0x08
	vkTab      VKey = 0x09
	vkReturn   VKey = 0x0D
	vkPause    VKey = 0x13
	vkCapital  VKey = 0x14
	vkEscape   VKey = 0x1B
	vkSpace    VKey = 0x20
	vkPrior    VKey = 0x21
	vkNext     VKey = 0x22
	vkEnd      VKey = 0x23
	vkHome     VKey = 0x24
	vkLeft     VKey = 0x25
	vkUp       VKey = 0x26
	vkRight    VKey = 0x27
	vkDown     VKey = 0x28
	vkSnapshot VKey = 0x2C
	vkInsert   VKey = 0x2D
	vkDelete   VKey = 0x2E
	vkNumpad0  VKey = 0x60
	vkMultiply VKey = 0x6A
	vkAdd      VKey = 0x6B
	vkSubtract VKey = 0x6D
	vkDecimal  VKey = 0x6E
	vkDivide   VKey = 0x6F
	vkF1       VKey = 0x70
	vkF12      VKey = 0x7B
	vkF24      VKey = 0x87
	vkNumLock  VKey = 0x90
	vkScroll   VKey = 0x91
	vkOem1     VKey = 0xBA
	vkOemPlus  VKey = 0xBB
	vkOemComma VKey = 0xBC
	vkOemMinus VKey = 0xBD
	vkOemDot   VKey = 0xBE
	vkOem2     VKey = 0xBF
	vkOem3     VKey = 0xC0
	vkOem4     VKey = 0xDB
	vkOem5     VKey = 0xDC
	vkOem6     VKey = 0xDD
	vkOem7     VKey = 0xDE
)

var modifierByName = map[string]Modifier{
	"CTRL":    ModControl,
	"CONTROL": ModControl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
	"WIN":     ModWin,
	"WINDOWS": ModWin,
	"SUPER":   ModWin,
}

// namedKeys lists each key's canonical name first, then its aliases.
var namedKeys = []struct {
	key   VKey
	names []string
}{
	{vkBack, []string{"BACKSPACE", "BACK"}},
	{vkTab, []string{"TAB"}},
	{vkReturn, []string{"ENTER", "RETURN"}},
	{vkPause, []string{"PAUSE", "BREAK"}},
	{vkCapital, []string{"CAPSLOCK", "CAPITAL"}},
	{vkEscape, []string{"ESC", "ESCAPE"}},
	{vkSpace, []string{"SPACE"}},
	{vkPrior, []string{"PAGEUP", "PGUP", "PRIOR"}},
	{vkNext, []string{"PAGEDOWN", "PGDN", "NEXT"}},
	{vkEnd, []string{"END"}},
	{vkHome, []string{"HOME"}},
	{vkLeft, []string{"LEFT"}},
	{vkUp, []string{"UP"}},
	{vkRight, []string{"RIGHT"}},
	{vkDown, []string{"DOWN"}},
	{vkSnapshot, []string{"PRINTSCREEN", "PRTSC", "SNAPSHOT"}},
	{vkInsert, []string{"INSERT", "INS"}},
	{vkDelete, []string{"DELETE", "DEL"}},
	{vkMultiply, []string{"MULTIPLY", "NUMPADMULTIPLY"}},
	{vkAdd, []string{"ADD", "NUMPADADD"}},
	{vkSubtract, []string{"SUBTRACT", "NUMPADSUBTRACT"}},
	{vkDecimal, []string{"DECIMAL", "NUMPADDECIMAL"}},
	{vkDivide, []string{"DIVIDE", "NUMPADDIVIDE"}},
	{vkNumLock, []string{"NUMLOCK"}},
	{vkScroll, []string{"SCROLLLOCK", "SCROLL"}},
	{vkOem1, []string{";", "SEMICOLON", "OEM1"}},
	{vkOemPlus, []string{"=", "EQUALS", "OEMPLUS"}},
	{vkOemComma, []string{",", "COMMA", "OEMCOMMA"}},
	{vkOemMinus, []string{"-", "MINUS", "OEMMINUS"}},
	{vkOemDot, []string{".", "PERIOD", "OEMPERIOD"}},
	{vkOem2, []string{"/", "SLASH", "OEM2"}},
	{vkOem3, []string{"`", "BACKQUOTE", "GRAVE", "OEM3"}},
	{vkOem4, []string{"[", "LBRACKET", "OEM4"}},
	{vkOem5, []string{`\`, "BACKSLASH", "OEM5"}},
	{vkOem6, []string{"]", "RBRACKET", "OEM6"}},
	{vkOem7, []string{"'", "QUOTE", "OEM7"}},
}

var (
	keyByName      = map[string]VKey{}
	canonicalNames = map[VKey]string{}
)

func init() {
	for _, entry := range namedKeys {
		canonicalNames[entry.key] = entry.names[0]
		for _, name := range entry.names {
			keyByName[name] = entry.key
		}
	}
	for i := VKey(0); i <= vkF24-vkF1; i++ {
		name := "F" + strconv.Itoa(int(i)+1)
		keyByName[name] = vkF1 + i
		canonicalNames[vkF1+i] = name
	}
	for i := VKey(0); i <= 9; i++ {
		name := "NUMPAD" + strconv.Itoa(int(i))
		keyByName[name] = vkNumpad0 + i
		canonicalNames[vkNumpad0+i] = name
	}
}

// ParseBinding parses a binding like "Ctrl+Alt+P" or "F12".
//
// All tokens but the last are modifiers; unknown modifier tokens are
// ignored. A binding without modifiers is accepted only for function keys.
// Failures are reported as *ParseError.
func ParseBinding(spec string) (Binding, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Binding{}, &ParseError{Input: spec, Reason: "hotkey spec is empty"}
	}

	parts := strings.Split(raw, "+")
	var modifiers Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			slog.Debug("[hotkey] ignoring unknown modifier", "modifier", token, "spec", raw)
			continue
		}
		modifiers |= mod
	}

	key, err := parseKey(parts[len(parts)-1])
	if err != nil {
		return Binding{}, &ParseError{Input: spec, Reason: err.Error()}
	}
	if modifiers == 0 && !isFunctionKey(key) {
		return Binding{}, &ParseError{Input: spec, Reason: "at least one modifier is required for non-function keys"}
	}

	return Binding{
		modifiers:  modifiers,
		key:        key,
		normalized: renderBinding(modifiers, key),
	}, nil
}

func parseKey(raw string) (VKey, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("missing hotkey key token")
	}

	if len(token) == 1 {
		ch := token[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return VKey(ch), nil
		}
	}
	if key, ok := keyByName[token]; ok {
		return key, nil
	}

	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return 0, fmt.Errorf("key code 0x00 is not a valid virtual key")
		}
		return VKey(value), nil
	}

	return 0, fmt.Errorf("unknown key %q", strings.TrimSpace(raw))
}

func isFunctionKey(key VKey) bool {
	return key >= vkF1 && key <= vkF24
}

func keyName(key VKey) string {
	if (key >= 'A' && key <= 'Z') || (key >= '0' && key <= '9') {
		return string(rune(key))
	}
	if name, ok := canonicalNames[key]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint32(key))
}
