package hotkeys

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetNotReady is returned by a Target that cannot accept
	// registrations yet. The manager retries until the context is done.
	ErrTargetNotReady = errors.New("hotkey registration target is not ready")
	// ErrHotkeyInUse is returned by a Target when another registrant
	// already holds the combination.
	ErrHotkeyInUse = errors.New("hotkey is already registered by another application")
	// ErrManagerClosed is returned by Register after Close.
	ErrManagerClosed = errors.New("hotkey manager is closed")
)

// ParseError reports malformed hotkey text. Callers reject the edit and
// keep the previous value.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid hotkey %q: %s", e.Input, e.Reason)
}

// Cause classifies why an action's hotkey could not be registered.
type Cause string

const (
	CauseInvalid  Cause = "invalid"
	CauseConflict Cause = "conflict"
	CauseInUse    Cause = "in_use"
	CauseReserved Cause = "reserved"
	CauseOS       Cause = "os"
)

func (c Cause) describe() string {
	switch c {
	case CauseInvalid:
		return "binding could not be parsed"
	case CauseConflict:
		return "binding duplicates another action"
	case CauseInUse:
		return "already in use by the OS or another application"
	case CauseReserved:
		return "reserved by the system debugger"
	default:
		return "rejected by the OS"
	}
}

// RegistrationError reports a failure to register one action. The action
// stays unbound; other actions are unaffected.
type RegistrationError struct {
	Action Action
	Combo  string
	Cause  Cause
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("register %s hotkey %q: %s", e.Action, e.Combo, e.Cause.describe())
	}
	return fmt.Sprintf("register %s hotkey %q: %s: %v", e.Action, e.Combo, e.Cause.describe(), e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
