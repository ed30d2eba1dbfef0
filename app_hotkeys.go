package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gamepause/internal/config"
	"gamepause/internal/hotkeys"
)

// registerHotkeys replaces every registration with cfg's bindings, waiting
// at most timeout for the target to become ready. Per-action failures are
// logged as warnings and leave that action unbound; failures caused by a
// target that is not ready are retried by the control loop.
func (a *App) registerHotkeys(cfg config.Config, timeout time.Duration) hotkeys.RegistrationResult {
	a.regMu.Lock()
	wasNotReady := a.registration.NotReady()
	a.regMu.Unlock()

	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	result := a.hotkeys.Register(ctx, cfg.HotkeyBindings())
	for _, failure := range result.Failures {
		if wasNotReady && errors.Is(failure, hotkeys.ErrTargetNotReady) {
			// Already reported; the control loop keeps retrying.
			slog.Debug("[hotkey] hotkey target still not ready", "action", failure.Action)
			continue
		}
		slog.Warn("[hotkey] hotkey registration failed",
			"action", failure.Action,
			"combo", failure.Combo,
			"cause", failure.Cause,
			"error", failure.Err,
		)
	}
	for action, binding := range result.Registered {
		slog.Debug("[hotkey] hotkey registered", "action", action, "combo", binding.Normalized())
	}

	a.regMu.Lock()
	a.registration = result
	a.regMu.Unlock()
	return result
}

// registrationFailures renders the failures of the latest registration.
func (a *App) registrationFailures() []string {
	a.regMu.Lock()
	defer a.regMu.Unlock()
	out := make([]string, 0, len(a.registration.Failures))
	for _, failure := range a.registration.Failures {
		out = append(out, failure.Error())
	}
	return out
}

// hotkeysNotReady reports whether the latest registration is waiting on a
// target that was not ready.
func (a *App) hotkeysNotReady() bool {
	if a.hotkeys == nil {
		return false
	}
	a.regMu.Lock()
	defer a.regMu.Unlock()
	return a.registration.NotReady()
}
