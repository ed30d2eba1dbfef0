package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"gamepause/internal/config"
	"gamepause/internal/ipc"
	"gamepause/internal/process"
	"gamepause/internal/statusfeed"
)

// refreshDelay is how long after an action the state is re-read, giving the
// suspend utility or a launched game time to take effect.
var refreshDelay = time.Second

// Action sources recorded in logs.
const (
	sourceHotkey = "hotkey"
	sourceIPC    = "ipc"
	sourceLocal  = "local"
)

// actionRequest is one command for the control loop. reply, when set, must
// be buffered.
type actionRequest struct {
	ID      string
	Command string
	Target  string
	Source  string
	reply   chan ipc.Response
}

// runControlLoop is the only goroutine that drives the controller once
// workers are running. Hotkey triggers, pipe commands, config reloads and
// polls are applied one at a time.
func (a *App) runControlLoop(ctx context.Context) {
	interval := a.getConfigSnapshot().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var refresh <-chan time.Time
	var retryHotkeys <-chan time.Time
	a.pollStatuses()

	for {
		if retryHotkeys == nil && a.hotkeysNotReady() {
			retryHotkeys = time.After(hotkeyRetryInterval)
		}
		select {
		case <-ctx.Done():
			return
		case req := <-a.actions:
			resp := a.apply(req)
			if req.reply != nil {
				req.reply <- resp
			}
			if changesState(req.Command) {
				refresh = time.After(refreshDelay)
			}
		case trigger := <-a.hotkeys.Triggers():
			a.apply(actionRequest{ID: trigger.ID, Command: string(trigger.Action), Source: sourceHotkey})
			refresh = time.After(refreshDelay)
		case cfg := <-a.configUpdates:
			a.applyConfig(cfg)
			if cfg.PollInterval != interval {
				interval = cfg.PollInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			a.pollStatuses()
		case <-refresh:
			refresh = nil
			a.pollStatuses()
		case <-retryHotkeys:
			retryHotkeys = nil
			if a.hotkeysNotReady() {
				slog.Debug("[hotkey] retrying registration, target was not ready")
				a.registerHotkeys(a.getConfigSnapshot(), hotkeyRetryTimeout)
			}
		}
	}
}

func changesState(command string) bool {
	switch command {
	case ipc.CommandPause, ipc.CommandResume, ipc.CommandToggle, ipc.CommandKill, ipc.CommandLaunch:
		return true
	default:
		return false
	}
}

// apply executes one command against the controller.
func (a *App) apply(req actionRequest) ipc.Response {
	slog.Debug("[DEBUG-PROCESS] applying command", "id", req.ID, "command", req.Command, "target", req.Target, "source", req.Source)
	cfg := a.getConfigSnapshot()

	switch req.Command {
	case ipc.CommandStatus:
		return a.statusResponse(req, cfg)
	case ipc.CommandReload:
		return a.reload(req)
	}

	target, err := resolveTarget(cfg, req.Target)
	if err != nil {
		return ipc.ErrorResponse(req.ID, err.Error())
	}
	a.publish(statusfeed.TriggerEvent(req.Command, req.ID, time.Now()))

	minimize := cfg.MinimizeOnPause()
	var stdout string
	switch req.Command {
	case ipc.CommandPause:
		err = a.controller.Pause(target, minimize)
		stdout = "pause requested for " + target.ImageName()
	case ipc.CommandResume:
		err = a.controller.Resume(target, minimize)
		stdout = "resume requested for " + target.ImageName()
	case ipc.CommandToggle:
		var before process.State
		before, err = a.controller.Toggle(target, minimize)
		switch before {
		case process.StateRunning:
			stdout = "pause requested for " + target.ImageName()
		case process.StateSuspended:
			stdout = "resume requested for " + target.ImageName()
		default:
			stdout = target.ImageName() + " is not running; nothing to toggle"
		}
	case ipc.CommandKill:
		err = a.controller.Kill(target)
		stdout = "kill requested for " + target.ImageName()
	case ipc.CommandLaunch:
		err = a.controller.Launch(target)
		stdout = "launched " + target.ImageName()
	default:
		return ipc.ErrorResponse(req.ID, fmt.Sprintf("unknown command %q", req.Command))
	}
	return commandResponse(req, stdout, err)
}

// commandResponse maps an action outcome to a response. Only launch failures
// and invalid targets fail the command; anything else, such as a missing
// suspend utility, is reported once as a warning.
func commandResponse(req actionRequest, stdout string, err error) ipc.Response {
	if err == nil {
		return ipc.Response{ID: req.ID, Stdout: stdout + "\n"}
	}
	var launchErr *process.LaunchError
	if errors.As(err, &launchErr) || errors.Is(err, process.ErrInvalidTarget) {
		slog.Warn("[process] command failed", "command", req.Command, "source", req.Source, "error", err)
		return ipc.ErrorResponse(req.ID, err.Error())
	}
	if !process.IsMissingTool(err) {
		slog.Warn("[process] command incomplete", "command", req.Command, "source", req.Source, "error", err)
	}
	return ipc.Response{
		ID:       req.ID,
		Warnings: []string{err.Error()},
	}
}

// resolveTarget returns the named target, or the selected one when name is
// empty.
func resolveTarget(cfg config.Config, name string) (process.Target, error) {
	if strings.TrimSpace(name) == "" {
		name = cfg.Selected
	}
	target := process.NewTarget(name)
	if !target.Valid() {
		return process.Target{}, errors.New("no target selected; run 'gamepause select <name>' first")
	}
	return target, nil
}

// statusTargets lists the targets a status request covers.
func statusTargets(cfg config.Config, name string) []string {
	if strings.TrimSpace(name) != "" {
		return []string{name}
	}
	return cfg.Targets
}

func (a *App) statusResponse(req actionRequest, cfg config.Config) ipc.Response {
	names := statusTargets(cfg, req.Target)
	statuses := make([]process.Status, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, a.controller.Snapshot(process.NewTarget(name)))
	}
	resp := ipc.Response{ID: req.ID, Statuses: statuses, Warnings: a.warnings.Lines()}
	if len(names) == 0 {
		resp.Stdout = "no targets configured; add one with 'gamepause targets add <name>'\n"
	} else if cfg.Selected != "" {
		resp.Stdout = "selected: " + cfg.Selected + "\n"
	}
	return resp
}

// reload re-reads the config file and applies it.
func (a *App) reload(req actionRequest) ipc.Response {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return ipc.ErrorResponse(req.ID, fmt.Sprintf("reload config %s: %v", a.configPath, err))
	}
	a.applyConfig(cfg)
	return ipc.Response{
		ID:       req.ID,
		Stdout:   "configuration reloaded\n",
		Warnings: a.registrationFailures(),
	}
}

// applyConfig swaps in cfg. Hotkeys are re-registered wholesale when any
// binding changed; the controller is rebuilt, keeping its path registry,
// when the suspend utility changed. Status feed settings apply on restart.
func (a *App) applyConfig(cfg config.Config) {
	prev := a.getConfigSnapshot()
	a.setConfigSnapshot(cfg)

	if a.hotkeys != nil && !maps.Equal(prev.HotkeyBindings(), cfg.HotkeyBindings()) {
		a.registerHotkeys(cfg, hotkeyRegisterTimeout)
	}
	if prev.SuspendTool != cfg.SuspendTool && a.controller != nil {
		a.controller = a.newController(cfg, a.controller.Registry())
	}
	if prev.StatusFeed != cfg.StatusFeed {
		slog.Info("[config] status feed settings change takes effect after restart")
	}
	slog.Debug("[DEBUG-CONFIG] config applied", "selected", cfg.Selected, "targets", len(cfg.Targets))
}

// pollStatuses observes every configured target and publishes changes.
// Targets no longer configured are dropped from the feed.
func (a *App) pollStatuses() {
	cfg := a.getConfigSnapshot()
	current := make(map[string]bool, len(cfg.Targets))
	for _, name := range cfg.Targets {
		st := a.controller.Snapshot(process.NewTarget(name))
		current[strings.ToLower(st.Target)] = true
		if a.feed != nil && a.feed.PublishStatus(st) {
			slog.Debug("[DEBUG-PROCESS] state changed", "target", st.Target, "state", st.State)
		}
	}
	if a.feed == nil {
		return
	}
	for _, st := range a.feed.Latest() {
		if !current[strings.ToLower(st.Target)] {
			a.feed.Forget(st.Target)
		}
	}
}

func (a *App) publish(evt statusfeed.Event) {
	if a.feed != nil {
		a.feed.Publish(evt)
	}
}
