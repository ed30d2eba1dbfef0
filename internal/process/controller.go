package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"gamepause/internal/procutil"
)

// startDetachedFn starts cmd without waiting for it and reaps it in the
// background. Tests replace it to observe invocations.
var startDetachedFn = func(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("[DEBUG-PROCESS] detached child exited with error", "path", cmd.Path, "error", err)
		}
	}()
	return nil
}

// Options configures a Controller. Zero values select platform defaults.
type Options struct {
	System   System
	Tool     SuspendTool
	Registry *Registry
	Now      func() time.Time
}

// Controller infers and transitions the state of named external processes.
//
// The controller holds no per-target state. Operations against one target
// must be serialized by the caller: the suspend utility is launched
// fire-and-forget, so overlapping Pause/Resume calls would race each other
// and any concurrent state poll.
type Controller struct {
	sys      System
	tool     SuspendTool
	registry *Registry
	now      func() time.Time
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	if opts.System == nil {
		opts.System = NewSystem()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(context.Background(), nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		sys:      opts.System,
		tool:     opts.Tool,
		registry: opts.Registry,
		now:      opts.Now,
	}
}

// Registry returns the controller's path registry.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// find returns every live process whose image matches t, in enumeration order.
func (c *Controller) find(t Target) ([]ProcessInfo, error) {
	key := t.BaseName()
	if key == "" {
		return nil, ErrInvalidTarget
	}
	procs, err := c.sys.Processes()
	if err != nil {
		return nil, err
	}
	var matches []ProcessInfo
	for _, p := range procs {
		if normalizeImageName(p.Image) == key {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// IsRunning reports whether at least one process matches t. Enumeration
// failures are treated as "not running".
func (c *Controller) IsRunning(t Target) bool {
	procs, err := c.find(t)
	if err != nil {
		slog.Debug("[DEBUG-PROCESS] enumeration failed, reporting not running", "target", t.Name, "error", err)
		return false
	}
	return len(procs) > 0
}

// IsSuspended reports whether every thread of the first matching process is
// waiting with a suspended wait reason. It returns false when the target is
// not running, when any thread is not suspended, and on any query failure.
// This is a best-effort heuristic; see the package documentation.
func (c *Controller) IsSuspended(t Target) bool {
	procs, err := c.find(t)
	if err != nil || len(procs) == 0 {
		return false
	}
	threads, err := c.sys.Threads(procs[0].PID)
	if err != nil {
		slog.Debug("[DEBUG-PROCESS] thread query failed, reporting not suspended",
			"target", t.Name, "pid", procs[0].PID, "error", err)
		return false
	}
	if len(threads) == 0 {
		return false
	}
	for _, th := range threads {
		if !th.Suspended() {
			return false
		}
	}
	return true
}

// State returns the inferred state of t.
func (c *Controller) State(t Target) State {
	if !c.IsRunning(t) {
		return StateNotFound
	}
	if c.IsSuspended(t) {
		return StateSuspended
	}
	return StateRunning
}

// Snapshot observes t for publication. The path is the best known one:
// learned from the running process when possible, else the registry's.
func (c *Controller) Snapshot(t Target) Status {
	state := c.State(t)
	path := t.Path
	if state != StateNotFound {
		if learned, ok := c.LearnPath(t); ok {
			path = learned
		}
	}
	if path == "" {
		path, _ = c.registry.Lookup(t.Name)
	}
	return Status{
		Target:    t.ImageName(),
		State:     state,
		Path:      path,
		CheckedAt: c.now(),
	}
}

// LearnPath records the executable path of the first running instance of t
// in the registry.
func (c *Controller) LearnPath(t Target) (string, bool) {
	procs, err := c.find(t)
	if err != nil || len(procs) == 0 {
		return "", false
	}
	path, err := c.sys.ImagePath(procs[0].PID)
	if err != nil || path == "" {
		slog.Debug("[DEBUG-PROCESS] image path unavailable", "target", t.Name, "pid", procs[0].PID, "error", err)
		return "", false
	}
	c.registry.Remember(t.Name, path)
	return path, true
}

// Pause suspends t through the external utility. When the utility is
// missing a *MissingToolError is returned and nothing is done. When
// minimizeFirst is set the target's main window is minimized beforehand on a
// best-effort basis. The utility's exit status is not awaited; callers
// confirm the transition with a later IsSuspended query.
func (c *Controller) Pause(t Target, minimizeFirst bool) error {
	if !t.Valid() {
		return ErrInvalidTarget
	}
	toolPath, err := c.tool.Locate()
	if err != nil {
		slog.Warn("[process] pause skipped: suspend tool unavailable", "target", t.Name, "error", err)
		return err
	}
	if minimizeFirst {
		c.showWindow(t, WindowMinimize)
	}
	return c.runTool(toolPath, false, t)
}

// Resume is the inverse of Pause. When restoreWindow is set the target's
// main window is restored after the utility has been started.
func (c *Controller) Resume(t Target, restoreWindow bool) error {
	if !t.Valid() {
		return ErrInvalidTarget
	}
	toolPath, err := c.tool.Locate()
	if err != nil {
		slog.Warn("[process] resume skipped: suspend tool unavailable", "target", t.Name, "error", err)
		return err
	}
	if err := c.runTool(toolPath, true, t); err != nil {
		return err
	}
	if restoreWindow {
		c.showWindow(t, WindowRestore)
	}
	return nil
}

// Toggle pauses a running target and resumes a suspended one. A target
// that is not running is left alone. The state observed before acting is
// returned. minimize applies to both directions: minimize before pausing,
// restore after resuming.
func (c *Controller) Toggle(t Target, minimize bool) (State, error) {
	if !t.Valid() {
		return StateNotFound, ErrInvalidTarget
	}
	state := c.State(t)
	switch state {
	case StateRunning:
		return state, c.Pause(t, minimize)
	case StateSuspended:
		return state, c.Resume(t, minimize)
	default:
		slog.Debug("[DEBUG-PROCESS] toggle ignored: target not running", "target", t.Name)
		return state, nil
	}
}

func (c *Controller) runTool(toolPath string, resume bool, t Target) error {
	cmd := c.tool.Command(toolPath, resume, t.ImageName())
	procutil.HideWindow(cmd)
	// Streams are captured only so the child does not inherit our console.
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := startDetachedFn(cmd); err != nil {
		return fmt.Errorf("start suspend tool %s: %w", toolPath, err)
	}
	slog.Info("[process] suspend tool started", "target", t.ImageName(), "resume", resume)
	return nil
}

// showWindow is cosmetic; failures are logged and swallowed.
func (c *Controller) showWindow(t Target, cmd WindowCommand) {
	procs, err := c.find(t)
	if err != nil || len(procs) == 0 {
		return
	}
	if err := c.sys.ShowMainWindow(procs[0].PID, cmd); err != nil {
		slog.Debug("[DEBUG-PROCESS] window command failed", "target", t.Name, "command", cmd, "error", err)
	}
}

// Kill force-terminates every process matching t. Per-process failures are
// logged; completion is not confirmed. The returned error only reports a
// failed enumeration.
func (c *Controller) Kill(t Target) error {
	procs, err := c.find(t)
	if err != nil {
		return fmt.Errorf("kill %s: %w", t.ImageName(), err)
	}
	for _, p := range procs {
		if err := c.sys.Terminate(p.PID); err != nil {
			slog.Warn("[process] terminate failed", "target", t.Name, "pid", p.PID, "error", err)
		}
	}
	slog.Info("[process] kill requested", "target", t.ImageName(), "matched", len(procs))
	return nil
}

// Launch starts t from its known path when that file exists, otherwise by
// bare image name through OS path resolution. A *LaunchError carrying both
// causes is returned when neither attempt starts a process.
func (c *Controller) Launch(t Target) error {
	if !t.Valid() {
		return ErrInvalidTarget
	}
	path := t.Path
	if path == "" {
		path, _ = c.registry.Lookup(t.Name)
	}

	var pathErr error
	if path != "" && isRegularFile(path) {
		cmd := exec.Command(path)
		cmd.Dir = filepath.Dir(path)
		procutil.Detach(cmd)
		if pathErr = startDetachedFn(cmd); pathErr == nil {
			c.registry.Remember(t.Name, path)
			slog.Info("[process] launched", "target", t.ImageName(), "path", path)
			return nil
		}
		slog.Warn("[process] launch by path failed, trying image name", "target", t.Name, "path", path, "error", pathErr)
	}

	cmd := exec.Command(t.ImageName())
	procutil.Detach(cmd)
	if err := startDetachedFn(cmd); err != nil {
		return &LaunchError{Target: t.ImageName(), Path: path, Err: errors.Join(pathErr, err)}
	}
	slog.Info("[process] launched by image name", "target", t.ImageName())
	return nil
}
