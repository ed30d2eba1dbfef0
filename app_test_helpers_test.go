package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamepause/internal/cli"
	"gamepause/internal/config"
	"gamepause/internal/hotkeys"
	"gamepause/internal/ipc"
	"gamepause/internal/process"
	"gamepause/internal/sessionlog"
)

// fakeSystem is an in-memory process.System.
type fakeSystem struct {
	mu         sync.Mutex
	procs      []process.ProcessInfo
	threads    map[uint32][]process.ThreadInfo
	paths      map[uint32]string
	terminated []uint32
}

func (f *fakeSystem) Processes() ([]process.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.ProcessInfo(nil), f.procs...), nil
}

func (f *fakeSystem) Threads(pid uint32) ([]process.ThreadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.ThreadInfo(nil), f.threads[pid]...), nil
}

func (f *fakeSystem) ImagePath(pid uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.paths[pid]
	if !ok {
		return "", errors.New("access denied")
	}
	return path, nil
}

func (f *fakeSystem) ShowMainWindow(uint32, process.WindowCommand) error {
	return nil
}

func (f *fakeSystem) Terminate(pid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakeSystem) terminatedPIDs() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.terminated...)
}

// runningGame returns a system with game.exe running (pid 100, two running
// threads) and its path known.
func runningGame() *fakeSystem {
	return &fakeSystem{
		procs: []process.ProcessInfo{{PID: 100, Image: "game.exe"}},
		threads: map[uint32][]process.ThreadInfo{
			100: {
				{ID: 1, State: process.ThreadRunning},
				{ID: 2, State: process.ThreadWaiting, WaitReason: process.WaitUserRequest},
			},
		},
		paths: map[uint32]string{100: `C:\Games\game.exe`},
	}
}

// fakeHotkeyTarget records registrations and lets tests fire hotkeys.
type fakeHotkeyTarget struct {
	mu       sync.Mutex
	post     func(hotkeys.Message) bool
	held     map[int32]hotkeys.VKey
	notReady bool
	closed   bool
}

func (f *fakeHotkeyTarget) factory(post func(hotkeys.Message) bool) hotkeys.Target {
	f.mu.Lock()
	f.post = post
	f.held = map[int32]hotkeys.VKey{}
	f.mu.Unlock()
	return f
}

func (f *fakeHotkeyTarget) Register(id int32, _ hotkeys.Modifier, key hotkeys.VKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notReady {
		return hotkeys.ErrTargetNotReady
	}
	f.held[id] = key
	return nil
}

func (f *fakeHotkeyTarget) Unregister(id int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, id)
	return nil
}

func (f *fakeHotkeyTarget) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHotkeyTarget) isHeld(action hotkeys.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[action.ID()]
	return ok
}

func (f *fakeHotkeyTarget) setReady(ready bool) {
	f.mu.Lock()
	f.notReady = !ready
	f.mu.Unlock()
}

func (f *fakeHotkeyTarget) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeHotkeyTarget) fire(action hotkeys.Action) bool {
	f.mu.Lock()
	post := f.post
	f.mu.Unlock()
	return post(hotkeys.Message{Code: hotkeys.WMHotkey, WParam: uintptr(action.ID())})
}

// fakePipeServer stands in for the control pipe.
type fakePipeServer struct {
	mu       sync.Mutex
	executor ipc.CommandExecutor
	started  bool
	stopped  bool
	startErr error
}

func (f *fakePipeServer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = f.startErr == nil
	return f.startErr
}

func (f *fakePipeServer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakePipeServer) PipeName() string { return "fake-pipe" }

type appHarness struct {
	app        *App
	sys        *fakeSystem
	target     *fakeHotkeyTarget
	pipe       *fakePipeServer
	ring       *sessionlog.Ring
	configPath string
	toolPath   string
	onChange   chan func(config.Config)
}

// writeTestConfig writes a config selecting game.exe with the suspend
// utility pointing at a missing file in dir.
func writeTestConfig(t *testing.T, dir string, mutate func(cfg *config.Config)) (configPath, toolPath string) {
	t.Helper()
	configPath = filepath.Join(dir, "config.yaml")
	toolPath = filepath.Join(dir, "tools", process.DefaultSuspendTool)
	cfg := config.DefaultConfig()
	cfg.Targets = []string{"game.exe", "other.exe"}
	cfg.Selected = "game.exe"
	cfg.SuspendTool = toolPath
	cfg.StatusFeed.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	if _, err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return configPath, toolPath
}

// captureWarnings routes the default logger through a tee into ring.
func captureWarnings(t *testing.T, ring *sessionlog.Ring) {
	t.Helper()
	original := slog.Default()
	base := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, ring.Add)))
	t.Cleanup(func() {
		slog.SetDefault(original)
	})
}

// stubAppSeams installs fakes for every OS-facing dependency of App.
func stubAppSeams(t *testing.T, sys *fakeSystem, target *fakeHotkeyTarget, pipe *fakePipeServer) chan func(config.Config) {
	t.Helper()
	origSystem := newProcessSystemFn
	origFactory := hotkeyTargetFactory
	origPipe := newPipeServerFn
	origWatch := watchConfigFn
	origRefresh := refreshDelay
	origRegister, origRetryInterval, origRetryTimeout := hotkeyRegisterTimeout, hotkeyRetryInterval, hotkeyRetryTimeout
	t.Cleanup(func() {
		hotkeyRegisterTimeout, hotkeyRetryInterval, hotkeyRetryTimeout = origRegister, origRetryInterval, origRetryTimeout
		newProcessSystemFn = origSystem
		hotkeyTargetFactory = origFactory
		newPipeServerFn = origPipe
		watchConfigFn = origWatch
		refreshDelay = origRefresh
	})

	onChange := make(chan func(config.Config), 1)
	newProcessSystemFn = func() process.System { return sys }
	hotkeyTargetFactory = target.factory
	newPipeServerFn = func(_ string, executor ipc.CommandExecutor) pipeServer {
		pipe.mu.Lock()
		pipe.executor = executor
		pipe.mu.Unlock()
		return pipe
	}
	watchConfigFn = func(ctx context.Context, _ string, fn func(config.Config)) error {
		onChange <- fn
		<-ctx.Done()
		return nil
	}
	refreshDelay = 10 * time.Millisecond
	hotkeyRegisterTimeout = 100 * time.Millisecond
	hotkeyRetryInterval = 20 * time.Millisecond
	hotkeyRetryTimeout = 20 * time.Millisecond
	return onChange
}

// startApp starts an App against fakes. It is shut down in t.Cleanup.
func startApp(t *testing.T, mutate func(cfg *config.Config)) *appHarness {
	t.Helper()
	dir := t.TempDir()
	configPath, toolPath := writeTestConfig(t, dir, mutate)

	h := &appHarness{
		sys:        runningGame(),
		target:     &fakeHotkeyTarget{},
		pipe:       &fakePipeServer{},
		ring:       sessionlog.NewRing(0),
		configPath: configPath,
		toolPath:   toolPath,
	}
	captureWarnings(t, h.ring)
	h.onChange = stubAppSeams(t, h.sys, h.target, h.pipe)

	h.app = NewApp(cli.RunOptions{ConfigPath: configPath, PipeName: "unused", Warnings: h.ring})
	h.app.startup(context.Background())
	t.Cleanup(func() {
		if err := h.app.shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return h
}
