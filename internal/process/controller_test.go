package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func newToolDir(t *testing.T) (SuspendTool, string) {
	t.Helper()
	dir := t.TempDir()
	toolPath := filepath.Join(dir, DefaultSuspendTool)
	if err := os.WriteFile(toolPath, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	return SuspendTool{Dirs: []string{dir}}, toolPath
}

func TestIsRunning(t *testing.T) {
	tests := []struct {
		name   string
		sys    *fakeSystem
		target string
		want   bool
	}{
		{
			name:   "exact match",
			sys:    &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "game.exe"}}},
			target: "game.exe",
			want:   true,
		},
		{
			name:   "case and suffix insensitive",
			sys:    &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "Game.EXE"}}},
			target: "game",
			want:   true,
		},
		{
			name:   "no match",
			sys:    &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "other.exe"}}},
			target: "game.exe",
			want:   false,
		},
		{
			name:   "enumeration failure is not running",
			sys:    &fakeSystem{procErr: errors.New("access denied")},
			target: "game.exe",
			want:   false,
		},
		{
			name:   "empty target",
			sys:    &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: ".exe"}}},
			target: "",
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(Options{System: tt.sys})
			if got := c.IsRunning(NewTarget(tt.target)); got != tt.want {
				t.Fatalf("IsRunning(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestIsSuspended(t *testing.T) {
	running := []ProcessInfo{{PID: 10, Image: "game.exe"}, {PID: 11, Image: "game.exe"}}
	tests := []struct {
		name string
		sys  *fakeSystem
		want bool
	}{
		{
			name: "not running is never suspended",
			sys:  &fakeSystem{},
			want: false,
		},
		{
			name: "enumeration failure",
			sys:  &fakeSystem{procErr: errors.New("boom")},
			want: false,
		},
		{
			name: "all threads suspended",
			sys: &fakeSystem{
				procs:   running,
				threads: map[uint32][]ThreadInfo{10: suspendedThreads(1, 2, 3)},
			},
			want: true,
		},
		{
			name: "one thread running",
			sys: &fakeSystem{
				procs: running,
				threads: map[uint32][]ThreadInfo{10: append(suspendedThreads(1, 2),
					ThreadInfo{ID: 3, State: ThreadRunning})},
			},
			want: false,
		},
		{
			name: "waiting for another reason",
			sys: &fakeSystem{
				procs: running,
				threads: map[uint32][]ThreadInfo{10: append(suspendedThreads(1),
					ThreadInfo{ID: 2, State: ThreadWaiting, WaitReason: WaitUserRequest})},
			},
			want: false,
		},
		{
			name: "only the first process is inspected",
			sys: &fakeSystem{
				procs: running,
				threads: map[uint32][]ThreadInfo{
					10: {{ID: 1, State: ThreadRunning}},
					11: suspendedThreads(5),
				},
			},
			want: false,
		},
		{
			name: "thread query failure",
			sys:  &fakeSystem{procs: running, threadErr: errors.New("process exited")},
			want: false,
		},
		{
			name: "no threads reported",
			sys:  &fakeSystem{procs: running, threads: map[uint32][]ThreadInfo{}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(Options{System: tt.sys})
			if got := c.IsSuspended(NewTarget("game.exe")); got != tt.want {
				t.Fatalf("IsSuspended() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState(t *testing.T) {
	sys := &fakeSystem{}
	c := NewController(Options{System: sys})
	target := NewTarget("game.exe")

	if got := c.State(target); got != StateNotFound {
		t.Fatalf("State() = %q, want %q", got, StateNotFound)
	}
	sys.addProcess(ProcessInfo{PID: 7, Image: "game.exe"})
	sys.threads = map[uint32][]ThreadInfo{7: {{ID: 1, State: ThreadRunning}}}
	if got := c.State(target); got != StateRunning {
		t.Fatalf("State() = %q, want %q", got, StateRunning)
	}
	sys.threads[7] = suspendedThreads(1)
	if got := c.State(target); got != StateSuspended {
		t.Fatalf("State() = %q, want %q", got, StateSuspended)
	}
}

func TestPauseMissingToolTakesNoAction(t *testing.T) {
	sys := &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "game.exe"}}}
	started := 0
	stubStartDetached(t, func(*exec.Cmd) error {
		started++
		return nil
	})
	c := NewController(Options{System: sys, Tool: SuspendTool{Dirs: []string{t.TempDir()}}})

	err := c.Pause(NewTarget("game.exe"), true)
	var missing *MissingToolError
	if !errors.As(err, &missing) {
		t.Fatalf("Pause() error = %v, want *MissingToolError", err)
	}
	if missing.Tool != DefaultSuspendTool {
		t.Fatalf("missing tool = %q, want %q", missing.Tool, DefaultSuspendTool)
	}
	if started != 0 {
		t.Fatalf("suspend tool started %d times, want 0", started)
	}
	if len(sys.windows) != 0 {
		t.Fatalf("window commands = %v, want none", sys.windows)
	}

	if err := c.Resume(NewTarget("game.exe"), true); !IsMissingTool(err) {
		t.Fatalf("Resume() error = %v, want missing tool", err)
	}
}

func TestPauseMinimizesBeforeSuspending(t *testing.T) {
	var events []string
	sys := &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "Game.exe"}}, events: &events}
	tool, toolPath := newToolDir(t)
	var args []string
	stubStartDetached(t, func(cmd *exec.Cmd) error {
		events = append(events, "tool")
		args = cmd.Args
		if cmd.Stdout == nil || cmd.Stderr == nil {
			t.Error("suspend tool output streams must be captured")
		}
		return nil
	})
	c := NewController(Options{System: sys, Tool: tool})

	if err := c.Pause(NewTarget("Game.exe"), true); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !slices.Equal(events, []string{"window", "tool"}) {
		t.Fatalf("event order = %v, want [window tool]", events)
	}
	if len(sys.windows) != 1 || sys.windows[0] != (windowCall{pid: 10, cmd: WindowMinimize}) {
		t.Fatalf("window commands = %v", sys.windows)
	}
	wantArgs := []string{toolPath, "Game.exe" + executableSuffixFor("Game.exe")}
	if !slices.Equal(args, wantArgs) {
		t.Fatalf("tool args = %v, want %v", args, wantArgs)
	}
}

func TestPauseWithoutMinimizeSkipsWindow(t *testing.T) {
	sys := &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "game.exe"}}}
	tool, _ := newToolDir(t)
	stubStartDetached(t, func(*exec.Cmd) error { return nil })
	c := NewController(Options{System: sys, Tool: tool})

	if err := c.Pause(NewTarget("game.exe"), false); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if len(sys.windows) != 0 {
		t.Fatalf("window commands = %v, want none", sys.windows)
	}
}

func TestPauseSwallowsWindowFailure(t *testing.T) {
	sys := &fakeSystem{
		procs:     []ProcessInfo{{PID: 10, Image: "game.exe"}},
		windowErr: errors.New("no main window"),
	}
	tool, _ := newToolDir(t)
	started := false
	stubStartDetached(t, func(*exec.Cmd) error {
		started = true
		return nil
	})
	c := NewController(Options{System: sys, Tool: tool})

	if err := c.Pause(NewTarget("game.exe"), true); err != nil {
		t.Fatalf("Pause() error = %v, want nil", err)
	}
	if !started {
		t.Fatal("suspend tool was not started after window failure")
	}
}

func TestPauseReportsToolStartFailure(t *testing.T) {
	tool, _ := newToolDir(t)
	stubStartDetached(t, func(*exec.Cmd) error { return errors.New("exec format error") })
	c := NewController(Options{System: &fakeSystem{}, Tool: tool})

	if err := c.Pause(NewTarget("game.exe"), false); err == nil {
		t.Fatal("Pause() error = nil, want start failure")
	}
}

func TestResumeRestoresAfterResuming(t *testing.T) {
	var events []string
	sys := &fakeSystem{procs: []ProcessInfo{{PID: 10, Image: "game.exe"}}, events: &events}
	tool, toolPath := newToolDir(t)
	var args []string
	stubStartDetached(t, func(cmd *exec.Cmd) error {
		events = append(events, "tool")
		args = cmd.Args
		return nil
	})
	c := NewController(Options{System: sys, Tool: tool})

	if err := c.Resume(NewTarget("game.exe"), true); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !slices.Equal(events, []string{"tool", "window"}) {
		t.Fatalf("event order = %v, want [tool window]", events)
	}
	if sys.windows[0].cmd != WindowRestore {
		t.Fatalf("window command = %v, want restore", sys.windows[0].cmd)
	}
	wantArgs := []string{toolPath, "-r", "game" + executableSuffixFor("game")}
	if !slices.Equal(args, wantArgs) {
		t.Fatalf("tool args = %v, want %v", args, wantArgs)
	}
}

func TestPauseRejectsEmptyTarget(t *testing.T) {
	c := NewController(Options{System: &fakeSystem{}})
	if err := c.Pause(NewTarget("  "), false); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Pause() error = %v, want ErrInvalidTarget", err)
	}
}

func TestKillTerminatesEveryMatch(t *testing.T) {
	sys := &fakeSystem{procs: []ProcessInfo{
		{PID: 10, Image: "game.exe"},
		{PID: 11, Image: "other.exe"},
		{PID: 12, Image: "GAME.exe"},
	}}
	c := NewController(Options{System: sys})

	if err := c.Kill(NewTarget("game.exe")); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if !slices.Equal(sys.terminated, []uint32{10, 12}) {
		t.Fatalf("terminated = %v, want [10 12]", sys.terminated)
	}
}

func TestKillReportsEnumerationFailure(t *testing.T) {
	c := NewController(Options{System: &fakeSystem{procErr: errors.New("denied")}})
	if err := c.Kill(NewTarget("game.exe")); err == nil {
		t.Fatal("Kill() error = nil, want enumeration failure")
	}
}

func TestLaunchUsesKnownPath(t *testing.T) {
	exePath := filepath.Join(t.TempDir(), "game.exe")
	if err := os.WriteFile(exePath, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	var launched []string
	stubStartDetached(t, func(cmd *exec.Cmd) error {
		launched = append(launched, cmd.Args[0])
		return nil
	})
	c := NewController(Options{System: &fakeSystem{}})

	if err := c.Launch(Target{Name: "game.exe", Path: exePath}); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !slices.Equal(launched, []string{exePath}) {
		t.Fatalf("launched = %v, want [%s]", launched, exePath)
	}
	if got, ok := c.Registry().Lookup("GAME"); !ok || got != exePath {
		t.Fatalf("registry path = %q, %v; want %q", got, ok, exePath)
	}
}

func TestLaunchFallsBackToImageName(t *testing.T) {
	sys := &fakeSystem{}
	var launched []string
	stubStartDetached(t, func(cmd *exec.Cmd) error {
		launched = append(launched, cmd.Args[0])
		sys.addProcess(ProcessInfo{PID: 99, Image: "notepad.exe"})
		return nil
	})
	c := NewController(Options{System: sys})
	target := Target{Name: "notepad.exe", Path: filepath.Join(t.TempDir(), "missing", "notepad.exe")}

	if c.IsRunning(target) {
		t.Fatal("IsRunning() = true before launch")
	}
	if err := c.Launch(target); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !slices.Equal(launched, []string{"notepad.exe"}) {
		t.Fatalf("launched = %v, want [notepad.exe]", launched)
	}

	deadline := time.Now().Add(time.Second)
	for !c.IsRunning(target) {
		if time.Now().After(deadline) {
			t.Fatal("IsRunning() did not become true within the polling interval")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLaunchUsesRegistryPath(t *testing.T) {
	exePath := filepath.Join(t.TempDir(), "game.exe")
	if err := os.WriteFile(exePath, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	var launched []string
	stubStartDetached(t, func(cmd *exec.Cmd) error {
		launched = append(launched, cmd.Args[0])
		return nil
	})
	registry := NewRegistry(context.Background(), nil)
	registry.Remember("game.exe", exePath)
	c := NewController(Options{System: &fakeSystem{}, Registry: registry})

	if err := c.Launch(NewTarget("Game.exe")); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !slices.Equal(launched, []string{exePath}) {
		t.Fatalf("launched = %v, want [%s]", launched, exePath)
	}
}

func TestLaunchFailureCarriesBothCauses(t *testing.T) {
	exePath := filepath.Join(t.TempDir(), "game.exe")
	if err := os.WriteFile(exePath, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	pathErr := errors.New("path start failed")
	nameErr := errors.New("name start failed")
	calls := 0
	stubStartDetached(t, func(*exec.Cmd) error {
		calls++
		if calls == 1 {
			return pathErr
		}
		return nameErr
	})
	c := NewController(Options{System: &fakeSystem{}})

	err := c.Launch(Target{Name: "game.exe", Path: exePath})
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Launch() error = %v, want *LaunchError", err)
	}
	if launchErr.Path != exePath {
		t.Fatalf("LaunchError.Path = %q, want %q", launchErr.Path, exePath)
	}
	if !errors.Is(err, pathErr) || !errors.Is(err, nameErr) {
		t.Fatalf("Launch() error = %v, want both causes wrapped", err)
	}
}

func TestSnapshotLearnsPathFromRunningProcess(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sys := &fakeSystem{
		procs:   []ProcessInfo{{PID: 10, Image: "game.exe"}},
		threads: map[uint32][]ThreadInfo{10: suspendedThreads(1)},
		paths:   map[uint32]string{10: `C:\Games\game.exe`},
	}
	c := NewController(Options{System: sys, Now: func() time.Time { return now }})

	status := c.Snapshot(NewTarget("game"))
	if status.State != StateSuspended {
		t.Fatalf("State = %q, want %q", status.State, StateSuspended)
	}
	if status.Path != `C:\Games\game.exe` {
		t.Fatalf("Path = %q", status.Path)
	}
	if !status.CheckedAt.Equal(now) {
		t.Fatalf("CheckedAt = %v, want %v", status.CheckedAt, now)
	}
	if got, _ := c.Registry().Lookup("game.exe"); got != `C:\Games\game.exe` {
		t.Fatalf("registry path = %q", got)
	}
}

func TestSnapshotNotFoundUsesRegistry(t *testing.T) {
	registry := NewRegistry(context.Background(), nil)
	registry.Remember("game", "/opt/game/game")
	c := NewController(Options{System: &fakeSystem{}, Registry: registry})

	status := c.Snapshot(NewTarget("game.exe"))
	if status.State != StateNotFound {
		t.Fatalf("State = %q, want %q", status.State, StateNotFound)
	}
	if status.Path != "/opt/game/game" {
		t.Fatalf("Path = %q", status.Path)
	}
}

// executableSuffixFor returns the suffix ImageName appends to name.
func executableSuffixFor(name string) string {
	return NewTarget(name).ImageName()[len(name):]
}

func TestToggle(t *testing.T) {
	tests := []struct {
		name       string
		threads    []ThreadInfo
		running    bool
		wantState  State
		wantResume bool
		wantStart  bool
	}{
		{name: "running pauses", running: true, threads: []ThreadInfo{{ID: 1, State: ThreadRunning}}, wantState: StateRunning, wantStart: true},
		{name: "suspended resumes", running: true, threads: suspendedThreads(1, 2), wantState: StateSuspended, wantStart: true, wantResume: true},
		{name: "not running is a no-op", wantState: StateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &fakeSystem{threads: map[uint32][]ThreadInfo{10: tt.threads}}
			if tt.running {
				sys.addProcess(ProcessInfo{PID: 10, Image: "game.exe"})
			}
			tool, _ := newToolDir(t)
			var args []string
			started := false
			stubStartDetached(t, func(cmd *exec.Cmd) error {
				started = true
				args = cmd.Args
				return nil
			})
			c := NewController(Options{System: sys, Tool: tool})

			state, err := c.Toggle(NewTarget("game.exe"), false)
			if err != nil {
				t.Fatalf("Toggle() error = %v", err)
			}
			if state != tt.wantState {
				t.Fatalf("Toggle() state = %q, want %q", state, tt.wantState)
			}
			if started != tt.wantStart {
				t.Fatalf("tool started = %v, want %v", started, tt.wantStart)
			}
			if tt.wantStart && slices.Contains(args, "-r") != tt.wantResume {
				t.Fatalf("tool args = %v, resume = %v", args, tt.wantResume)
			}
		})
	}
}

func TestToggleRejectsEmptyTarget(t *testing.T) {
	c := NewController(Options{System: &fakeSystem{}})
	if _, err := c.Toggle(Target{}, true); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("Toggle() error = %v, want ErrInvalidTarget", err)
	}
}
