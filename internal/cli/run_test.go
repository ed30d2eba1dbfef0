package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gamepause/internal/ipc"
	"gamepause/internal/process"
	"gamepause/internal/singleinstance"
)

func stubTryLock(t *testing.T, fn func(name string) (*singleinstance.Lock, error)) {
	t.Helper()
	original := tryLockFn
	tryLockFn = fn
	t.Cleanup(func() {
		tryLockFn = original
	})
}

func TestRunStartsController(t *testing.T) {
	stubTryLock(t, func(string) (*singleinstance.Lock, error) { return nil, nil })
	configPath := tempConfigPath(t)

	var gotOpts RunOptions
	runs := 0
	rt := Runtime{Run: func(ctx context.Context, opts RunOptions) error {
		runs++
		gotOpts = opts
		if ctx == nil {
			t.Fatal("nil context")
		}
		return nil
	}}

	if _, _, err := runCommand(t, rt, "--config", configPath, "--pipe", "p", "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if runs != 1 {
		t.Fatalf("Run called %d times, want 1", runs)
	}
	if gotOpts.ConfigPath != configPath || gotOpts.PipeName != "p" || gotOpts.Warnings == nil {
		t.Fatalf("run options = %+v", gotOpts)
	}
}

func TestRunWhenAlreadyRunning(t *testing.T) {
	stubTryLock(t, func(string) (*singleinstance.Lock, error) {
		return nil, singleinstance.ErrAlreadyRunning
	})
	var sent []ipc.Request
	stubSend(t, func(_ string, req ipc.Request) (ipc.Response, error) {
		sent = append(sent, req)
		return ipc.Response{ID: req.ID, Statuses: []process.Status{{Target: "game.exe", State: process.StateRunning}}}, nil
	})
	rt := Runtime{Run: func(context.Context, RunOptions) error {
		t.Fatal("second instance must not start a controller")
		return nil
	}}

	stdout, _, err := runCommand(t, rt, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "already running") || !strings.Contains(stdout, "game.exe") {
		t.Fatalf("stdout = %q", stdout)
	}
	if len(sent) != 1 || sent[0].Command != ipc.CommandStatus {
		t.Fatalf("sent = %+v, want one status request", sent)
	}
}

func TestRunProceedsWhenLockFails(t *testing.T) {
	stubTryLock(t, func(string) (*singleinstance.Lock, error) {
		return nil, errors.New("access denied")
	})
	started := false
	rt := Runtime{Run: func(context.Context, RunOptions) error {
		started = true
		return errors.New("boom")
	}}

	_, _, err := runCommand(t, rt, "run")
	if !started {
		t.Fatal("controller not started after lock failure")
	}
	if err == nil || err.Error() != "boom" {
		t.Fatalf("error = %v, want boom", err)
	}
}
