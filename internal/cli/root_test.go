package cli

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"gamepause/internal/ipc"
	"gamepause/internal/sessionlog"
)

// stubSend replaces the pipe client for the duration of t.
func stubSend(t *testing.T, fn func(pipeName string, req ipc.Request) (ipc.Response, error)) {
	t.Helper()
	original := sendFn
	sendFn = fn
	t.Cleanup(func() {
		sendFn = original
	})
}

// noController makes every pipe request fail as if nothing were listening.
func noController(t *testing.T) {
	t.Helper()
	stubSend(t, func(string, ipc.Request) (ipc.Response, error) {
		return ipc.Response{}, fs.ErrNotExist
	})
}

// runCommand executes the command tree with args and a config file in a
// temp dir. The default slog logger is restored afterwards.
func runCommand(t *testing.T, rt Runtime, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(original)
	})

	var out, errOut bytes.Buffer
	root := newRootCommand(rt, &out, &errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestSetupLogging(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(original)
	})

	tests := []struct {
		name      string
		level     string
		wantErr   bool
		wantDebug bool
	}{
		{name: "info", level: "info"},
		{name: "debug upper case", level: "DEBUG", wantDebug: true},
		{name: "warn", level: "warn"},
		{name: "invalid", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ring := sessionlog.NewRing(4)
			err := setupLogging(&buf, tt.level, ring)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setupLogging(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := slog.Default().Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Fatalf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			slog.Warn("[hotkey] registration failed", "action", "pause")
			lines := ring.Lines()
			if len(lines) != 1 || lines[0] != "registration failed (action=pause)" {
				t.Fatalf("ring lines = %q", lines)
			}
		})
	}
}

func TestRootRequiresSubcommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "targets without subcommand", args: []string{"targets"}, wantErr: "requires a subcommand"},
		{name: "hotkeys unknown subcommand", args: []string{"hotkeys", "bogus"}, wantErr: "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCommand(t, Runtime{}, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsSilentExit(t *testing.T) {
	if code, ok := isSilentExit(&silentExitError{code: 3}); !ok || code != 3 {
		t.Fatalf("isSilentExit = (%d, %v), want (3, true)", code, ok)
	}
	if _, ok := isSilentExit(fs.ErrNotExist); ok {
		t.Fatal("plain error reported as silent exit")
	}
}
