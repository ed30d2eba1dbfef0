package ipc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDefaultPipeNameHonorsTrustedEnvOverride(t *testing.T) {
	override := defaultPipeName("ci_pipe")
	t.Setenv(pipeEnvVar, override)

	if got := DefaultPipeName(); got != override {
		t.Fatalf("DefaultPipeName() = %q, want trusted env override %q", got, override)
	}
}

func TestDefaultPipeNameRejectsUntrustedEnvOverride(t *testing.T) {
	t.Setenv(pipeEnvVar, `\\.\pipe\other-app`)
	t.Setenv("USERNAME", "unit-tester")

	got := DefaultPipeName()
	if got == `\\.\pipe\other-app` {
		t.Fatalf("DefaultPipeName() unexpectedly accepted untrusted env override")
	}
	if got != defaultPipeName("unit-tester") {
		t.Fatalf("DefaultPipeName() = %q, want per-user default", got)
	}
}

func TestDefaultPipeNameSanitizesUsername(t *testing.T) {
	t.Setenv(pipeEnvVar, "")
	t.Setenv("USERNAME", "unit user!")

	got := DefaultPipeName()
	if !strings.Contains(got, defaultPipePrefix+"unit_user_") {
		t.Fatalf("DefaultPipeName() = %q, want sanitized username", got)
	}
	if !validPipeName(got) {
		t.Fatalf("DefaultPipeName() = %q does not pass its own validation", got)
	}
}

func TestNewRequest(t *testing.T) {
	a := NewRequest(CommandPause, "  game.exe ")
	b := NewRequest(CommandPause, "")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("request ids %q, %q should be unique", a.ID, b.ID)
	}
	if a.Target != "game.exe" {
		t.Fatalf("Target = %q, want trimmed", a.Target)
	}
}

func TestIsKnownCommand(t *testing.T) {
	for _, cmd := range knownCommands {
		if !IsKnownCommand(cmd) {
			t.Errorf("IsKnownCommand(%q) = false", cmd)
		}
	}
	for _, cmd := range []string{"", "select", "PAUSE", "list-sessions"} {
		if IsKnownCommand(cmd) {
			t.Errorf("IsKnownCommand(%q) = true", cmd)
		}
	}
}

func TestDecodeRequestNormalizes(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"command": " TOGGLE "})
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}

	req, err := decodeRequest(raw)
	if err != nil {
		t.Fatalf("decodeRequest error = %v", err)
	}
	if req.Command != CommandToggle {
		t.Errorf("Command = %q, want %q", req.Command, CommandToggle)
	}
	if req.ID == "" {
		t.Error("decodeRequest should assign an id when the client sent none")
	}
}

func TestDecodeRequestPreservesExplicitValues(t *testing.T) {
	input := Request{ID: "abc", Command: CommandLaunch, Target: "notepad.exe"}
	raw, err := encodeRequest(input)
	if err != nil {
		t.Fatalf("encodeRequest error = %v", err)
	}

	req, err := decodeRequest(raw)
	if err != nil {
		t.Fatalf("decodeRequest error = %v", err)
	}
	if req != input {
		t.Fatalf("decodeRequest = %+v, want %+v", req, input)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("id-1", "no target selected")
	if resp.ExitCode != 1 || resp.Stderr != "no target selected\n" || resp.ID != "id-1" {
		t.Fatalf("ErrorResponse = %+v", resp)
	}
	if got := ErrorResponse("", "done\n").Stderr; got != "done\n" {
		t.Fatalf("ErrorResponse doubled newline: %q", got)
	}
}
