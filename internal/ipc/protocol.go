package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"

	"gamepause/internal/process"
	"gamepause/internal/userutil"
)

// pipeEnvVar overrides the default control endpoint.
const pipeEnvVar = "GAMEPAUSE_PIPE"

// Commands understood by the running controller.
const (
	CommandStatus = "status"
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandToggle = "toggle"
	CommandKill   = "kill"
	CommandLaunch = "launch"
	CommandReload = "reload"
)

var knownCommands = []string{
	CommandStatus, CommandPause, CommandResume, CommandToggle,
	CommandKill, CommandLaunch, CommandReload,
}

// Request is one control command sent by the CLI.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	// Target overrides the selected target for this command. Empty means the
	// controller's current selection.
	Target string `json:"target,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID       string           `json:"id,omitempty"`
	ExitCode int              `json:"exit_code"`
	Stdout   string           `json:"stdout,omitempty"`
	Stderr   string           `json:"stderr,omitempty"`
	Statuses []process.Status `json:"statuses,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// CommandExecutor handles a request and returns a response.
type CommandExecutor interface {
	Execute(ctx context.Context, req Request) Response
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(ctx context.Context, req Request) Response

func (f ExecutorFunc) Execute(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// NewRequest builds a request with a fresh correlation id.
func NewRequest(command, target string) Request {
	return Request{ID: uuid.NewString(), Command: command, Target: strings.TrimSpace(target)}
}

// IsKnownCommand reports whether command is served by the controller.
func IsKnownCommand(command string) bool {
	return slices.Contains(knownCommands, command)
}

// ErrorResponse is a failed response carrying message on stderr.
func ErrorResponse(id, message string) Response {
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	return Response{ID: id, ExitCode: 1, Stderr: message}
}

// DefaultPipeName returns the control endpoint. A valid GAMEPAUSE_PIPE value
// wins; otherwise the name is derived from the current user.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return defaultPipeName(userutil.CurrentUsername())
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeEnvVar))
	if value == "" {
		return "", false
	}
	if !validPipeName(value) {
		slog.Warn("[ipc] "+pipeEnvVar+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.Command == "" {
		return Request{}, errors.New("command is required")
	}
	if !IsKnownCommand(req.Command) {
		return Request{}, fmt.Errorf("unknown command %q", req.Command)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Target = strings.TrimSpace(req.Target)
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
