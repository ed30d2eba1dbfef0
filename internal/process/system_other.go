//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const executableSuffix = ""

// procRoot is a test seam for the /proc mount point.
var procRoot = "/proc"

type procSystem struct{}

// NewSystem returns the /proc-backed implementation. Stopped threads
// (state 'T') are reported as suspended; window commands are unsupported.
func NewSystem() System {
	return procSystem{}
}

func (procSystem) Processes() ([]ProcessInfo, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}
	var procs []ProcessInfo
	for _, entry := range entries {
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil || !entry.IsDir() {
			continue
		}
		image := procImage(uint32(pid))
		if image == "" {
			continue
		}
		procs = append(procs, ProcessInfo{PID: uint32(pid), Image: image})
	}
	return procs, nil
}

// procImage prefers the exe link, which is not truncated like comm.
func procImage(pid uint32) string {
	dir := filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10))
	if target, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		return filepath.Base(strings.TrimSuffix(target, " (deleted)"))
	}
	raw, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (procSystem) Threads(pid uint32) ([]ThreadInfo, error) {
	taskDir := filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10), "task")
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", taskDir, err)
	}
	threads := make([]ThreadInfo, 0, len(entries))
	for _, entry := range entries {
		tid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(taskDir, entry.Name(), "stat"))
		if err != nil {
			return nil, fmt.Errorf("read thread %d stat: %w", tid, err)
		}
		state, err := parseStatState(string(raw))
		if err != nil {
			return nil, fmt.Errorf("thread %d: %w", tid, err)
		}
		threads = append(threads, threadFromStatState(uint32(tid), state))
	}
	return threads, nil
}

// parseStatState extracts the one-letter state field. The comm field is
// parenthesized and may itself contain spaces or parentheses.
func parseStatState(stat string) (byte, error) {
	closing := strings.LastIndexByte(stat, ')')
	if closing < 0 || closing+2 >= len(stat) {
		return 0, errors.New("malformed stat line")
	}
	return stat[closing+2], nil
}

func threadFromStatState(tid uint32, state byte) ThreadInfo {
	switch state {
	case 'T', 't':
		return ThreadInfo{ID: tid, State: ThreadWaiting, WaitReason: WaitSuspended}
	case 'S', 'D', 'I':
		return ThreadInfo{ID: tid, State: ThreadWaiting, WaitReason: WaitUserRequest}
	case 'Z', 'X':
		return ThreadInfo{ID: tid, State: ThreadTerminated}
	default:
		return ThreadInfo{ID: tid, State: ThreadRunning}
	}
}

func (procSystem) ImagePath(pid uint32) (string, error) {
	target, err := os.Readlink(filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10), "exe"))
	if err != nil {
		return "", fmt.Errorf("resolve image of %d: %w", pid, err)
	}
	return strings.TrimSuffix(target, " (deleted)"), nil
}

func (procSystem) ShowMainWindow(pid uint32, _ WindowCommand) error {
	return fmt.Errorf("window commands are not supported on this platform (pid %d)", pid)
}

func (procSystem) Terminate(pid uint32) error {
	if err := syscall.Kill(int(pid), syscall.SIGKILL); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
