package process

import (
	"errors"
	"os/exec"
	"sync"
	"testing"
)

type windowCall struct {
	pid uint32
	cmd WindowCommand
}

// fakeSystem is an in-memory System. All fields may be set directly by tests.
type fakeSystem struct {
	mu         sync.Mutex
	procs      []ProcessInfo
	procErr    error
	threads    map[uint32][]ThreadInfo
	threadErr  error
	paths      map[uint32]string
	windowErr  error
	windows    []windowCall
	terminated []uint32
	events     *[]string
}

func (f *fakeSystem) Processes() ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.procErr != nil {
		return nil, f.procErr
	}
	return append([]ProcessInfo(nil), f.procs...), nil
}

func (f *fakeSystem) Threads(pid uint32) ([]ThreadInfo, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.threads[pid], nil
}

func (f *fakeSystem) ImagePath(pid uint32) (string, error) {
	path, ok := f.paths[pid]
	if !ok {
		return "", errors.New("access denied")
	}
	return path, nil
}

func (f *fakeSystem) ShowMainWindow(pid uint32, cmd WindowCommand) error {
	f.windows = append(f.windows, windowCall{pid: pid, cmd: cmd})
	if f.events != nil {
		*f.events = append(*f.events, "window")
	}
	return f.windowErr
}

func (f *fakeSystem) Terminate(pid uint32) error {
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakeSystem) addProcess(p ProcessInfo) {
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
}

// stubStartDetached replaces the child-process starter for the duration of t.
func stubStartDetached(t *testing.T, fn func(cmd *exec.Cmd) error) {
	t.Helper()
	original := startDetachedFn
	startDetachedFn = fn
	t.Cleanup(func() {
		startDetachedFn = original
	})
}

func suspendedThreads(ids ...uint32) []ThreadInfo {
	threads := make([]ThreadInfo, 0, len(ids))
	for _, id := range ids {
		threads = append(threads, ThreadInfo{ID: id, State: ThreadWaiting, WaitReason: WaitSuspended})
	}
	return threads
}
