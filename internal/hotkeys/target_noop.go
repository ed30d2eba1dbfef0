package hotkeys

import (
	"errors"
	"log/slog"
	"sync"
)

type noopTarget struct {
	mu     sync.Mutex
	held   map[int32]struct{}
	warned bool
}

// NewNoopTarget returns a target that accepts registrations but never
// fires. It backs platforms without global hotkeys.
func NewNoopTarget(func(Message) bool) Target {
	return &noopTarget{held: map[int32]struct{}{}}
}

func (t *noopTarget) Register(id int32, _ Modifier, key VKey) error {
	if id <= 0 || key == 0 {
		return errors.New("invalid hotkey registration")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.warned {
		slog.Warn("[hotkey] global hotkeys are not supported on this platform; bindings validated but will never fire")
		t.warned = true
	}
	t.held[id] = struct{}{}
	return nil
}

func (t *noopTarget) Unregister(id int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
	return nil
}

func (t *noopTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.held)
	return nil
}
