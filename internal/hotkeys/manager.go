package hotkeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WMHotkey is the Win32 WM_HOTKEY message code.
const WMHotkey uint32 = 0x0312

const (
	inboundBuffer = 64
	triggerBuffer = 16
)

// Retry pacing for targets that are not ready. Tests shorten these.
var (
	retryInitialDelay = 50 * time.Millisecond
	retryMaxDelay     = 2 * time.Second
)

// Message is a raw OS input message as delivered by the message pump.
type Message struct {
	Code   uint32
	WParam uintptr
	LParam uintptr
}

// Trigger is emitted when a registered hotkey fires.
type Trigger struct {
	// ID correlates the trigger with the action it causes in logs.
	ID     string
	Action Action
	At     time.Time
}

// Target performs OS-level registration. Implementations deliver fired
// hotkeys through the post function handed to their TargetFactory.
type Target interface {
	Register(id int32, mods Modifier, key VKey) error
	Unregister(id int32) error
	Close() error
}

// TargetFactory creates a Target bound to the manager's inbound queue.
type TargetFactory func(post func(Message) bool) Target

// RegistrationResult reports per-action outcomes of Register.
type RegistrationResult struct {
	// Registered maps every successfully registered action to its binding.
	Registered map[Action]Binding
	// Failures lists failed actions in registration order.
	Failures []*RegistrationError
}

// Succeeded reports whether action was registered.
func (r RegistrationResult) Succeeded(action Action) bool {
	_, ok := r.Registered[action]
	return ok
}

// Failure returns the failure for action, or nil.
func (r RegistrationResult) Failure(action Action) *RegistrationError {
	for _, f := range r.Failures {
		if f.Action == action {
			return f
		}
	}
	return nil
}

// NotReady reports whether any action failed only because the target was
// not ready yet. Such failures are worth another attempt later.
func (r RegistrationResult) NotReady() bool {
	for _, f := range r.Failures {
		if errors.Is(f.Err, ErrTargetNotReady) {
			return true
		}
	}
	return false
}

// Manager owns the registered hotkeys of one application instance.
//
// Register/Unregister may be called from any goroutine. Fired hotkeys travel
// Target -> Post -> Run -> Triggers; nothing on that path blocks the OS
// message pump.
type Manager struct {
	target   Target
	inbound  chan Message
	triggers chan Trigger
	now      func() time.Time

	// regMu serialises Register calls. mu guards the maps and is released
	// while a registration waits for the target to become ready.
	regMu  sync.Mutex
	mu     sync.Mutex
	held   map[int32]Action
	active map[Action]Binding
	closed bool
}

// NewManager creates a manager whose registrations go through the target
// built by factory. A nil factory selects the platform target.
func NewManager(factory TargetFactory) *Manager {
	if factory == nil {
		factory = PlatformTarget
	}
	m := &Manager{
		inbound:  make(chan Message, inboundBuffer),
		triggers: make(chan Trigger, triggerBuffer),
		now:      time.Now,
		held:     map[int32]Action{},
		active:   map[Action]Binding{},
	}
	m.target = factory(m.Post)
	return m
}

// Register replaces every held registration with bindings. Each bound
// action is parsed and registered independently; failures are reported in
// the result and never stop the remaining actions. When the target is not
// ready Register retries with backoff until ctx is done; Dispatch and
// Unregister stay available while it waits.
func (m *Manager) Register(ctx context.Context, bindings Bindings) RegistrationResult {
	result := RegistrationResult{Registered: map[Action]Binding{}}

	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		for _, action := range Actions() {
			if combo := bindings[action]; combo != "" {
				result.Failures = append(result.Failures, &RegistrationError{
					Action: action, Combo: combo, Cause: CauseOS, Err: ErrManagerClosed,
				})
			}
		}
		return result
	}
	if err := m.unregisterLocked(); err != nil {
		slog.Warn("[hotkey] releasing previous hotkeys failed", "error", err)
	}

	claimed := map[string]Action{}
	for _, action := range Actions() {
		combo := bindings[action]
		if combo == "" {
			continue
		}
		fail := func(cause Cause, err error) {
			regErr := &RegistrationError{Action: action, Combo: combo, Cause: cause, Err: err}
			result.Failures = append(result.Failures, regErr)
			if errors.Is(err, ErrTargetNotReady) {
				// Callers decide whether to retry and how loudly to report.
				slog.Debug("[hotkey] registration deferred, target not ready", "action", action, "combo", combo)
				return
			}
			slog.Warn("[hotkey] registration failed", "action", action, "combo", combo, "cause", cause, "error", err)
		}
		if m.closed {
			// Closed while an earlier action waited for the target.
			fail(CauseOS, ErrManagerClosed)
			continue
		}

		binding, err := ParseBinding(combo)
		if err != nil {
			fail(CauseInvalid, err)
			continue
		}
		if owner, ok := claimed[binding.Normalized()]; ok {
			fail(CauseConflict, fmt.Errorf("same combination as %s", owner))
			continue
		}
		claimed[binding.Normalized()] = action
		if binding.Modifiers() == 0 && binding.Key() == vkF12 {
			fail(CauseReserved, nil)
			continue
		}

		id := action.ID()
		if err := m.registerWithRetry(ctx, id, binding); err != nil {
			if errors.Is(err, ErrHotkeyInUse) {
				fail(CauseInUse, err)
			} else {
				fail(CauseOS, err)
			}
			continue
		}
		m.held[id] = action
		m.active[action] = binding
		result.Registered[action] = binding
		slog.Debug("[hotkey] registered", "action", action, "binding", binding.Normalized(), "id", id)
	}
	return result
}

// registerWithRetry is called with m.mu held and returns with it held. The
// lock is released while waiting between attempts.
func (m *Manager) registerWithRetry(ctx context.Context, id int32, binding Binding) error {
	delay := retryInitialDelay
	for {
		err := m.target.Register(id, binding.Modifiers()|ModNoRepeat, binding.Key())
		if !errors.Is(err, ErrTargetNotReady) {
			return err
		}
		slog.Debug("[hotkey] target not ready, retrying", "id", id, "delay", delay)

		m.mu.Unlock()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.mu.Lock()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		m.mu.Lock()
		if m.closed {
			return ErrManagerClosed
		}
		delay = min(delay*2, retryMaxDelay)
	}
}

// Unregister releases every held hotkey. Calling it with nothing held is a
// no-op. Release failures are logged and returned joined; the ids are
// forgotten either way.
func (m *Manager) Unregister() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unregisterLocked()
}

func (m *Manager) unregisterLocked() error {
	var errs []error
	for id, action := range m.held {
		if err := m.target.Unregister(id); err != nil {
			slog.Warn("[hotkey] unregister failed", "action", action, "id", id, "error", err)
			errs = append(errs, fmt.Errorf("unregister %s: %w", action, err))
		}
	}
	clear(m.held)
	clear(m.active)
	return errors.Join(errs...)
}

// ActiveBindings returns the currently registered bindings.
func (m *Manager) ActiveBindings() map[Action]Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.active)
}

// Dispatch maps a raw message to the action whose hotkey fired.
func (m *Manager) Dispatch(msg Message) (Action, bool) {
	if msg.Code != WMHotkey {
		return "", false
	}
	id := int32(msg.WParam)
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.held[id]
	return action, ok
}

// Post queues a raw message for Run without blocking. It reports false when
// the queue is full and the message was dropped.
func (m *Manager) Post(msg Message) bool {
	select {
	case m.inbound <- msg:
		return true
	default:
		slog.Warn("[hotkey] inbound queue full, dropping message", "code", msg.Code)
		return false
	}
}

// Triggers returns the channel of fired hotkeys.
func (m *Manager) Triggers() <-chan Trigger {
	return m.triggers
}

// Run dispatches queued messages until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.inbound:
			action, ok := m.Dispatch(msg)
			if !ok {
				continue
			}
			trigger := Trigger{ID: uuid.NewString(), Action: action, At: m.now()}
			select {
			case m.triggers <- trigger:
				slog.Debug("[hotkey] trigger emitted", "action", action, "trigger", trigger.ID)
			default:
				slog.Warn("[hotkey] trigger consumer is lagging, dropping trigger", "action", action)
			}
		}
	}
}

// Close releases every hotkey and shuts the target down. Subsequent
// Register calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return errors.Join(m.unregisterLocked(), m.target.Close())
}
