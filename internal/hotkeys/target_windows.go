//go:build windows

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey     = user32DLL.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32DLL.NewProc("UnregisterHotKey")
	procGetMessageW        = user32DLL.NewProc("GetMessageW")
	procTranslateMessage   = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW   = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW       = user32DLL.NewProc("PeekMessageW")
)

// PlatformTarget builds the registration target for this platform.
var PlatformTarget TargetFactory = NewWindowsTarget

const (
	wmQuit     = 0x0012
	wmApp      = 0x8000
	wmRunOps   = wmApp + 1
	pmNoRemove = 0x0000

	opTimeout   = 2 * time.Second
	stopTimeout = 2 * time.Second
)

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
// Field order and types must not be changed -- the layout must match
// the Win32 binary layout on both 32-bit and 64-bit Windows.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32 // reserved by Windows; required for correct struct size
}

type loopReady struct {
	threadID uint32
	err      error
}

// loopOp is a registration change executed on the loop thread. Thread
// hotkeys (hWnd 0) are owned by the registering thread, so RegisterHotKey
// and UnregisterHotKey must run there.
type loopOp struct {
	register bool
	id       int32
	mods     Modifier
	key      VKey
	result   chan error
}

// messageLoop is a running message pump. When non-nil in windowsTarget,
// all fields are valid.
type messageLoop struct {
	threadID uint32
	ops      chan loopOp
	doneCh   chan struct{}
}

type windowsTarget struct {
	post func(Message) bool

	mu   sync.Mutex
	loop *messageLoop
}

// NewWindowsTarget returns a target that registers thread hotkeys on a
// dedicated OS-locked goroutine and posts WM_HOTKEY messages to post.
// The message loop starts on the first registration.
func NewWindowsTarget(post func(Message) bool) Target {
	return &windowsTarget{post: post}
}

func (t *windowsTarget) Register(id int32, mods Modifier, key VKey) error {
	return t.submit(loopOp{register: true, id: id, mods: mods, key: key})
}

func (t *windowsTarget) Unregister(id int32) error {
	t.mu.Lock()
	running := t.loop != nil
	t.mu.Unlock()
	if !running {
		return nil
	}
	return t.submit(loopOp{id: id})
}

func (t *windowsTarget) submit(op loopOp) error {
	loop, err := t.ensureLoop()
	if err != nil {
		return err
	}
	op.result = make(chan error, 1)
	select {
	case loop.ops <- op:
	default:
		return fmt.Errorf("%w: operation queue full", ErrTargetNotReady)
	}
	if err := postThreadMessage(loop.threadID, wmRunOps); err != nil {
		return fmt.Errorf("%w: wake message loop: %v", ErrTargetNotReady, err)
	}

	timer := time.NewTimer(opTimeout)
	defer timer.Stop()
	select {
	case err := <-op.result:
		return err
	case <-loop.doneCh:
		return fmt.Errorf("%w: message loop exited", ErrTargetNotReady)
	case <-timer.C:
		return fmt.Errorf("hotkey operation timed out (id=%d)", op.id)
	}
}

func (t *windowsTarget) ensureLoop() (*messageLoop, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop != nil {
		select {
		case <-t.loop.doneCh:
			t.loop = nil
		default:
			return t.loop, nil
		}
	}

	// Pre-check DLL availability so that failures produce clean errors
	// instead of panics from LazyProc.Call.
	if err := user32DLL.Load(); err != nil {
		return nil, fmt.Errorf("user32.dll is unavailable: %w", err)
	}

	readyCh := make(chan loopReady, 1)
	loop := &messageLoop{ops: make(chan loopOp, 8), doneCh: make(chan struct{})}
	go runMessageLoop(loop.ops, t.post, readyCh, loop.doneCh)

	ready := <-readyCh
	if ready.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetNotReady, ready.err)
	}
	loop.threadID = ready.threadID
	t.loop = loop
	return loop, nil
}

// Close stops the message loop. Hotkeys still held are released by the
// loop on exit.
func (t *windowsTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop == nil {
		return nil
	}
	loop := t.loop
	t.loop = nil

	stopErr := postThreadMessage(loop.threadID, wmQuit)

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-loop.doneCh:
	case <-timer.C:
		slog.Warn("[hotkey] message loop stop timed out, goroutine/thread may leak", "threadID", loop.threadID)
		stopErr = errors.Join(stopErr, fmt.Errorf("hotkey message loop stop timed out (threadID=%d)", loop.threadID))
	}
	return stopErr
}

func runMessageLoop(ops chan loopOp, post func(Message) bool, readyCh chan<- loopReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID := windows.GetCurrentThreadId()
	if threadID == 0 {
		readyCh <- loopReady{err: errors.New("GetCurrentThreadId returned 0")}
		return
	}

	// PeekMessageW forces Windows to create the thread message queue so that
	// PostThreadMessageW can deliver wake-ups and WM_QUIT. Queue creation is a
	// side-effect of the call; a zero return only means no message is pending.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Debug("[hotkey] PeekMessageW for queue init returned error", "error", peekErr)
	}

	held := map[int32]struct{}{}
	defer func() {
		for id := range held {
			if err := unregisterHotKey(id); err != nil {
				slog.Error("[hotkey] unregisterHotKey on loop exit failed (resource leak)", "error", err, "id", id)
			}
		}
		drainOps(ops)
	}()

	readyCh <- loopReady{threadID: threadID}

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[hotkey] GetMessageW returned error, exiting loop", "error", lastErr)
			return
		case 0:
			slog.Debug("[hotkey] message loop received WM_QUIT, exiting normally")
			return
		}

		switch msg.message {
		case WMHotkey:
			post(Message{Code: msg.message, WParam: msg.wParam, LParam: msg.lParam})
			continue
		case wmRunOps:
			runPendingOps(ops, held)
			continue
		}

		// Return values are informational for a window-less thread loop.
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func runPendingOps(ops chan loopOp, held map[int32]struct{}) {
	for {
		select {
		case op := <-ops:
			op.result <- applyOp(op, held)
		default:
			return
		}
	}
}

func applyOp(op loopOp, held map[int32]struct{}) error {
	if op.register {
		if _, ok := held[op.id]; ok {
			if err := unregisterHotKey(op.id); err != nil {
				slog.Debug("[hotkey] releasing stale registration failed", "id", op.id, "error", err)
			}
			delete(held, op.id)
		}
		if err := registerHotKey(op.id, uint32(op.mods), uint32(op.key)); err != nil {
			return err
		}
		held[op.id] = struct{}{}
		return nil
	}
	if _, ok := held[op.id]; !ok {
		return nil
	}
	delete(held, op.id)
	return unregisterHotKey(op.id)
}

func drainOps(ops chan loopOp) {
	for {
		select {
		case op := <-ops:
			op.result <- fmt.Errorf("%w: message loop exited", ErrTargetNotReady)
		default:
			return
		}
	}
}

func registerHotKey(id int32, modifiers uint32, key uint32) error {
	res, _, err := procRegisterHotKey.Call(0, uintptr(id), uintptr(modifiers), uintptr(key))
	if res != 0 {
		return nil
	}
	if errors.Is(err, windows.ERROR_HOTKEY_ALREADY_REGISTERED) {
		return fmt.Errorf("%w: %v", ErrHotkeyInUse, err)
	}
	if err == syscall.Errno(0) {
		return errors.New("RegisterHotKey failed")
	}
	return err
}

func unregisterHotKey(id int32) error {
	res, _, err := procUnregisterHotKey.Call(0, uintptr(id))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("UnregisterHotKey failed")
	}
	return err
}

func postThreadMessage(threadID uint32, message uint32) error {
	if threadID == 0 {
		return errors.New("cannot post message: threadID is 0")
	}
	res, _, err := procPostThreadMessageW.Call(uintptr(threadID), uintptr(message), 0, 0)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return err
}
