//go:build windows

package process

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const executableSuffix = ".exe"

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procShowWindowAsync = user32DLL.NewProc("ShowWindowAsync")
	procGetWindow       = user32DLL.NewProc("GetWindow")
)

const (
	gwOwner = 4

	// initialProcessInfoBuffer is large enough for a typical desktop session.
	// NtQuerySystemInformation reports the required size when it is not.
	initialProcessInfoBuffer = 512 * 1024
	maxProcessInfoBuffer     = 64 * 1024 * 1024
)

// systemThreadInformation mirrors SYSTEM_THREAD_INFORMATION. Entries follow
// each SYSTEM_PROCESS_INFORMATION record in the NtQuerySystemInformation
// buffer. Field order and types must match the native layout.
type systemThreadInformation struct {
	KernelTime      int64
	UserTime        int64
	CreateTime      int64
	WaitTime        uint32
	StartAddress    uintptr
	UniqueProcess   uintptr
	UniqueThread    uintptr
	Priority        int32
	BasePriority    int32
	ContextSwitches uint32
	ThreadState     uint32
	WaitReason      uint32
}

type windowsSystem struct{}

// NewSystem returns the Windows implementation backed by Toolhelp snapshots,
// NtQuerySystemInformation and user32.
func NewSystem() System {
	return windowsSystem{}
}

func (windowsSystem) Processes() ([]ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("create process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, fmt.Errorf("first process entry: %w", err)
	}

	var procs []ProcessInfo
	for {
		if entry.ProcessID != 0 {
			procs = append(procs, ProcessInfo{
				PID:   entry.ProcessID,
				Image: windows.UTF16ToString(entry.ExeFile[:]),
			})
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return procs, fmt.Errorf("next process entry: %w", err)
		}
	}
	return procs, nil
}

func (windowsSystem) Threads(pid uint32) ([]ThreadInfo, error) {
	buf, err := querySystemProcessInformation()
	if err != nil {
		return nil, err
	}

	offset := uintptr(0)
	for {
		if offset+unsafe.Sizeof(windows.SYSTEM_PROCESS_INFORMATION{}) > uintptr(len(buf)) {
			return nil, errors.New("process information buffer truncated")
		}
		spi := (*windows.SYSTEM_PROCESS_INFORMATION)(unsafe.Pointer(&buf[offset]))
		if uint32(spi.UniqueProcessID) == pid {
			return threadsOf(spi), nil
		}
		if spi.NextEntryOffset == 0 {
			break
		}
		offset += uintptr(spi.NextEntryOffset)
	}
	return nil, fmt.Errorf("process %d not present in system process information", pid)
}

func threadsOf(spi *windows.SYSTEM_PROCESS_INFORMATION) []ThreadInfo {
	if spi.NumberOfThreads == 0 {
		return nil
	}
	first := (*systemThreadInformation)(unsafe.Add(unsafe.Pointer(spi), unsafe.Sizeof(*spi)))
	raw := unsafe.Slice(first, spi.NumberOfThreads)
	threads := make([]ThreadInfo, 0, len(raw))
	for _, t := range raw {
		threads = append(threads, ThreadInfo{
			ID:         uint32(t.UniqueThread),
			State:      ThreadRunState(t.ThreadState),
			WaitReason: WaitReason(t.WaitReason),
		})
	}
	return threads
}

func querySystemProcessInformation() ([]byte, error) {
	size := uint32(initialProcessInfoBuffer)
	for {
		buf := make([]byte, size)
		var needed uint32
		err := windows.NtQuerySystemInformation(windows.SystemProcessInformation, unsafe.Pointer(&buf[0]), size, &needed)
		if err == nil {
			return buf, nil
		}
		if !errors.Is(err, windows.STATUS_INFO_LENGTH_MISMATCH) {
			return nil, fmt.Errorf("NtQuerySystemInformation: %w", err)
		}
		// The process list can grow between calls; leave headroom.
		next := needed + needed/4
		if next <= size {
			next = size * 2
		}
		if next > maxProcessInfoBuffer {
			return nil, fmt.Errorf("system process information exceeds %d bytes", maxProcessInfoBuffer)
		}
		size = next
	}
}

func (windowsSystem) ImagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	size := uint32(windows.MAX_PATH)
	for range 4 {
		buf := make([]uint16, size)
		n := size
		err := windows.QueryFullProcessImageName(h, 0, &buf[0], &n)
		if err == nil {
			return windows.UTF16ToString(buf[:n]), nil
		}
		if errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) && size < 32768 {
			size *= 2
			continue
		}
		return "", fmt.Errorf("query image name of %d: %w", pid, err)
	}
	return "", fmt.Errorf("query image name of %d: path too long", pid)
}

// mainWindowSearch carries EnumWindows state through the callback lParam.
type mainWindowSearch struct {
	pid  uint32
	hwnd windows.HWND
}

// enumMainWindowProc is created once: NewCallback slots are a finite
// process-wide resource.
var enumMainWindowProc = windows.NewCallback(func(hwnd windows.HWND, lparam uintptr) uintptr {
	search := (*mainWindowSearch)(unsafe.Pointer(lparam))
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid != search.pid {
		return 1
	}
	if !windows.IsWindowVisible(hwnd) {
		return 1
	}
	owner, _, _ := procGetWindow.Call(uintptr(hwnd), gwOwner)
	if owner != 0 {
		return 1
	}
	search.hwnd = hwnd
	return 0
})

func (windowsSystem) ShowMainWindow(pid uint32, cmd WindowCommand) error {
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	search := &mainWindowSearch{pid: pid}
	// EnumWindows reports failure when the callback stops early; only the
	// search result matters.
	_ = windows.EnumWindows(enumMainWindowProc, unsafe.Pointer(search))
	if search.hwnd == 0 {
		return fmt.Errorf("process %d has no main window", pid)
	}
	// ShowWindowAsync avoids blocking on a target whose UI thread is hung or
	// already suspended.
	procShowWindowAsync.Call(uintptr(search.hwnd), uintptr(cmd))
	return nil
}

func (windowsSystem) Terminate(pid uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
