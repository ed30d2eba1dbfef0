package process

// ProcessInfo is one entry of an OS process enumeration.
type ProcessInfo struct {
	PID uint32
	// Image is the executable file name as reported by the OS, e.g. "game.exe".
	Image string
}

// ThreadRunState mirrors the kernel thread scheduling state (KTHREAD_STATE).
type ThreadRunState uint32

const (
	ThreadInitialized ThreadRunState = iota
	ThreadReady
	ThreadRunning
	ThreadStandby
	ThreadTerminated
	ThreadWaiting
	ThreadTransition
	ThreadDeferredReady
)

// WaitReason mirrors KWAIT_REASON. Only the values the controller inspects
// are named.
type WaitReason uint32

const (
	WaitExecutive      WaitReason = 0
	WaitDelayExecution WaitReason = 4
	WaitSuspended      WaitReason = 5
	WaitUserRequest    WaitReason = 6
)

// ThreadInfo is the scheduling state of one execution thread.
type ThreadInfo struct {
	ID         uint32
	State      ThreadRunState
	WaitReason WaitReason
}

// Suspended reports whether the thread is waiting with a suspended wait reason.
func (t ThreadInfo) Suspended() bool {
	return t.State == ThreadWaiting && t.WaitReason == WaitSuspended
}

// WindowCommand is a ShowWindow command applied to a target's main window.
type WindowCommand int32

const (
	WindowMinimize WindowCommand = 6 // SW_MINIMIZE
	WindowRestore  WindowCommand = 9 // SW_RESTORE
)

// System is the OS surface the controller needs. NewSystem returns the
// implementation for the running platform; tests substitute fakes.
type System interface {
	// Processes enumerates every live process.
	Processes() ([]ProcessInfo, error)
	// Threads returns the threads of pid. An error or an empty result means
	// the state could not be determined.
	Threads(pid uint32) ([]ThreadInfo, error)
	// ImagePath returns the full executable path of pid.
	ImagePath(pid uint32) (string, error)
	// ShowMainWindow applies cmd to the main top-level window of pid.
	ShowMainWindow(pid uint32, cmd WindowCommand) error
	// Terminate force-terminates pid.
	Terminate(pid uint32) error
}
