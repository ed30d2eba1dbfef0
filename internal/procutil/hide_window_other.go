//go:build !windows

package procutil

import (
	"os/exec"
	"syscall"
)

// HideWindow is a no-op on non-Windows platforms.
func HideWindow(_ *exec.Cmd) {}

// Detach starts cmd in its own process group so terminal signals sent to
// the controller do not reach it.
func Detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
