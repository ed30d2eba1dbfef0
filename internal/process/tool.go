package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultSuspendTool is the Sysinternals suspend utility the controller
// shells out to.
const DefaultSuspendTool = "PsSuspend.exe"

// resumeFlag switches the suspend utility into resume mode.
const resumeFlag = "-r"

var (
	getwdFn      = os.Getwd
	executableFn = os.Executable
)

// SuspendTool locates and invokes the external suspend/resume utility.
type SuspendTool struct {
	// Name is the utility file name or an absolute path.
	Name string
	// Dirs overrides the search directories. When empty, the working
	// directory and then the application's base directory are searched.
	Dirs []string
}

// Locate returns the path of the utility or a *MissingToolError.
func (t SuspendTool) Locate() (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = DefaultSuspendTool
	}
	if filepath.IsAbs(name) {
		if isRegularFile(name) {
			return name, nil
		}
		return "", &MissingToolError{Tool: name, Searched: []string{filepath.Dir(name)}}
	}

	dirs := t.Dirs
	if len(dirs) == 0 {
		dirs = defaultToolDirs()
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}
	return "", &MissingToolError{Tool: name, Searched: dirs}
}

// Command builds the utility invocation for imageName. The caller owns
// stream redirection and process start.
func (t SuspendTool) Command(path string, resume bool, imageName string) *exec.Cmd {
	if resume {
		return exec.Command(path, resumeFlag, imageName)
	}
	return exec.Command(path, imageName)
}

func defaultToolDirs() []string {
	var dirs []string
	if wd, err := getwdFn(); err == nil {
		dirs = append(dirs, wd)
	}
	if exe, err := executableFn(); err == nil {
		base := filepath.Dir(exe)
		if len(dirs) == 0 || !strings.EqualFold(filepath.Clean(dirs[0]), filepath.Clean(base)) {
			dirs = append(dirs, base)
		}
	}
	return dirs
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
