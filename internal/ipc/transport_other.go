//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var socketNamePattern = regexp.MustCompile(`^gamepause-[a-zA-Z0-9._-]{1,128}\.sock$`)

const defaultPipePrefix = "gamepause-"

func defaultPipeName(username string) string {
	return filepath.Join(socketDir(), defaultPipePrefix+username+".sock")
}

func socketDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return dir
	}
	return os.TempDir()
}

func validPipeName(name string) bool {
	return filepath.IsAbs(name) && socketNamePattern.MatchString(filepath.Base(name))
}

// listenPipe listens on a unix socket only the current user may open. A
// stale socket file left by a crashed instance is replaced.
func listenPipe(pipeName string) (net.Listener, error) {
	if info, err := os.Lstat(pipeName); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return nil, fmt.Errorf("%s exists and is not a socket", pipeName)
		}
		if conn, dialErr := net.DialTimeout("unix", pipeName, 200*time.Millisecond); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s is in use", pipeName)
		}
		if rmErr := os.Remove(pipeName); rmErr != nil {
			return nil, fmt.Errorf("remove stale socket: %w", rmErr)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	ln, err := net.Listen("unix", pipeName)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(pipeName, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return ln, nil
}

func dialPipe(pipeName string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", pipeName, timeout)
}
