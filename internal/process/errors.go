package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTarget is returned when an operation is given a target without a name.
var ErrInvalidTarget = errors.New("process target name is required")

// MissingToolError reports that the external suspend utility could not be
// found. Pause and Resume take no action when it is returned.
type MissingToolError struct {
	Tool     string
	Searched []string
}

func (e *MissingToolError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("suspend tool %q not found", e.Tool)
	}
	return fmt.Sprintf("suspend tool %q not found (searched: %s)", e.Tool, strings.Join(e.Searched, ", "))
}

// LaunchError reports that a target could be started neither from its known
// path nor by bare image name.
type LaunchError struct {
	Target string
	Path   string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("launch %s (path %s): %v", e.Target, e.Path, e.Err)
	}
	return fmt.Sprintf("launch %s: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IsMissingTool reports whether err is, or wraps, a *MissingToolError.
func IsMissingTool(err error) bool {
	var missing *MissingToolError
	return errors.As(err, &missing)
}
