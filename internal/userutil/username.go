// Package userutil derives per-user names for the control pipe and the
// single-instance lock.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// lookupCurrentUser is replaced in tests.
var lookupCurrentUser = user.Current

// SanitizeUsername normalizes username-like values used in pipe/mutex names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// CurrentUsername returns the sanitized name of the user running the
// process. USERNAME (Windows) and USER (elsewhere) take precedence over the
// account database.
func CurrentUsername() string {
	for _, key := range []string{"USERNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return SanitizeUsername(v)
		}
	}
	if current, err := lookupCurrentUser(); err == nil {
		return SanitizeUsername(current.Username)
	}
	return SanitizeUsername("")
}

// ScopedName joins prefix and the current username, e.g. "gamepause-alice".
func ScopedName(prefix string) string {
	return prefix + "-" + CurrentUsername()
}
