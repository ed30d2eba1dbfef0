// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"
	"time"
)

// WaitFor polls cond every 10ms until it returns true or timeout expires.
// It reports whether cond was met.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return cond()
		}
	}
}
