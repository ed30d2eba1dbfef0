// Package singleinstance keeps one running controller per user: a named
// mutex on Windows, an flock(2) lock file elsewhere.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")
