// Package workerutil runs the controller's long-lived goroutines (poller,
// hotkey pump, config watcher) with panic recovery and restart.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	// defaultMaxRetries at the default backoff spans roughly 30 seconds.
	defaultMaxRetries = 10
)

// RecoveryOptions configures RunWithPanicRecovery. Zero or negative numeric
// fields select the defaults; nil callbacks are skipped. MaxRetries of 1
// runs the worker once and reports OnFatal on the first panic.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic is called after each recovered panic, before the backoff wait.
	// attempt is 1-based.
	OnPanic func(worker string, attempt int)

	// OnFatal is called once the worker is stopped for good.
	OnFatal func(worker string, maxRetries int)

	// IsShutdown stops the restart loop while the controller tears down.
	IsShutdown func() bool
}

// applyDefaults returns a copy of opts with defaults filled in and
// MaxBackoff raised to at least InitialBackoff.
func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		slog.Debug("[DEBUG-WORKER] recovery option out of range, using default",
			"field", "InitialBackoff", "value", opts.InitialBackoff, "default", defaultInitialBackoff)
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		slog.Debug("[DEBUG-WORKER] recovery option out of range, using default",
			"field", "MaxBackoff", "value", opts.MaxBackoff, "default", defaultMaxBackoff)
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		slog.Debug("[DEBUG-WORKER] recovery option out of range, using default",
			"field", "MaxRetries", "value", opts.MaxRetries, "default", defaultMaxRetries)
		opts.MaxRetries = defaultMaxRetries
	}

	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[DEBUG-PANIC] MaxBackoff < InitialBackoff is contradictory, using InitialBackoff as MaxBackoff",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}

	return opts
}

// RunWithPanicRecovery runs fn in a goroutine tracked by wg. A panic is
// logged with its stack and fn is restarted after an exponential backoff,
// up to MaxRetries times. A normal return or a cancelled ctx ends the
// worker.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()

	wg.Go(func() {
		runRecoveryLoop(ctx, name, fn, opts)
	})
}

// runRecoveryLoop is the restart loop of RunWithPanicRecovery.
func runRecoveryLoop(
	ctx context.Context,
	name string,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	restartDelay := opts.InitialBackoff

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[DEBUG-PANIC] background goroutine recovered from panic",
						"worker", name,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					panicked = true
				}
			}()
			fn(ctx)
		}()

		if !panicked || ctx.Err() != nil {
			return
		}

		// OnPanic is not called during shutdown; the panic is already logged.
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[DEBUG-PANIC] worker shutdown detected, stopping restart",
				"worker", name,
			)
			return
		}

		slog.Warn("[DEBUG-PANIC] restarting worker after panic",
			"worker", name,
			"restartDelay", restartDelay,
			"attempt", attempt+1,
		)

		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt+1)
		}

		// No wait before OnFatal.
		if attempt == opts.MaxRetries-1 {
			break
		}

		restartTimer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			restartTimer.Stop()
			return
		case <-restartTimer.C:
		}

		restartDelay = nextBackoff(restartDelay, opts.MaxBackoff)
	}

	slog.Error("[DEBUG-PANIC] worker exceeded max retries, giving up",
		"worker", name,
		"maxRetries", opts.MaxRetries,
	)

	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// nextBackoff doubles current, capped at maxBackoff, guarding overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
