package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gamepause/internal/config"
	"gamepause/internal/hotkeys"
	"gamepause/internal/ipc"
	"gamepause/internal/pathstore"
	"gamepause/internal/process"
	"gamepause/internal/statusfeed"
	"gamepause/internal/workerutil"
)

var (
	newProcessSystemFn  = process.NewSystem
	hotkeyTargetFactory = hotkeys.PlatformTarget
	openPathStoreFn     = pathstore.Open
	watchConfigFn       = config.Watch
	newPipeServerFn     = func(name string, executor ipc.CommandExecutor) pipeServer {
		return ipc.NewPipeServer(name, executor)
	}
)

const (
	shutdownWaitTimeout = 10 * time.Second
	storeOpenTimeout    = 5 * time.Second
)

// Hotkey registration pacing. A registration that fails because the target
// is not ready is re-attempted from the control loop every
// hotkeyRetryInterval, each attempt bounded by hotkeyRetryTimeout.
var (
	hotkeyRegisterTimeout = 5 * time.Second
	hotkeyRetryInterval   = 2 * time.Second
	hotkeyRetryTimeout    = 500 * time.Millisecond
)

func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	for _, message := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[WARN-CONFIG] " + message)
	}
	cfg := a.loadConfig()
	a.setConfigSnapshot(cfg)

	a.initController(cfg)

	a.hotkeys = hotkeys.NewManager(hotkeyTargetFactory)
	a.registerHotkeys(cfg, hotkeyRegisterTimeout)

	a.startStatusFeed(cfg)
	a.startPipeServer()
	a.startWorkers()

	slog.Info("[config] controller started",
		"config", a.configPath,
		"selected", cfg.Selected,
		"targets", len(cfg.Targets),
	)
}

// loadConfig reads the config file, creating it with defaults when missing.
// Load and parse failures are non-fatal: the controller runs with defaults
// and the warning is shown by the status command.
func (a *App) loadConfig() config.Config {
	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		slog.Warn("[WARN-CONFIG] failed to load config, running with defaults", "path", a.configPath, "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

// initController opens the learned-path store and builds the controller.
// A store that cannot be opened only disables persistence.
func (a *App) initController(cfg config.Config) {
	if a.sys == nil {
		a.sys = newProcessSystemFn()
	}
	ctx, cancel := context.WithTimeout(a.ctx, storeOpenTimeout)
	defer cancel()

	var persisted process.PathStore
	dbPath := config.PathDBPath(cfg, a.configPath)
	store, err := openPathStoreFn(ctx, dbPath)
	if err != nil {
		slog.Warn("[process] executable path store unavailable, learned paths will not persist", "path", dbPath, "error", err)
	} else {
		a.store = store
		persisted = store
	}
	a.controller = a.newController(cfg, process.NewRegistry(ctx, persisted))
}

func (a *App) newController(cfg config.Config, registry *process.Registry) *process.Controller {
	return process.NewController(process.Options{
		System:   a.sys,
		Tool:     process.SuspendTool{Name: cfg.SuspendTool},
		Registry: registry,
	})
}

func (a *App) startStatusFeed(cfg config.Config) {
	if !cfg.StatusFeed.Enabled {
		slog.Debug("[DEBUG-WS] status feed disabled")
		return
	}
	feed := statusfeed.NewHub(statusfeed.HubOptions{Addr: cfg.StatusFeed.Addr})
	if err := feed.Start(a.ctx); err != nil {
		slog.Warn("[DEBUG-WS] status feed unavailable", "addr", cfg.StatusFeed.Addr, "error", err)
		return
	}
	a.feed = feed
	a.warnings.OnAdd(a.enqueueWarning)
}

func (a *App) startPipeServer() {
	server := newPipeServerFn(a.pipeName, ipc.ExecutorFunc(a.Execute))
	if err := server.Start(); err != nil {
		slog.Error("[ipc] control pipe failed to start; CLI commands will act without the controller",
			"pipe", a.pipeName, "error", err)
		return
	}
	a.pipeServer = server
	slog.Info("[ipc] control pipe listening", "pipe", server.PipeName())
}

func (a *App) startWorkers() {
	opts := workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
		OnFatal: func(worker string, maxRetries int) {
			slog.Error("[DEBUG-PANIC] worker stopped after repeated panics", "worker", worker, "retries", maxRetries)
		},
	}
	workerutil.RunWithPanicRecovery(a.ctx, "control-loop", &a.bgWG, a.runControlLoop, opts)
	workerutil.RunWithPanicRecovery(a.ctx, "hotkey-pump", &a.bgWG, func(ctx context.Context) {
		_ = a.hotkeys.Run(ctx)
	}, opts)
	workerutil.RunWithPanicRecovery(a.ctx, "config-watcher", &a.bgWG, a.watchConfig, opts)
	if a.feed != nil {
		workerutil.RunWithPanicRecovery(a.ctx, "warning-forwarder", &a.bgWG, a.forwardWarnings, opts)
	}
}

// watchConfig hands reloaded configs to the control loop. Only the newest
// pending config is kept.
func (a *App) watchConfig(ctx context.Context) {
	err := watchConfigFn(ctx, a.configPath, func(cfg config.Config) {
		for {
			select {
			case a.configUpdates <- cfg:
				return
			default:
			}
			select {
			case <-a.configUpdates:
			default:
			}
		}
	})
	if err != nil && ctx.Err() == nil {
		slog.Warn("[WARN-CONFIG] config hot reload disabled", "path", a.configPath, "error", err)
	}
}

func (a *App) shutdown() error {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.pipeServer != nil {
		errs = append(errs, a.pipeServer.Stop())
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		slog.Warn("[DEBUG-PANIC] background workers did not stop in time", "timeout", shutdownWaitTimeout)
	}
	a.warnings.OnAdd(nil)
	if a.hotkeys != nil {
		errs = append(errs, a.hotkeys.Close())
	}
	if a.feed != nil {
		errs = append(errs, a.feed.Stop())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("[config] shutdown completed with errors", "error", err)
	} else {
		slog.Info("[config] controller stopped")
	}
	return err
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks
	// indefinitely; this is only used while the process is exiting.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// closeStore releases the path store; used by one-shot local execution.
func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		slog.Debug("[DEBUG-PROCESS] path store close failed", "error", err)
	}
	a.store = nil
}
