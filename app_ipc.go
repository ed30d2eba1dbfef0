package main

import (
	"context"
	"log/slog"
	"time"

	"gamepause/internal/cli"
	"gamepause/internal/ipc"
)

// ipcActionTimeout bounds how long a pipe client waits for the control loop.
const ipcActionTimeout = 10 * time.Second

// Execute implements ipc.CommandExecutor by queueing req on the control
// loop and waiting for its response.
func (a *App) Execute(ctx context.Context, req ipc.Request) ipc.Response {
	if a.shuttingDown.Load() {
		return ipc.ErrorResponse(req.ID, "controller is shutting down")
	}
	ctx, cancel := context.WithTimeout(ctx, ipcActionTimeout)
	defer cancel()

	reply := make(chan ipc.Response, 1)
	action := actionRequest{
		ID:      req.ID,
		Command: req.Command,
		Target:  req.Target,
		Source:  sourceIPC,
		reply:   reply,
	}
	select {
	case a.actions <- action:
	case <-ctx.Done():
		slog.Warn("[ipc] control loop busy, request dropped", "id", req.ID, "command", req.Command)
		return ipc.ErrorResponse(req.ID, "controller is busy")
	case <-a.ctx.Done():
		return ipc.ErrorResponse(req.ID, "controller is shutting down")
	}

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		slog.Warn("[ipc] timed out waiting for command", "id", req.ID, "command", req.Command)
		return ipc.ErrorResponse(req.ID, "timed out waiting for the controller")
	case <-a.ctx.Done():
		return ipc.ErrorResponse(req.ID, "controller is shutting down")
	}
}

// executeLocal runs one command without a controller: hotkeys, pipe and
// feed stay down and the command is applied on the calling goroutine.
func executeLocal(ctx context.Context, opts cli.RunOptions, req ipc.Request) ipc.Response {
	app := NewApp(opts)
	app.ctx, app.cancel = context.WithCancel(ctx)
	defer app.cancel()

	app.setConfigSnapshot(app.loadConfig())
	app.initController(app.getConfigSnapshot())
	defer app.closeStore()

	return app.apply(actionRequest{
		ID:      req.ID,
		Command: req.Command,
		Target:  req.Target,
		Source:  sourceLocal,
	})
}
