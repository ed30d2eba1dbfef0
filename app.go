package main

import (
	"context"
	"sync"
	"sync/atomic"

	"gamepause/internal/cli"
	"gamepause/internal/config"
	"gamepause/internal/hotkeys"
	"gamepause/internal/ipc"
	"gamepause/internal/pathstore"
	"gamepause/internal/process"
	"gamepause/internal/sessionlog"
	"gamepause/internal/statusfeed"
)

const (
	actionQueueSize  = 16
	warningQueueSize = 32
)

// App is the running controller. It owns the hotkeys, the process
// controller, the control pipe and the status feed.
type App struct {
	configPath string
	pipeName   string
	warnings   *sessionlog.Ring

	// Runtime context lifecycle.
	ctx    context.Context
	cancel context.CancelFunc

	// cfgMu protects cfg. Independent of regMu; never hold both.
	cfgMu sync.RWMutex
	cfg   config.Config

	// Backend services. controller and sys are confined to the control
	// loop once workers start.
	sys        process.System
	controller *process.Controller
	store      *pathstore.Store
	hotkeys    *hotkeys.Manager
	feed       *statusfeed.Hub
	pipeServer pipeServer

	regMu        sync.Mutex
	registration hotkeys.RegistrationResult

	// Control loop inputs.
	actions       chan actionRequest
	configUpdates chan config.Config
	warningQueue  chan sessionlog.Entry

	shuttingDown atomic.Bool // set true at the start of shutdown(); checked by worker recovery loops
	bgWG         sync.WaitGroup
}

// pipeServer is the subset of *ipc.PipeServer the App uses.
type pipeServer interface {
	Start() error
	Stop() error
	PipeName() string
}

// NewApp creates the controller service. Nothing runs until startup.
func NewApp(opts cli.RunOptions) *App {
	warnings := opts.Warnings
	if warnings == nil {
		warnings = sessionlog.NewRing(sessionlog.DefaultRingSize)
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	pipeName := opts.PipeName
	if pipeName == "" {
		pipeName = ipc.DefaultPipeName()
	}
	return &App{
		configPath:    configPath,
		pipeName:      pipeName,
		warnings:      warnings,
		actions:       make(chan actionRequest, actionQueueSize),
		configUpdates: make(chan config.Config, 1),
		warningQueue:  make(chan sessionlog.Entry, warningQueueSize),
	}
}

// runController runs the controller until ctx is done.
func runController(ctx context.Context, opts cli.RunOptions) error {
	app := NewApp(opts)
	app.startup(ctx)
	<-app.ctx.Done()
	return app.shutdown()
}
