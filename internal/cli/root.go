// Package cli provides the gamepause command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gamepause/internal/config"
	"gamepause/internal/ipc"
	"gamepause/internal/sessionlog"
)

// RunOptions is handed to the controller entry points.
type RunOptions struct {
	ConfigPath string
	PipeName   string
	// Warnings collects Warn+ log records for the status command and the
	// status feed.
	Warnings *sessionlog.Ring
}

// Runtime supplies the controller to the command tree.
type Runtime struct {
	// Run starts the controller and blocks until ctx is done.
	Run func(ctx context.Context, opts RunOptions) error
	// Local executes one control command when no controller is running.
	Local func(ctx context.Context, opts RunOptions, req ipc.Request) ipc.Response
}

// Command group IDs used to organize help output.
const (
	GroupControl = "control"
	GroupConfig  = "config"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	pipeName   string
	logLevel   string

	warnings *sessionlog.Ring
}

func (g *globalOptions) runOptions() RunOptions {
	configPath := g.configPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	return RunOptions{
		ConfigPath: configPath,
		PipeName:   g.pipeName,
		Warnings:   g.warnings,
	}
}

// silentExitError ends the process with code without printing anything
// further. The command has already reported its outcome.
type silentExitError struct {
	code int
}

func (e *silentExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func isSilentExit(err error) (int, bool) {
	var exitErr *silentExitError
	if errors.As(err, &exitErr) {
		return exitErr.code, true
	}
	return 0, false
}

// Execute runs the command tree and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute(rt Runtime) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(rt, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := isSilentExit(err); ok {
			return code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// newRootCommand builds the command tree writing to stdout and stderr.
func newRootCommand(rt Runtime, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{warnings: sessionlog.NewRing(sessionlog.DefaultRingSize)}

	root := &cobra.Command{
		Use:   "gamepause",
		Short: "Pause and resume a game process with global hotkeys",
		Long: `gamepause suspends and resumes a selected game process through the
Sysinternals PsSuspend utility, driven by global hotkeys.

Start the controller with 'gamepause run'. Other commands talk to the running
controller over a local pipe and fall back to acting directly when none is
running.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(stderr, opts.logLevel, opts.warnings)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: per-user config directory)")
	root.PersistentFlags().StringVar(&opts.pipeName, "pipe", "", "control pipe name (default: per-user pipe)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddGroup(
		&cobra.Group{ID: GroupControl, Title: "Process Control:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
	)
	root.SetHelpCommandGroupID(GroupConfig)
	root.SetCompletionCommandGroupID(GroupConfig)

	root.AddCommand(newRunCommand(rt, opts))
	for _, cmd := range newControlCommands(rt, opts) {
		root.AddCommand(cmd)
	}
	root.AddCommand(
		newSelectCommand(opts),
		newTargetsCommand(opts),
		newHotkeysCommand(opts),
	)
	return root
}

// setupLogging installs the default slog logger: text on w at level, with
// Warn+ records teed into ring.
func setupLogging(w io.Writer, level string, ring *sessionlog.Ring) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	var callback sessionlog.EntryCallback
	if ring != nil {
		callback = ring.Add
	}
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, callback)))
	return nil
}

// requireSubcommand returns a RunE for parent commands that need a
// subcommand, so unknown subcommands fail instead of printing help.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", cmd.CommandPath())
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], cmd.CommandPath(), cmd.CommandPath())
}
