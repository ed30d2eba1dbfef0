package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gamepause/internal/ipc"
	"gamepause/internal/singleinstance"
)

var (
	tryLockFn          = singleinstance.TryLock
	defaultMutexNameFn = singleinstance.DefaultMutexName
	sendFn             = ipc.Send
)

func newRunCommand(rt Runtime, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		GroupID: GroupControl,
		Short:   "Start the controller and register the global hotkeys",
		Long: `Start the controller in the foreground. It registers the configured
hotkeys, serves the control pipe, and publishes state changes on the status
feed until interrupted.

Only one controller runs per user. When one is already running, run prints
its status and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.Run == nil {
				return errors.New("controller is not available in this build")
			}
			runOpts := opts.runOptions()

			lock, err := tryLockFn(defaultMutexNameFn())
			if errors.Is(err, singleinstance.ErrAlreadyRunning) {
				slog.Info("[DEBUG-SINGLE] another instance is already running")
				fmt.Fprintln(cmd.OutOrStdout(), "gamepause is already running")
				resp, sendErr := sendFn(runOpts.PipeName, ipc.NewRequest(ipc.CommandStatus, ""))
				if sendErr != nil {
					slog.Warn("[DEBUG-SINGLE] failed to query existing instance", "error", sendErr)
					return nil
				}
				printResponse(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp)
				return nil
			}
			if err != nil {
				slog.Warn("[DEBUG-SINGLE] instance lock failed, proceeding without single-instance guard", "error", err)
			}
			if lock != nil {
				defer func() {
					if releaseErr := lock.Release(); releaseErr != nil {
						slog.Warn("[DEBUG-SINGLE] instance lock release failed", "error", releaseErr)
					}
				}()
			}

			return rt.Run(cmd.Context(), runOpts)
		},
	}
}
