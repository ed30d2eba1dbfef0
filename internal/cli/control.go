package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gamepause/internal/ipc"
	"gamepause/internal/process"
)

// localCommandTimeout bounds a command executed without a controller.
const localCommandTimeout = 30 * time.Second

type controlCommand struct {
	name  string
	short string
	long  string
}

var controlCommands = []controlCommand{
	{
		name:  ipc.CommandStatus,
		short: "Show the state of every configured target",
		long: `Show the inferred state (running, suspended, not_found) of every
configured target, or of the named one, followed by recent warnings.`,
	},
	{
		name:  ipc.CommandPause,
		short: "Suspend the selected target",
		long: `Suspend the selected target (or the named one) through the suspend
utility. Its main window is minimized first when minimize_on_pause is set.`,
	},
	{
		name:  ipc.CommandResume,
		short: "Resume the selected target",
	},
	{
		name:  ipc.CommandToggle,
		short: "Pause a running target or resume a suspended one",
	},
	{
		name:  ipc.CommandKill,
		short: "Force-terminate every process of the selected target",
	},
	{
		name:  ipc.CommandLaunch,
		short: "Start the selected target from its known path",
		long: `Start the selected target (or the named one) from its last known
path, falling back to the bare executable name resolved through PATH.`,
	},
}

func newControlCommands(rt Runtime, opts *globalOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(controlCommands)+1)
	for _, cc := range controlCommands {
		cmds = append(cmds, &cobra.Command{
			Use:     cc.name + " [target]",
			GroupID: GroupControl,
			Short:   cc.short,
			Long:    cc.long,
			Args:    cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				target := ""
				if len(args) == 1 {
					target = args[0]
				}
				return dispatch(cmd, rt, opts, ipc.NewRequest(cc.name, target))
			},
		})
	}
	cmds = append(cmds, &cobra.Command{
		Use:     ipc.CommandReload,
		GroupID: GroupConfig,
		Short:   "Ask the running controller to reload its config",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, rt, opts, ipc.NewRequest(ipc.CommandReload, ""))
		},
	})
	return cmds
}

// dispatch sends req to the running controller, executing it locally when
// none is reachable, and prints the response.
func dispatch(cmd *cobra.Command, rt Runtime, opts *globalOptions, req ipc.Request) error {
	runOpts := opts.runOptions()
	resp, err := sendFn(runOpts.PipeName, req)
	if err != nil {
		if !ipc.IsConnectionError(err) {
			return fmt.Errorf("%s: %w", req.Command, err)
		}
		slog.Debug("[ipc] no running controller, executing locally", "command", req.Command, "error", err)
		resp = executeLocal(cmd.Context(), rt, runOpts, req)
	}
	printResponse(cmd.OutOrStdout(), cmd.ErrOrStderr(), resp)
	if resp.ExitCode != 0 {
		return &silentExitError{code: resp.ExitCode}
	}
	return nil
}

func executeLocal(ctx context.Context, rt Runtime, opts RunOptions, req ipc.Request) ipc.Response {
	if req.Command == ipc.CommandReload {
		return ipc.Response{ID: req.ID, Stdout: "no running controller; nothing to reload\n"}
	}
	if rt.Local == nil {
		return ipc.ErrorResponse(req.ID, "no running controller")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, localCommandTimeout)
	defer cancel()
	return rt.Local(ctx, opts, req)
}

// printResponse writes resp's output streams, status table and warnings.
func printResponse(stdout, stderr io.Writer, resp ipc.Response) {
	if resp.Stdout != "" {
		fmt.Fprint(stdout, resp.Stdout)
	}
	if len(resp.Statuses) > 0 {
		writeStatusTable(stdout, resp.Statuses)
	}
	if resp.Stderr != "" {
		fmt.Fprint(stderr, resp.Stderr)
	}
	if len(resp.Warnings) > 0 {
		fmt.Fprintln(stderr, "Warnings:")
		for _, w := range resp.Warnings {
			fmt.Fprintf(stderr, "  %s\n", strings.TrimSpace(w))
		}
	}
}

func writeStatusTable(w io.Writer, statuses []process.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATE\tPATH")
	for _, st := range statuses {
		path := st.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Target, st.State, path)
	}
	_ = tw.Flush()
}
