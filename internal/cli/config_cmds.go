package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gamepause/internal/config"
	"gamepause/internal/hotkeys"
	"gamepause/internal/ipc"
	"gamepause/internal/process"
)

// editConfig loads the config file, applies edit, saves the result and asks
// a running controller to reload. A config that fails to parse is never
// overwritten.
func editConfig(opts *globalOptions, edit func(cfg *config.Config) error) (config.Config, error) {
	runOpts := opts.runOptions()
	cfg, err := config.Load(runOpts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", runOpts.ConfigPath, err)
	}
	if err := edit(&cfg); err != nil {
		return cfg, err
	}
	saved, err := config.Save(runOpts.ConfigPath, cfg)
	if err != nil {
		return cfg, err
	}
	notifyReload(runOpts.PipeName)
	return saved, nil
}

// notifyReload is best-effort: the controller also watches the file.
func notifyReload(pipeName string) {
	resp, err := sendFn(pipeName, ipc.NewRequest(ipc.CommandReload, ""))
	if err != nil {
		if !ipc.IsConnectionError(err) {
			slog.Debug("[DEBUG-CONFIG] reload request failed", "error", err)
		}
		return
	}
	if resp.ExitCode != 0 {
		slog.Warn("[WARN-CONFIG] running controller rejected reload", "stderr", resp.Stderr)
	}
}

func loadConfig(opts *globalOptions) (config.Config, error) {
	path := opts.runOptions().ConfigPath
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newSelectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "select <target>",
		GroupID: GroupConfig,
		Short:   "Choose the target the hotkeys act on",
		Long: `Make <target> the selected target, adding it to the target list when
it is not listed yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := editConfig(opts, func(cfg *config.Config) error {
				return cfg.Select(args[0])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", cfg.Selected)
			return nil
		},
	}
}

func newTargetsCommand(opts *globalOptions) *cobra.Command {
	targets := &cobra.Command{
		Use:     "targets",
		GroupID: GroupConfig,
		Short:   "Manage the list of game executables",
		RunE:    requireSubcommand,
	}

	targets.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured targets; the selected one is starred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			writeTargets(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	targets.AddCommand(&cobra.Command{
		Use:   "add <target>",
		Short: "Add a target executable name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !process.NewTarget(args[0]).Valid() {
				return process.ErrInvalidTarget
			}
			added := false
			if _, err := editConfig(opts, func(cfg *config.Config) error {
				added = cfg.AddTarget(args[0])
				return nil
			}); err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already listed\n", args[0])
			}
			return nil
		},
	})

	targets.AddCommand(&cobra.Command{
		Use:   "remove <target>",
		Short: "Remove a target executable name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := false
			cfg, err := editConfig(opts, func(cfg *config.Config) error {
				removed = cfg.RemoveTarget(args[0])
				return nil
			})
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("target %q is not listed", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			if cfg.Selected != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", cfg.Selected)
			}
			return nil
		},
	})
	return targets
}

func writeTargets(w io.Writer, cfg config.Config) {
	if len(cfg.Targets) == 0 {
		fmt.Fprintln(w, "no targets configured; add one with 'gamepause targets add <name>'")
		return
	}
	for _, name := range cfg.Targets {
		marker := " "
		if name == cfg.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\n", marker, name)
	}
}

func newHotkeysCommand(opts *globalOptions) *cobra.Command {
	hk := &cobra.Command{
		Use:     "hotkeys",
		GroupID: GroupConfig,
		Short:   "Show or change the global hotkeys",
		RunE:    requireSubcommand,
	}

	hk.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the configured hotkeys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			writeHotkeys(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	hk.AddCommand(&cobra.Command{
		Use:   "set <action> <combo>",
		Short: "Bind an action (pause, resume, toggle) to a combo such as Ctrl+Alt+P",
		Long: `Bind an action to a key combination. An empty combo ("") unbinds the
action. Combos that fail to parse or collide with another action are
rejected and the previous binding is kept.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, ok := hotkeys.ParseAction(args[0])
			if !ok {
				return fmt.Errorf("unknown action %q (want one of %v)", args[0], hotkeys.Actions())
			}
			cfg, err := editConfig(opts, func(cfg *config.Config) error {
				return cfg.SetHotkey(action, args[1])
			})
			if err != nil {
				return err
			}
			combo := cfg.HotkeyBindings()[action]
			if combo == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s unbound\n", action)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s bound to %s\n", action, combo)
			}
			return nil
		},
	})

	hk.AddCommand(&cobra.Command{
		Use:   "minimize <true|false>",
		Short: "Minimize the game window before pausing and restore it on resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q: want true or false", args[0])
			}
			if _, err := editConfig(opts, func(cfg *config.Config) error {
				cfg.SetMinimizeOnPause(v)
				return nil
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %t\n", config.MinimizeOnPauseKey, v)
			return nil
		},
	})
	return hk
}

func writeHotkeys(w io.Writer, cfg config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tCOMBO")
	bindings := cfg.HotkeyBindings()
	for _, action := range hotkeys.Actions() {
		combo := bindings[action]
		if combo == "" {
			combo = "(unbound)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", action, combo)
	}
	fmt.Fprintf(tw, "%s\t%t\n", config.MinimizeOnPauseKey, cfg.MinimizeOnPause())
	_ = tw.Flush()
	for _, c := range hotkeys.Conflicts(bindings) {
		fmt.Fprintf(w, "conflict: %s and %s share %s\n", c.First, c.Second, c.Combo)
	}
}
