package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/shmdag/internal/app"
	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/scheduler"
	"github.com/spf13/cobra"
)

// runFlags holds the flags of the run command. They are applied over the
// defaults and the config file only when set on the command line.
type runFlags struct {
	configPath    string
	logLevel      string
	logFormat     string
	executor      string
	workers       int
	nodeTimeout   time.Duration
	killGrace     time.Duration
	orderedOutput bool
	statusAddr    string
}

// NewRootCommand builds the shmdag command tree. Without a subcommand the
// root command behaves like `run`.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	root := newRunCommand("shmdag <graph-file> <shm-suffix>")
	root.Short = "Run a DAG of nodes, one worker process per node, over shared memory"
	root.Long = `shmdag executes the nodes of a directed acyclic graph in dependency order.

Node state lives in a POSIX shared-memory segment named after <shm-suffix>
and guarded by a writer-priority reader/writer lock. Every node runs in its
own worker process; the first failure aborts the run.

The graph is a DOT file (.dot, .gv), an HCL file (.hcl) or a directory of
HCL files.`
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.PersistentFlags().String("shm-dir", app.DefaultConfig().ShmDir, "Directory that holds the shared-memory objects.")

	root.AddCommand(
		newRunCommand("run <graph-file> <shm-suffix>"),
		newWorkerCommand(),
		newInspectCommand(),
		newCleanupCommand(),
		newValidateCommand(),
	)
	return root
}

func newRunCommand(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Execute a graph",
		Args:  exactArgs(2),
	}
	f := bindRunFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return f.run(cmd, args[0], args[1])
	}
	return cmd
}

func bindRunFlags(cmd *cobra.Command) *runFlags {
	f := &runFlags{}
	defaults := app.DefaultConfig()

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to a yaml config file.")
	flags.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'auto', 'text' or 'json'.")
	flags.StringVar(&f.executor, "executor", defaults.Executor, "Where nodes run. Options: 'process' or 'thread'.")
	flags.IntVar(&f.workers, "workers", defaults.Workers, "Maximum number of nodes in flight. 0 means no limit.")
	flags.DurationVar(&f.nodeTimeout, "node-timeout", defaults.NodeTimeout, "Per-node time limit. 0 means no limit.")
	flags.DurationVar(&f.killGrace, "kill-grace", defaults.KillGrace, "Time between SIGTERM and SIGKILL for a timed-out worker.")
	flags.BoolVar(&f.orderedOutput, "ordered-output", defaults.OrderedOutput, "Print node output in dispatch order instead of as it arrives.")
	flags.StringVar(&f.statusAddr, "status-addr", defaults.StatusAddr, "Serve /status, /metrics and /health on this address.")
	return f
}

// config layers the config file and the changed flags over the defaults.
func (f *runFlags) config(cmd *cobra.Command, graphPath, suffix string) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = app.LoadConfigFile(f.configPath, cfg); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if flags.Changed("executor") {
		cfg.Executor = f.executor
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("node-timeout") {
		cfg.NodeTimeout = f.nodeTimeout
	}
	if flags.Changed("kill-grace") {
		cfg.KillGrace = f.killGrace
	}
	if flags.Changed("ordered-output") {
		cfg.OrderedOutput = f.orderedOutput
	}
	if flags.Changed("shm-dir") {
		cfg.ShmDir, _ = flags.GetString("shm-dir")
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}

	cfg.GraphPath = graphPath
	cfg.Suffix = suffix
	return app.NewConfig(cfg)
}

func (f *runFlags) run(cmd *cobra.Command, graphPath, suffix string) error {
	cfg, err := f.config(cmd, graphPath, suffix)
	if err != nil {
		return err
	}

	a := app.NewApp(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
	report, err := a.Run(cmd.Context())
	if report != nil && err != nil {
		printSummary(cmd.ErrOrStderr(), report, err)
	}
	return err
}

// printSummary writes the outcome of an unsuccessful run.
func printSummary(w io.Writer, report *scheduler.Report, err error) {
	counts := make(map[node.Status]int)
	for _, n := range report.Nodes {
		counts[n.Slot.Status]++
	}
	fmt.Fprintf(w, "run %s %s after %s:", report.RunID, report.State, report.WallTime.Round(time.Millisecond))
	for s := node.StatusPending; s.Valid(); s++ {
		if counts[s] > 0 {
			fmt.Fprintf(w, " %d %s", counts[s], s)
		}
	}
	fmt.Fprintln(w)

	var aborted *scheduler.AbortedError
	if errors.As(err, &aborted) {
		for _, f := range aborted.Failed {
			fmt.Fprintf(w, "  node %s failed (exit %d): %s\n", f.NodeID, f.ExitCode, f.Detail)
		}
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(fmt.Errorf("%w\n\nUsage:\n  %s", err, cmd.UseLine()))
		}
		return nil
	}
}

// commandContext carries the logger of the short-lived commands.
func commandContext(cmd *cobra.Command) context.Context {
	logger := app.NewLogger(app.DefaultConfig().LogLevel, "auto", cmd.ErrOrStderr())
	return ctxlog.WithLogger(cmd.Context(), logger)
}

func shmDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("shm-dir")
	return dir
}
