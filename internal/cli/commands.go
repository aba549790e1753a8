package cli

import (
	"os"

	"github.com/specialistvlad/shmdag/internal/app"
	"github.com/specialistvlad/shmdag/modules"
	"github.com/spf13/cobra"
)

// newWorkerCommand is the entrypoint of a re-executed worker process. Its
// assignment comes from the environment, never from flags.
func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one node of a live run (internal)",
		Hidden: true,
		Args:   exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			code := app.RunWorker(cmd.Context(), os.Getenv, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}

func newInspectCommand() *cobra.Command {
	var asDOT, asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <shm-suffix>",
		Short: "Print the state of a live or abandoned run",
		Long: `Opens the segment of a run read-only and prints its header, run state and
node table. Nothing is modified or removed.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := app.FormatTable
			switch {
			case asDOT && asJSON:
				return &ExitError{Code: ExitUsage, Message: "--dot and --json cannot be used together"}
			case asDOT:
				format = app.FormatDOT
			case asJSON:
				format = app.FormatJSON
			}
			return app.Inspect(commandContext(cmd), args[0], shmDir(cmd), format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asDOT, "dot", false, "Print the topology as a DOT digraph.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the state as JSON.")
	return cmd
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <shm-suffix>",
		Short: "Remove the shared-memory objects left behind by a crashed run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Cleanup(commandContext(cmd), args[0], shmDir(cmd), cmd.OutOrStdout())
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Parse and build a graph without running it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Validate(commandContext(cmd), args[0], modules.Registry(), cmd.OutOrStdout())
		},
	}
}
