package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/vsbatch/cmd/vsbatch/commands"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "vsbatch",
	Short: "vsbatch - AutoDock Vina virtual screening batch",
	Long: `vsbatch - run a virtual screening campaign with AutoDock Vina.

Docks every ligand in the ligand directory against one receptor, on a bounded
worker pool with a per-ligand timeout. Finished ligands are skipped on the next
run, failures are logged to a CSV and quarantined, and the best pose of each
ligand is ranked by binding affinity once the batch drains.

Available commands:
  dock     - Run the screening batch (default when no command is given)
  results  - Re-rank the docking logs already in the output directory
  history  - Show previous runs from the run ledger
  am       - Show and validate configuration
  version  - Show version information

Examples:
  vsbatch                          # Dock all ligands using ./vsbatch.toml
  vsbatch --config screen.toml -v  # Explicit config, info-level logs
  vsbatch results                  # Rebuild the ranking CSV
  vsbatch history --run <id>       # Failed ligands of a previous run`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		// Initialize global logger before any command runs
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
	RunE: commands.RunBatch,
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: vsbatch.toml or am.toml in the working directory or a parent)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs and progress as JSON lines")

	// Add commands
	rootCmd.AddCommand(commands.DockCmd)
	rootCmd.AddCommand(commands.ResultsCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
