package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
	"github.com/teranos/vsbatch/pulse/async"
	"github.com/teranos/vsbatch/pulse/ledger"
	"github.com/teranos/vsbatch/sym"
)

// HistoryCmd queries the run ledger
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: sym.History + " Show previous runs from the run ledger",
	Long: sym.History + ` history: Query the run ledger

Without --run, lists the most recent runs. With --run, lists the outcomes of
that run, filtered by --status (failed by default, "all" for every outcome).

Examples:
  vsbatch history                          # Last 20 runs
  vsbatch history --limit 5                # Last 5 runs
  vsbatch history --run <id>               # Failed ligands of a run
  vsbatch history --run <id> --status all  # Every outcome of a run`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	HistoryCmd.Flags().Int("limit", 20, "Number of runs to list")
	HistoryCmd.Flags().String("run", "", "Show outcomes of this run")
	HistoryCmd.Flags().String("status", string(async.StatusFailed), "Outcome filter with --run: skipped, succeeded, failed or all")
	HistoryCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Ledger.Enabled {
		return errors.WithHint(errors.New("run ledger is disabled"), "set ledger.enabled = true in vsbatch.toml")
	}
	if _, err := os.Stat(cfg.LedgerPath()); os.IsNotExist(err) {
		return errors.WithHintf(errors.Newf("no run ledger at %s", cfg.LedgerPath()), "run a batch first")
	}

	database, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.DBDebugw("Opened run ledger", logger.FieldPath, cfg.LedgerPath())
	store := ledger.NewStore(database)

	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetString("run")
	status, _ := cmd.Flags().GetString("status")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if runID == "" {
		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, runs)
		}
		return renderRuns(runs)
	}

	filter, err := parseStatusFilter(status)
	if err != nil {
		return err
	}
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	outcomes, err := store.ListOutcomes(run.ID, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, outcomes)
	}
	return renderOutcomes(run, outcomes)
}

// parseStatusFilter maps the --status flag onto a ledger filter ("all" = no filter)
func parseStatusFilter(value string) (async.Status, error) {
	switch value {
	case "all", "":
		return "", nil
	case string(async.StatusSkipped), string(async.StatusSucceeded), string(async.StatusFailed):
		return async.Status(value), nil
	default:
		return "", errors.Newf("unsupported status: %s (supported: skipped, succeeded, failed, all)", value)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal to JSON")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func renderRuns(runs []*ledger.Run) error {
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}
	data := pterm.TableData{{"Run", "Started", "Duration", "Workers", "Total", "Skipped", "Succeeded", "Failed"}}
	for _, r := range runs {
		duration := "running"
		if r.Finished() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		data = append(data, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			strconv.Itoa(r.Workers),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderOutcomes(run *ledger.Run, outcomes []ledger.OutcomeRecord) error {
	pterm.Printf("%s Run %s: %d total, %d skipped, %d succeeded, %d failed\n",
		sym.History, run.ID, run.Total, run.Skipped, run.Succeeded, run.Failed)
	if len(outcomes) == 0 {
		pterm.Info.Println("No matching outcomes")
		return nil
	}
	data := pterm.TableData{{"#", "Ligand", "Status", "Duration", "Reason"}}
	for _, o := range outcomes {
		data = append(data, []string{
			strconv.Itoa(o.Index),
			o.Item,
			string(o.Status),
			(time.Duration(o.DurationMS) * time.Millisecond).String(),
			o.Reason,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
