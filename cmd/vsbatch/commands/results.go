package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/teranos/vsbatch/dock"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
	"github.com/teranos/vsbatch/sym"
)

// ResultsCmd rebuilds the ranking from the logs already in the output directory
var ResultsCmd = &cobra.Command{
	Use:   "results",
	Short: sym.Rank + " Re-rank the docking logs in the output directory",
	Long: sym.Rank + ` results: Rebuild the ranked results CSV without docking

Parses the best pose of every <name>_log.txt in batch.output_dir, sorts by
binding affinity (most negative first) and rewrites results.ranking.

Examples:
  vsbatch results             # Rewrite the ranking CSV
  vsbatch results --top 10    # Also print the ten best ligands
  vsbatch results --json      # Print the ranking as JSON`,
	Args: cobra.NoArgs,
	RunE: runResults,
}

func init() {
	ResultsCmd.Flags().Int("top", 0, "Print the N best ligands (0 = none)")
	ResultsCmd.Flags().BoolP("json", "j", false, "Print the full ranking as JSON instead of writing a summary")
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	fs := afero.NewOsFs()
	ranked, err := dock.Collector{Fs: fs, OutputDir: cfg.Batch.OutputDir, Logger: logger.ComponentLogger("results")}.Collect()
	if err != nil {
		return err
	}
	if err := dock.WriteRanking(fs, cfg.RankingPath(), ranked); err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(ranked, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal ranking to JSON")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if top > 0 && len(ranked) > 0 {
		if err := rankingTable(ranked, top).Render(); err != nil {
			return errors.Wrap(err, "failed to render ranking")
		}
	}
	logger.PulseInfow("Ranking rebuilt", logger.FieldCount, len(ranked), logger.FieldPath, cfg.RankingPath())
	pterm.Printf("%s Ranked %d ligands\n", sym.Rank, len(ranked))
	pterm.Printf("Results have been saved to %s\n", cfg.RankingPath())
	return nil
}

// rankingTable renders the first n rows of a ranking
func rankingTable(ranked []dock.Ranked, n int) *pterm.TablePrinter {
	if n > len(ranked) {
		n = len(ranked)
	}
	data := pterm.TableData{{"Rank", "ID", "Affinity (kcal/mol)", "Ligand"}}
	for _, r := range ranked[:n] {
		data = append(data, []string{
			strconv.Itoa(r.Rank),
			r.ID,
			strconv.FormatFloat(r.Affinity, 'f', -1, 64),
			r.Item,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data)
}
