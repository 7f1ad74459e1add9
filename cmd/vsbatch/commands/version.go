package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/vsbatch/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show vsbatch version information",
	Long: `Display version, build time, commit hash, and platform information for the vsbatch binary,
plus the version reported by the configured AutoDock Vina executable (batch.vina_path).`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		info := version.Get()
		vinaStatus := "not configured"
		if cfg, _, err := loadConfig(cmd); err == nil {
			if vina, err := version.DetectVina(context.Background(), cfg.Batch.VinaPath); err == nil {
				info.Vina = vina
				vinaStatus = vina
			} else {
				vinaStatus = fmt.Sprintf("unavailable at %s", cfg.Batch.VinaPath)
			}
		}

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error formatting JSON: %v\n", err)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", info.Platform)
			fmt.Fprintf(cmd.OutOrStdout(), "Go: %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Vina: %s\n", vinaStatus)
		}
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
