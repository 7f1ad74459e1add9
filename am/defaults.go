package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values mirrored by SetDefaults
const (
	DefaultTimeoutSeconds = 500
	DefaultMaxWorkers     = 64
	DefaultErrorLog       = "vina_error_log.csv"
	DefaultRanking        = "docking_results_drugbank_.csv"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Batch inputs and executable
	v.SetDefault("batch.receptor", "receptor.pdbqt")
	v.SetDefault("batch.ligand_dir", "ligands")
	v.SetDefault("batch.ligand_ext", ".pdbqt")
	v.SetDefault("batch.output_dir", "output")
	v.SetDefault("batch.config_file", "conf.txt")
	v.SetDefault("batch.vina_path", "vina")
	v.SetDefault("batch.faulty_dir", "faulty")
	v.SetDefault("batch.extra_args", "")

	// Worker budget: single-threaded items, one per core, capped
	v.SetDefault("batch.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.max_workers", DefaultMaxWorkers)
	v.SetDefault("batch.cpu_per_item", 1)
	v.SetDefault("batch.launches_per_second", 0.0)
	v.SetDefault("batch.fail_on_errors", false)

	// Presence-only resume
	v.SetDefault("resume.require_content", false)

	// Output file names
	v.SetDefault("results.error_log", DefaultErrorLog)
	v.SetDefault("results.ranking", DefaultRanking)

	// Run ledger
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "")
}

// BindEnvVars explicitly binds frequently overridden paths to environment variables
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("batch.vina_path", "VSBATCH_VINA_PATH")
	v.BindEnv("batch.output_dir", "VSBATCH_OUTPUT_DIR")
	v.BindEnv("batch.ligand_dir", "VSBATCH_LIGAND_DIR")
	v.BindEnv("batch.workers", "VSBATCH_WORKERS")
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Ligands: %s/*%s, Output: %s, Vina: %s, Timeout: %ds, Workers: %d/%d}",
		c.Batch.LigandDir, c.Batch.LigandExt, c.Batch.OutputDir, c.Batch.VinaPath,
		c.Batch.TimeoutSeconds, c.Batch.Workers, c.Batch.MaxWorkers)
}
