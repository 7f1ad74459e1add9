package am

import (
	"path/filepath"
	"time"
)

// Config represents the vsbatch configuration
type Config struct {
	Batch   BatchConfig   `mapstructure:"batch" toml:"batch" yaml:"batch" json:"batch"`
	Resume  ResumeConfig  `mapstructure:"resume" toml:"resume" yaml:"resume" json:"resume"`
	Results ResultsConfig `mapstructure:"results" toml:"results" yaml:"results" json:"results"`
	Ledger  LedgerConfig  `mapstructure:"ledger" toml:"ledger" yaml:"ledger" json:"ledger"`
}

// BatchConfig configures the screening batch: inputs, the external executable and the worker budget
type BatchConfig struct {
	ReceptorFile string `mapstructure:"receptor" toml:"receptor" yaml:"receptor" json:"receptor"`             // Fixed reference input shared by every item
	LigandDir    string `mapstructure:"ligand_dir" toml:"ligand_dir" yaml:"ligand_dir" json:"ligand_dir"`     // Directory of per-item inputs
	LigandExt    string `mapstructure:"ligand_ext" toml:"ligand_ext" yaml:"ligand_ext" json:"ligand_ext"`     // Input extension filter, with leading dot
	OutputDir    string `mapstructure:"output_dir" toml:"output_dir" yaml:"output_dir" json:"output_dir"`     // Per-item artifacts, error log and ranking
	ConfigFile   string `mapstructure:"config_file" toml:"config_file" yaml:"config_file" json:"config_file"` // Shared recipe passed as --config
	VinaPath     string `mapstructure:"vina_path" toml:"vina_path" yaml:"vina_path" json:"vina_path"`         // External executable
	FaultyDir    string `mapstructure:"faulty_dir" toml:"faulty_dir" yaml:"faulty_dir" json:"faulty_dir"`     // Quarantine for failing inputs
	ExtraArgs    string `mapstructure:"extra_args" toml:"extra_args" yaml:"extra_args" json:"extra_args"`     // Shell-quoted flags appended to every invocation

	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"` // Per-item wall-clock budget (default: 500)
	Workers        int `mapstructure:"workers" toml:"workers" yaml:"workers" json:"workers"`                                 // 0 = min(cpus, max_workers)
	MaxWorkers     int `mapstructure:"max_workers" toml:"max_workers" yaml:"max_workers" json:"max_workers"`                 // Hard ceiling regardless of host (default: 64)
	CPUPerItem     int `mapstructure:"cpu_per_item" toml:"cpu_per_item" yaml:"cpu_per_item" json:"cpu_per_item"`             // Passed as --cpu (default: 1)

	LaunchesPerSecond float64 `mapstructure:"launches_per_second" toml:"launches_per_second" yaml:"launches_per_second" json:"launches_per_second"` // 0 = unlimited
	FailOnErrors      bool    `mapstructure:"fail_on_errors" toml:"fail_on_errors" yaml:"fail_on_errors" json:"fail_on_errors"`                     // Non-zero exit when any item failed
}

// ResumeConfig configures how prior output is judged complete
type ResumeConfig struct {
	// RequireContent additionally requires both artifacts to be non-empty.
	// false keeps presence-only resume: fast, but a truncated artifact from a crashed run counts as done.
	RequireContent bool `mapstructure:"require_content" toml:"require_content" yaml:"require_content" json:"require_content"`
}

// ResultsConfig names the files written into the output directory
type ResultsConfig struct {
	ErrorLog string `mapstructure:"error_log" toml:"error_log" yaml:"error_log" json:"error_log"` // Append-only failure CSV
	Ranking  string `mapstructure:"ranking" toml:"ranking" yaml:"ranking" json:"ranking"`         // Final ranked CSV
}

// LedgerConfig configures the SQLite run ledger
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" toml:"path" yaml:"path" json:"path"` // empty = <output_dir>/vsbatch.db
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// DefaultLedgerFile is the ledger database name used when ledger.path is empty
const DefaultLedgerFile = "vsbatch.db"

// Timeout returns the per-item timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Batch.TimeoutSeconds) * time.Second
}

// ErrorLogPath returns the full path of the failure CSV
func (c *Config) ErrorLogPath() string {
	return filepath.Join(c.Batch.OutputDir, c.Results.ErrorLog)
}

// RankingPath returns the full path of the ranked results CSV
func (c *Config) RankingPath() string {
	return filepath.Join(c.Batch.OutputDir, c.Results.Ranking)
}

// LedgerPath returns the ledger database path, defaulting into the output directory
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Batch.OutputDir, DefaultLedgerFile)
}

// WorkerCount resolves the worker budget against the host's available parallelism.
// workers=0 means min(cpus, max_workers); an explicit value is still capped at max_workers.
// The result is never below 1.
func (c *Config) WorkerCount(cpus int) int {
	ceiling := c.Batch.MaxWorkers
	if ceiling < 1 {
		ceiling = 1
	}

	workers := c.Batch.Workers
	if workers <= 0 {
		workers = cpus
	}
	if workers > ceiling {
		workers = ceiling
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
