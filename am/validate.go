package am

import (
	"strings"

	"github.com/teranos/vsbatch/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"batch.receptor", c.Batch.ReceptorFile},
		{"batch.ligand_dir", c.Batch.LigandDir},
		{"batch.output_dir", c.Batch.OutputDir},
		{"batch.config_file", c.Batch.ConfigFile},
		{"batch.vina_path", c.Batch.VinaPath},
		{"batch.faulty_dir", c.Batch.FaultyDir},
		{"results.error_log", c.Results.ErrorLog},
		{"results.ranking", c.Results.Ranking},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.WithHintf(errors.NewInvalidConfigError("%s cannot be empty", r.key),
				"set %s in vsbatch.toml", r.key)
		}
	}

	if !strings.HasPrefix(c.Batch.LigandExt, ".") || len(c.Batch.LigandExt) < 2 {
		return errors.WithHint(errors.NewInvalidConfigError("batch.ligand_ext must start with '.', got %q", c.Batch.LigandExt),
			`use e.g. ligand_ext = ".pdbqt"`)
	}

	// Timeout: zero would kill every process immediately
	if c.Batch.TimeoutSeconds <= 0 {
		return errors.NewInvalidConfigError("batch.timeout_seconds must be > 0, got %d", c.Batch.TimeoutSeconds)
	}

	// Workers: 0 = auto, negative = invalid
	if c.Batch.Workers < 0 {
		return errors.NewInvalidConfigError("batch.workers must be >= 0, got %d", c.Batch.Workers)
	}
	if c.Batch.MaxWorkers < 1 {
		return errors.NewInvalidConfigError("batch.max_workers must be >= 1, got %d", c.Batch.MaxWorkers)
	}
	if c.Batch.CPUPerItem < 1 {
		return errors.NewInvalidConfigError("batch.cpu_per_item must be >= 1, got %d", c.Batch.CPUPerItem)
	}

	// Launch rate: 0 = unlimited, negative = invalid
	if c.Batch.LaunchesPerSecond < 0 {
		return errors.NewInvalidConfigError("batch.launches_per_second must be >= 0, got %f", c.Batch.LaunchesPerSecond)
	}

	if c.Ledger.Enabled && strings.TrimSpace(c.LedgerPath()) == "" {
		return errors.NewInvalidConfigError("ledger.path cannot be resolved")
	}

	return nil
}
