package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/vsbatch/errors"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, ".pdbqt", cfg.Batch.LigandExt)
	assert.Equal(t, "vina", cfg.Batch.VinaPath)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Batch.TimeoutSeconds)
	assert.Equal(t, DefaultMaxWorkers, cfg.Batch.MaxWorkers)
	assert.Equal(t, 1, cfg.Batch.CPUPerItem)
	assert.Equal(t, 0, cfg.Batch.Workers)
	assert.False(t, cfg.Resume.RequireContent)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, filepath.Join("output", "vina_error_log.csv"), cfg.ErrorLogPath())
	assert.Equal(t, filepath.Join("output", "docking_results_drugbank_.csv"), cfg.RankingPath())
	assert.Equal(t, filepath.Join("output", DefaultLedgerFile), cfg.LedgerPath())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vsbatch.toml")
	content := `
[batch]
receptor = "/data/final_IPK1.pdbqt"
ligand_dir = "/data/Mols_2"
output_dir = "/data/out"
timeout_seconds = 120
workers = 8
extra_args = "--exhaustiveness 16"

[resume]
require_content = true

[ledger]
path = "/tmp/ledger.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/final_IPK1.pdbqt", cfg.Batch.ReceptorFile)
	assert.Equal(t, "/data/Mols_2", cfg.Batch.LigandDir)
	assert.Equal(t, 120, cfg.Batch.TimeoutSeconds)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, "--exhaustiveness 16", cfg.Batch.ExtraArgs)
	assert.True(t, cfg.Resume.RequireContent)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerPath())
	// Unset keys keep their defaults
	assert.Equal(t, "vina", cfg.Batch.VinaPath)
	assert.Equal(t, DefaultRanking, cfg.Results.Ranking)
}

func TestLoad_ExplicitFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[batch]\nworkers = 4\nvina_path = \"/opt/vina\"\n"), 0644))

	t.Setenv("VSBATCH_WORKERS", "2")

	cfg, v, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 2, cfg.Batch.Workers, "env var should override file")
	assert.Equal(t, "/opt/vina", cfg.Batch.VinaPath)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestMergeConfigFiles_LaterOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.toml")
	project := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(user, []byte("[batch]\nworkers = 3\nfaulty_dir = \"q\"\n"), 0644))
	require.NoError(t, os.WriteFile(project, []byte("[batch]\nworkers = 5\n"), 0644))

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, mergeConfigFiles(v, []string{user, filepath.Join(dir, "missing.toml"), project}))

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Batch.Workers)
	assert.Equal(t, "q", cfg.Batch.FaultyDir)
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		name       string
		workers    int
		maxWorkers int
		cpus       int
		want       int
	}{
		{"auto uses cpu count", 0, 64, 8, 8},
		{"auto capped at ceiling", 0, 64, 128, 64},
		{"explicit below ceiling", 4, 64, 128, 4},
		{"explicit capped at ceiling", 100, 16, 8, 16},
		{"unknown cpu count falls back to one", 0, 64, 0, 1},
		{"broken ceiling still yields one", 0, 0, 8, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Batch: BatchConfig{Workers: tt.workers, MaxWorkers: tt.maxWorkers}}
			assert.Equal(t, tt.want, cfg.WorkerCount(tt.cpus))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero workers is valid (auto)", func(c *Config) { c.Batch.Workers = 0 }, false},
		{"negative workers is invalid", func(c *Config) { c.Batch.Workers = -1 }, true},
		{"zero max workers is invalid", func(c *Config) { c.Batch.MaxWorkers = 0 }, true},
		{"zero timeout is invalid", func(c *Config) { c.Batch.TimeoutSeconds = 0 }, true},
		{"extension without dot is invalid", func(c *Config) { c.Batch.LigandExt = "pdbqt" }, true},
		{"empty vina path is invalid", func(c *Config) { c.Batch.VinaPath = " " }, true},
		{"negative launch rate is invalid", func(c *Config) { c.Batch.LaunchesPerSecond = -1 }, true},
		{"zero cpu per item is invalid", func(c *Config) { c.Batch.CPUPerItem = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	cfg := Config{Batch: BatchConfig{TimeoutSeconds: 500}}
	assert.Equal(t, "8m20s", cfg.Timeout().String())
}
