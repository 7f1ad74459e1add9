package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/db"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/pulse"
	"github.com/teranos/vsbatch/pulse/async"
	"github.com/teranos/vsbatch/pulse/ledger"
)

// fakeVina reads the affinity to report from the ligand file and fails on ligands named *bad*
const fakeVina = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --ligand) lig="$2"; shift 2 ;;
    --out) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
case "$lig" in
  *bad*) echo "PDBQT parsing error" >&2; exit 2 ;;
esac
echo "mode |   affinity | dist from best mode"
echo "   1       $(cat "$lig")      0.000      0.000"
echo "MODEL 1" > "$out"
`

type screenFixture struct {
	root string
	cfg  *am.Config
}

func newScreenFixture(t *testing.T) *screenFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("batch tests use a /bin/sh fake vina")
	}

	root := t.TempDir()
	ligands := filepath.Join(root, "ligands")
	output := filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(ligands, 0755))

	vina := filepath.Join(root, "vina")
	require.NoError(t, os.WriteFile(vina, []byte(fakeVina), 0755))

	for name, affinity := range map[string]string{
		"lig_DB001.pdbqt":     "-7.2",
		"lig_DB002.pdbqt":     "-10.1",
		"lig_DB003_bad.pdbqt": "0",
		"notes.txt":           "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(ligands, name), []byte(affinity), 0644))
	}

	cfg := &am.Config{
		Batch: am.BatchConfig{
			ReceptorFile:   filepath.Join(root, "receptor.pdbqt"),
			LigandDir:      ligands,
			LigandExt:      ".pdbqt",
			OutputDir:      output,
			ConfigFile:     filepath.Join(root, "conf.txt"),
			VinaPath:       vina,
			FaultyDir:      filepath.Join(root, "faulty"),
			TimeoutSeconds: 30,
			MaxWorkers:     am.DefaultMaxWorkers,
			CPUPerItem:     1,
		},
		Results: am.ResultsConfig{ErrorLog: am.DefaultErrorLog, Ranking: am.DefaultRanking},
		Ledger:  am.LedgerConfig{Enabled: true},
	}
	require.NoError(t, cfg.Validate())
	return &screenFixture{root: root, cfg: cfg}
}

func (f *screenFixture) run(t *testing.T) (*batchReport, error) {
	t.Helper()
	return runBatch(context.Background(), f.cfg, batchEnv{
		fs:      afero.NewOsFs(),
		emitter: pulse.NopEmitter{},
		log:     zap.NewNop().Sugar(),
		cpus:    2,
	})
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunBatch_EndToEnd(t *testing.T) {
	f := newScreenFixture(t)

	report, err := f.run(t)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 2, report.Workers)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Len(t, report.Summary.Succeeded, 2)
	assert.Len(t, report.Summary.Failed, 1)
	assert.Equal(t, "lig_DB003_bad", report.Summary.Failed[0].Name)

	// Ranking: most negative first, the failed ligand has no best pose
	assert.Equal(t, [][]string{
		{"Rank", "DrugBank ID", "Binding Affinity (kcal/mol)"},
		{"1", "DB002", "-10.1"},
		{"2", "DB001", "-7.2"},
	}, readRows(t, report.RankingPath))

	errorRows := readRows(t, report.ErrorLogPath)
	require.Len(t, errorRows, 2)
	assert.Equal(t, []string{"Timestamp", "Ligand", "Error"}, errorRows[0])
	assert.Equal(t, "lig_DB003_bad", errorRows[1][1])
	assert.Contains(t, errorRows[1][2], "Subprocess error")

	assert.FileExists(t, filepath.Join(f.cfg.Batch.FaultyDir, "lig_DB003_bad.pdbqt"))
	assert.NoFileExists(t, filepath.Join(f.cfg.Batch.FaultyDir, "lig_DB001.pdbqt"))
	assert.FileExists(t, filepath.Join(f.cfg.Batch.OutputDir, "lig_DB001_out.pdbqt"))
	assert.FileExists(t, filepath.Join(f.cfg.Batch.OutputDir, "lig_DB001_log.txt"))
}

func TestRunBatch_ResumeSkipsFinishedAndRetriesFailed(t *testing.T) {
	f := newScreenFixture(t)

	_, err := f.run(t)
	require.NoError(t, err)

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Len(t, report.Summary.Skipped, 2)
	assert.Empty(t, report.Summary.Succeeded)
	assert.Len(t, report.Summary.Failed, 1, "failed ligands have no primary artifact and are retried")

	// The error log keeps one header and appends the retried failure
	rows := readRows(t, report.ErrorLogPath)
	assert.Len(t, rows, 3)
	assert.Len(t, readRows(t, report.RankingPath), 3)
}

func TestRunBatch_LedgerRecordsRun(t *testing.T) {
	f := newScreenFixture(t)

	report, err := f.run(t)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	database, err := db.Open(f.cfg.LedgerPath(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer database.Close()
	store := ledger.NewStore(database)

	run, err := store.GetRun(report.RunID)
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Failed)

	failed, err := store.ListOutcomes(report.RunID, async.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "lig_DB003_bad", failed[0].Item)
}

func TestRunBatch_LedgerFailureDoesNotStopBatch(t *testing.T) {
	f := newScreenFixture(t)
	f.cfg.Ledger.Path = filepath.Join(f.root, "missing", "dir", "vsbatch.db")

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Empty(t, report.RunID)
	assert.Len(t, report.Summary.Succeeded, 2)
}

func TestRunBatch_LedgerDisabled(t *testing.T) {
	f := newScreenFixture(t)
	f.cfg.Ledger.Enabled = false

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Empty(t, report.RunID)
	assert.NoFileExists(t, f.cfg.LedgerPath())
}

func TestRunBatch_FailOnErrors(t *testing.T) {
	f := newScreenFixture(t)
	f.cfg.Batch.FailOnErrors = true

	report, err := f.run(t)
	require.Error(t, err)
	require.NotNil(t, report, "the batch still drains and ranks")
	assert.Contains(t, err.Error(), "1 of 3 ligands failed")
	assert.FileExists(t, report.RankingPath)
}

func TestRunBatch_EmptyLigandDir(t *testing.T) {
	f := newScreenFixture(t)
	f.cfg.Batch.LigandDir = filepath.Join(f.root, "nowhere")

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Summary.Total)
	assert.Equal(t, [][]string{{"Rank", "DrugBank ID", "Binding Affinity (kcal/mol)"}}, readRows(t, report.RankingPath))
}

func TestRunBatch_InvalidExtraArgs(t *testing.T) {
	f := newScreenFixture(t)
	f.cfg.Batch.ExtraArgs = `--seed "42`

	report, err := f.run(t)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestRunBatch_UnwritableFaultSinkStopsBeforeDocking(t *testing.T) {
	f := newScreenFixture(t)
	blocker := filepath.Join(f.root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	f.cfg.Batch.FaultyDir = filepath.Join(blocker, "faulty")

	report, err := f.run(t)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, errors.ErrFaultSink))
	assert.NoFileExists(t, filepath.Join(f.cfg.Batch.OutputDir, "lig_DB001_log.txt"))
}

func TestParseStatusFilter(t *testing.T) {
	for value, want := range map[string]async.Status{
		"all":       "",
		"":          "",
		"failed":    async.StatusFailed,
		"skipped":   async.StatusSkipped,
		"succeeded": async.StatusSucceeded,
	} {
		got, err := parseStatusFilter(value)
		require.NoError(t, err, value)
		assert.Equal(t, want, got, value)
	}

	_, err := parseStatusFilter("pending")
	assert.Error(t, err)
}

func TestRunBatch_JSONLogsKeepStdoutMachineReadable(t *testing.T) {
	f := newScreenFixture(t)

	data, err := toml.Marshal(f.cfg)
	require.NoError(t, err)
	configPath := filepath.Join(f.root, "vsbatch.toml")
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	var stdout bytes.Buffer
	cmd := &cobra.Command{Use: "vsbatch", RunE: RunBatch, SilenceUsage: true, SilenceErrors: true}
	cmd.Flags().CountP("verbose", "v", "")
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("json-logs", false, "")
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--config", configPath, "--json-logs"})
	require.NoError(t, cmd.Execute())

	var events []pulse.ProgressEvent
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		var event pulse.ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event), "stdout line %q", scanner.Text())
		events = append(events, event)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "results", last.Type)
	assert.Equal(t, f.cfg.RankingPath(), last.Data["ranking"])
	assert.Equal(t, f.cfg.ErrorLogPath(), last.Data["error_log"])
}
