package async

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/vsbatch/errors"
)

func readCSV(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func newTestSink(fs afero.Fs) *CSVFaultSink {
	sink := NewCSVFaultSink(fs, filepath.Join("output", "vina_error_log.csv"), "faulty")
	sink.Now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	}
	return sink
}

func TestCSVFaultSink_InitWritesHeaderOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := newTestSink(fs)

	require.NoError(t, sink.Init())
	require.NoError(t, sink.Init())

	rows := readCSV(t, fs, sink.LogPath)
	assert.Equal(t, [][]string{FailureRecordHeader}, rows)

	exists, err := afero.DirExists(fs, "faulty")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCSVFaultSink_InitKeepsExistingRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	existing := "Timestamp,Ligand,Error\n2026-01-01T00:00:00.000000Z,lig_DB00007,Timeout (500s) exceeded\n"
	require.NoError(t, afero.WriteFile(fs, filepath.Join("output", "vina_error_log.csv"), []byte(existing), 0644))

	sink := newTestSink(fs)
	require.NoError(t, sink.Init())

	rows := readCSV(t, fs, sink.LogPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "lig_DB00007", rows[1][1])
}

func TestCSVFaultSink_InitHeadersEmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("output", "vina_error_log.csv"), nil, 0644))

	sink := newTestSink(fs)
	require.NoError(t, sink.Init())
	assert.Equal(t, [][]string{FailureRecordHeader}, readCSV(t, fs, sink.LogPath))
}

func TestCSVFaultSink_RecordAppendsAndQuarantines(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte("ATOM      1  C   LIG     1\n")
	require.NoError(t, afero.WriteFile(fs, "ligands/lig_DB00001.pdbqt", content, 0600))
	mtime := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, fs.Chtimes("ligands/lig_DB00001.pdbqt", mtime, mtime))

	sink := newTestSink(fs)
	require.NoError(t, sink.Init())

	item := Item{Path: "ligands/lig_DB00001.pdbqt", Name: "lig_DB00001"}
	dest, err := sink.Record(item, "Subprocess error: exit status 1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("faulty", "lig_DB00001.pdbqt"), dest)

	rows := readCSV(t, fs, sink.LogPath)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2026-03-14T09:26:53.589793Z", "lig_DB00001", "Subprocess error: exit status 1"}, rows[1])

	copied, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, content, copied)

	info, err := fs.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "quarantine copy should keep the source mtime")
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())

	// A later failure of the same input overwrites the quarantine copy
	require.NoError(t, afero.WriteFile(fs, item.Path, []byte("changed"), 0600))
	_, err = sink.Record(item, "Timeout (500s) exceeded")
	require.NoError(t, err)
	copied, err = afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, "changed", string(copied))
	assert.Len(t, readCSV(t, fs, sink.LogPath), 3)
}

func TestCSVFaultSink_ReasonWithCommaAndNewlineStaysOneRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "ligands/lig_DB00002.pdbqt")
	sink := newTestSink(fs)
	require.NoError(t, sink.Init())

	reason := "open output/lig_DB00002_log.txt: no space left, device full\nsecond line"
	_, err := sink.Record(Item{Path: "ligands/lig_DB00002.pdbqt", Name: "lig_DB00002"}, reason)
	require.NoError(t, err)

	rows := readCSV(t, fs, sink.LogPath)
	require.Len(t, rows, 2)
	assert.Equal(t, reason, rows[1][2])
}

func TestCSVFaultSink_ConcurrentRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := newTestSink(fs)
	require.NoError(t, sink.Init())

	const failures = 64
	items := make([]Item, failures)
	for i := range items {
		name := fmt.Sprintf("lig_DB%05d", i)
		items[i] = Item{Path: filepath.Join("ligands", name+".pdbqt"), Name: name, Index: i, Total: failures}
		writeFiles(t, fs, items[i].Path)
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sink.Record(item, "Subprocess error: exit status 1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows := readCSV(t, fs, sink.LogPath)
	require.Len(t, rows, failures+1)
	assert.Equal(t, FailureRecordHeader, rows[0])

	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		require.Len(t, row, 3)
		assert.NotEqual(t, "Timestamp", row[0], "header must appear exactly once")
		seen[row[1]] = true
	}
	assert.Len(t, seen, failures)

	quarantined, err := afero.ReadDir(fs, "faulty")
	require.NoError(t, err)
	assert.Len(t, quarantined, failures)
}

func TestCSVFaultSink_MissingInputIsFaultSinkError(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := newTestSink(fs)
	require.NoError(t, sink.Init())

	dest, err := sink.Record(Item{Path: "ligands/gone.pdbqt", Name: "gone"}, "Subprocess error: exit status 1")
	require.Error(t, err)
	assert.True(t, errors.IsFaultSinkError(err))
	assert.Empty(t, dest)

	// The failure record itself still landed
	assert.Len(t, readCSV(t, fs, sink.LogPath), 2)
}

func TestCSVFaultSink_ReadOnlyFsFailsInit(t *testing.T) {
	sink := newTestSink(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	err := sink.Init()
	require.Error(t, err)
	assert.True(t, errors.IsFaultSinkError(err))
}
