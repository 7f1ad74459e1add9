package pulse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/vsbatch/errors"
)

// Compile-time interface checks
var (
	_ ProgressEmitter = NopEmitter{}
	_ ProgressEmitter = (*CLIEmitter)(nil)
	_ ProgressEmitter = (*JSONEmitter)(nil)
)

func TestJSONEmitter_OneEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf)

	e.ItemStarted("lig_DB00001", 0, 2)
	e.ItemSkipped("lig_DB00002", 1, 2)
	e.ItemFailed("lig_DB00001", "Timeout (500s) exceeded", "faulty/lig_DB00001.pdbqt")
	e.ItemSucceeded("lig_DB00003", 1500*time.Millisecond)
	e.Summary(2, 1, 0, 1)
	e.ResultsWritten("output/docking_results_drugbank_.csv", "output/vina_error_log.csv")

	var types []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var event ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{"started", "skipped", "failed", "succeeded", "summary", "results"}, types)
	assert.NoError(t, e.Err())
}

func TestJSONEmitter_FailedCarriesReason(t *testing.T) {
	var buf bytes.Buffer
	NewJSONEmitter(&buf).ItemFailed("lig_DB00001", "Subprocess error: exit status 1", "")

	var event ProgressEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "lig_DB00001", event.Data["item"])
	assert.Equal(t, "Subprocess error: exit status 1", event.Data["reason"])
}

func TestJSONEmitter_ResultsCarryPaths(t *testing.T) {
	var buf bytes.Buffer
	NewJSONEmitter(&buf).ResultsWritten("output/ranking.csv", "output/errors.csv")

	var event ProgressEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "results", event.Type)
	assert.Equal(t, "output/ranking.csv", event.Data["ranking"])
	assert.Equal(t, "output/errors.csv", event.Data["error_log"])
}

type brokenWriter struct{ writes int }

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("stdout closed")
}

func TestJSONEmitter_KeepsFirstWriteError(t *testing.T) {
	w := &brokenWriter{}
	e := NewJSONEmitter(w)

	e.ItemStarted("lig_DB00001", 0, 1)
	e.Summary(1, 0, 1, 0)

	require.Error(t, e.Err())
	assert.Contains(t, e.Err().Error(), "stdout closed")
	assert.Equal(t, 2, w.writes, "later events are still attempted")
}
