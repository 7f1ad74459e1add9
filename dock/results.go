package dock

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
	"github.com/teranos/vsbatch/pulse/async"
)

// RankingHeader is the first row of the ranked results CSV
var RankingHeader = []string{"Rank", "DrugBank ID", "Binding Affinity (kcal/mol)"}

// bestPosePrefix marks the first row of Vina's result table (mode 1, the best pose)
const bestPosePrefix = "1 "

// maxLogLine bounds a single log line; Vina lines are short but warnings can run long
const maxLogLine = 1024 * 1024

// Ranked is one row of the ranked table
type Ranked struct {
	Rank     int     `json:"rank"`     // 1-based, dense
	ID       string  `json:"id"`       // Derived from the item name
	Affinity float64 `json:"affinity"` // kcal/mol, lower is better
	Item     string  `json:"item"`     // Item name the row came from
}

// ParseAffinity returns the affinity of the best pose: the second field of the first line whose
// trimmed content starts with "1 ". Only that first line is considered. found is false when
// there is no such line, it has fewer than two fields, or the field is not a float.
func ParseAffinity(r io.Reader) (affinity float64, found bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, bestPosePrefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false, nil
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, false, nil
		}
		return value, true, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, false, errors.Wrap(err, "failed to read docking log")
	}
	return 0, false, nil
}

// DeriveID extracts the secondary identifier from an item name: the second "_"-separated
// token when present and non-empty, otherwise the full name.
//
//	DeriveID("lig_DB00001")      == "DB00001"
//	DeriveID("lig_DB00001_conf") == "DB00001"
//	DeriveID("DB00001")          == "DB00001"
func DeriveID(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return name
}

// ItemNameFromLog recovers the item name from a log artifact path
func ItemNameFromLog(path string) string {
	return strings.TrimSuffix(filepath.Base(path), async.LogSuffix)
}

// Collector scans the output directory for log artifacts and ranks their affinities.
// It runs only after the batch has drained.
type Collector struct {
	Fs        afero.Fs
	OutputDir string
	Logger    *zap.SugaredLogger
}

// Collect parses every <name>_log.txt under OutputDir, sorts by affinity ascending and assigns
// ranks. Ties keep the lexicographic order of the log files. Logs without a parsable best pose
// contribute no row.
func (c Collector) Collect() ([]Ranked, error) {
	log := c.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	entries, err := afero.ReadDir(c.Fs, c.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Ranked{}, nil
		}
		return nil, errors.Wrapf(err, "failed to list output directory %s", c.OutputDir)
	}

	results := []Ranked{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), async.LogSuffix) {
			continue
		}
		path := filepath.Join(c.OutputDir, entry.Name())
		name := ItemNameFromLog(path)

		affinity, found, err := c.parseFile(path)
		if err != nil {
			log.Warnw("Skipping unreadable docking log", logger.FieldPath, path, logger.FieldError, err)
			continue
		}
		if !found {
			log.Debugw("No best pose in docking log", logger.FieldItem, name)
			continue
		}
		results = append(results, Ranked{ID: DeriveID(name), Affinity: affinity, Item: name})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Affinity < results[j].Affinity
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	log.Infow("Collected docking results", logger.FieldCount, len(results), logger.FieldPath, c.OutputDir)
	return results, nil
}

func (c Collector) parseFile(path string) (float64, bool, error) {
	f, err := c.Fs.Open(path)
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return ParseAffinity(f)
}

// WriteRanking writes the ranked table as CSV. The file is written beside its final path and
// renamed into place, so readers never see a half-written ranking.
func WriteRanking(fs afero.Fs, path string, results []Ranked) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp := path + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}

	w := csv.NewWriter(f)
	if err := w.Write(RankingHeader); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write ranking header")
	}
	for _, r := range results {
		row := []string{strconv.Itoa(r.Rank), r.ID, strconv.FormatFloat(r.Affinity, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to write ranking row %d", r.Rank)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to flush ranking")
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp)
	}

	if err := fs.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to move ranking into place at %s", path)
	}
	return nil
}
