package async

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/errors"
)

// FailureRecordHeader is the first row of the error log
var FailureRecordHeader = []string{"Timestamp", "Ligand", "Error"}

// TimestampLayout is ISO-8601 with microseconds and offset
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FaultSink records failed items. Every error it returns is marked with errors.ErrFaultSink.
type FaultSink interface {
	// Init prepares the log and quarantine area once, before any batch work starts
	Init() error

	// Record appends one failure record and copies the item's input into quarantine.
	// It returns the quarantine path even when only the log append failed.
	Record(item Item, reason string) (quarantinePath string, err error)
}

// CSVFaultSink appends failure records to a CSV file and copies failing inputs into a
// quarantine directory. Safe for concurrent use by the pool's workers.
type CSVFaultSink struct {
	Fs            afero.Fs
	LogPath       string
	QuarantineDir string
	Now           func() time.Time

	mu sync.Mutex // Serializes appends so rows never interleave
}

// NewCSVFaultSink creates a sink writing to logPath and quarantining into quarantineDir
func NewCSVFaultSink(fs afero.Fs, logPath, quarantineDir string) *CSVFaultSink {
	return &CSVFaultSink{
		Fs:            fs,
		LogPath:       logPath,
		QuarantineDir: quarantineDir,
		Now:           time.Now,
	}
}

// Init creates the quarantine directory and writes the header row when the log is new or empty.
// An existing log keeps its rows; a resumed batch appends after them.
func (s *CSVFaultSink) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Fs.MkdirAll(s.QuarantineDir, am.DefaultDirPermissions); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to create quarantine directory %s", s.QuarantineDir), errors.ErrFaultSink)
	}
	if err := s.Fs.MkdirAll(filepath.Dir(s.LogPath), am.DefaultDirPermissions); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to create error log directory for %s", s.LogPath), errors.ErrFaultSink)
	}

	info, err := s.Fs.Stat(s.LogPath)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return errors.Mark(errors.Wrapf(err, "failed to stat error log %s", s.LogPath), errors.ErrFaultSink)
	}

	if err := s.appendRow(FailureRecordHeader); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to write error log header"), errors.ErrFaultSink)
	}
	return nil
}

// Record appends a {timestamp, item name, reason} row and copies the input file into quarantine,
// overwriting a previous copy with the same name
func (s *CSVFaultSink) Record(item Item, reason string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	row := []string{now().Format(TimestampLayout), item.Name, reason}

	s.mu.Lock()
	appendErr := s.appendRow(row)
	s.mu.Unlock()

	dest := filepath.Join(s.QuarantineDir, filepath.Base(item.Path))
	copyErr := copyFile(s.Fs, item.Path, dest)

	var err error
	if appendErr != nil {
		err = errors.Wrapf(appendErr, "failed to append failure record for %s", item.Name)
	}
	if copyErr != nil {
		dest = ""
		err = errors.CombineErrors(err, errors.Wrapf(copyErr, "failed to quarantine %s", item.Path))
	}
	if err != nil {
		return dest, errors.Mark(err, errors.ErrFaultSink)
	}
	return dest, nil
}

// appendRow writes one CSV row with O_APPEND and flushes before closing. Callers hold s.mu.
func (s *CSVFaultSink) appendRow(row []string) error {
	f, err := s.Fs.OpenFile(s.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrapf(err, "failed to open error log %s", s.LogPath)
	}

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to encode failure record")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to flush failure record")
	}
	return f.Close()
}

// copyFile copies src to dst, preserving permission bits and modification time
func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", src)
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", dst)
	}

	if err := fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return errors.Wrapf(err, "failed to preserve modification time on %s", dst)
	}
	return nil
}
