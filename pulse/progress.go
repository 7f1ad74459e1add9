// Package pulse holds the progress reporting surface shared by the batch worker pool and the CLI.
package pulse

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// ProgressEmitter receives per-item status transitions from the worker pool.
// Calls arrive from many workers at once, in completion order; implementations must be safe
// for concurrent use.
type ProgressEmitter interface {
	// ItemStarted announces that an item is about to be executed (index is 0-based)
	ItemStarted(name string, index, total int)

	// ItemSkipped announces that prior output already satisfies the item
	ItemSkipped(name string, index, total int)

	// ItemSucceeded announces a zero exit within the timeout
	ItemSucceeded(name string, duration time.Duration)

	// ItemFailed announces a failure and where the input was quarantined (empty if the copy failed)
	ItemFailed(name string, reason string, quarantinePath string)

	// Summary announces the drained batch
	Summary(total, skipped, succeeded, failed int)

	// ResultsWritten announces where the ranking and the error log ended up
	ResultsWritten(rankingPath, errorLogPath string)
}

// NopEmitter discards every event
type NopEmitter struct{}

func (NopEmitter) ItemStarted(string, int, int)        {}
func (NopEmitter) ItemSkipped(string, int, int)        {}
func (NopEmitter) ItemSucceeded(string, time.Duration) {}
func (NopEmitter) ItemFailed(string, string, string)   {}
func (NopEmitter) Summary(int, int, int, int)          {}
func (NopEmitter) ResultsWritten(string, string)       {}

// CLIEmitter outputs status lines to the terminal using pterm
type CLIEmitter struct {
	verbosity int
	mu        sync.Mutex
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

// ItemStarted prints "Processing <name>: i/total"
func (e *CLIEmitter) ItemStarted(name string, index, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Printf("Processing %s: %d/%d\n", pterm.LightCyan(name), index+1, total)
}

// ItemSkipped prints "Skipping <name>: i/total (already processed)"
func (e *CLIEmitter) ItemSkipped(name string, index, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Printf("Skipping %s: %d/%d (already processed)\n", name, index+1, total)
}

// ItemSucceeded is only printed at -v and above
func (e *CLIEmitter) ItemSucceeded(name string, duration time.Duration) {
	if e.verbosity < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Printf("Docked %s in %s\n", pterm.Green(name), duration.Round(time.Millisecond))
}

// ItemFailed prints the failure reason and the quarantine copy location
func (e *CLIEmitter) ItemFailed(name string, reason string, quarantinePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Error.Printf("%s: %s\n", name, reason)
	if quarantinePath != "" {
		pterm.Printf("Copied faulty ligand to: %s\n", quarantinePath)
	}
}

// Summary prints the batch totals
func (e *CLIEmitter) Summary(total, skipped, succeeded, failed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if failed > 0 {
		pterm.Warning.Printf("Batch drained: %d items, %d skipped, %d succeeded, %d failed\n", total, skipped, succeeded, failed)
		return
	}
	pterm.Success.Printf("Batch drained: %d items, %d skipped, %d succeeded\n", total, skipped, succeeded)
}

// ResultsWritten prints the ranking and error log locations
func (e *CLIEmitter) ResultsWritten(rankingPath, errorLogPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pterm.Printf("Results have been saved to %s\n", rankingPath)
	pterm.Printf("Any errors have been logged to %s\n", errorLogPath)
}

// ProgressEvent represents a structured JSON progress event
type ProgressEvent struct {
	Type      string                 `json:"type"`      // "started", "skipped", "succeeded", "failed", "summary", "results"
	Timestamp time.Time              `json:"timestamp"` // When this event occurred
	Data      map[string]interface{} `json:"data"`      // Event-specific data
}

// JSONEmitter writes one JSON event per line, for runs whose output is consumed by other tools
type JSONEmitter struct {
	encoder *json.Encoder
	mu      sync.Mutex
	err     error // First write failure; later events are still attempted
}

// NewJSONEmitter creates a JSON progress emitter writing to w (stdout when nil)
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.encoder.Encode(ProgressEvent{Type: eventType, Timestamp: time.Now(), Data: data}); err != nil && e.err == nil {
		e.err = err
	}
}

// Err returns the first error hit while writing events
func (e *JSONEmitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *JSONEmitter) ItemStarted(name string, index, total int) {
	e.emit("started", map[string]interface{}{"item": name, "index": index, "total": total})
}

func (e *JSONEmitter) ItemSkipped(name string, index, total int) {
	e.emit("skipped", map[string]interface{}{"item": name, "index": index, "total": total})
}

func (e *JSONEmitter) ItemSucceeded(name string, duration time.Duration) {
	e.emit("succeeded", map[string]interface{}{"item": name, "duration_ms": duration.Milliseconds()})
}

func (e *JSONEmitter) ItemFailed(name string, reason string, quarantinePath string) {
	e.emit("failed", map[string]interface{}{"item": name, "reason": reason, "quarantine": quarantinePath})
}

func (e *JSONEmitter) Summary(total, skipped, succeeded, failed int) {
	e.emit("summary", map[string]interface{}{
		"total":     total,
		"skipped":   skipped,
		"succeeded": succeeded,
		"failed":    failed,
	})
}

func (e *JSONEmitter) ResultsWritten(rankingPath, errorLogPath string) {
	e.emit("results", map[string]interface{}{"ranking": rankingPath, "error_log": errorLogPath})
}
