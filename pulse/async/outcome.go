package async

import (
	"fmt"
	"time"

	"github.com/teranos/vsbatch/errors"
)

// ResultKind classifies a single execution
type ResultKind string

const (
	ResultSuccess        ResultKind = "success"
	ResultProcessFailure ResultKind = "process_failure" // Non-zero exit or killed by a signal
	ResultTimeout        ResultKind = "timeout"         // Wall-clock budget exceeded, process group killed
	ResultIOError        ResultKind = "io_error"        // Anything else: log open, exec lookup, close
)

// RunResult is the tagged outcome of one Runner invocation
type RunResult struct {
	Kind     ResultKind    `json:"kind"`
	Detail   string        `json:"detail,omitempty"`    // Exit detail, timeout budget or I/O error text
	ExitCode int           `json:"exit_code,omitempty"` // -1 when the process did not exit normally
	Duration time.Duration `json:"duration"`
}

// OK reports whether the run succeeded
func (r RunResult) OK() bool {
	return r.Kind == ResultSuccess
}

// Reason renders the human-readable reason written to the error log
func (r RunResult) Reason() string {
	switch r.Kind {
	case ResultSuccess:
		return ""
	case ResultProcessFailure:
		return "Subprocess error: " + r.Detail
	default:
		return r.Detail
	}
}

// Err converts a failed result into an error carrying the matching sentinel
func (r RunResult) Err() error {
	switch r.Kind {
	case ResultSuccess:
		return nil
	case ResultProcessFailure:
		return errors.Wrap(errors.ErrProcessFailed, r.Detail)
	case ResultTimeout:
		return errors.Wrap(errors.ErrTimeout, r.Detail)
	default:
		return errors.New(r.Detail)
	}
}

// TimeoutDetail formats the reason recorded for a timed-out item
func TimeoutDetail(timeout time.Duration) string {
	return fmt.Sprintf("Timeout (%gs) exceeded", timeout.Seconds())
}

// Status is the terminal state of an item within a batch
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome is what the pool observed for one item
type Outcome struct {
	Item       Item      `json:"item"`
	Status     Status    `json:"status"`
	Result     RunResult `json:"result"`               // Zero for skipped items
	Quarantine string    `json:"quarantine,omitempty"` // Copy of the input for failed items
	Err        error     `json:"-"`                    // FaultSink error, if recording the failure itself failed
}

// Summary partitions the batch into its three terminal sets
type Summary struct {
	Total     int    `json:"total"`
	Skipped   []Item `json:"skipped"`
	Succeeded []Item `json:"succeeded"`
	Failed    []Item `json:"failed"`
	Peak      int    `json:"peak"` // Maximum in-flight Runner invocations observed
}

func (s *Summary) add(o Outcome) {
	switch o.Status {
	case StatusSkipped:
		s.Skipped = append(s.Skipped, o.Item)
	case StatusSucceeded:
		s.Succeeded = append(s.Succeeded, o.Item)
	case StatusFailed:
		s.Failed = append(s.Failed, o.Item)
	}
}

// Drained reports whether every item reached a terminal state
func (s Summary) Drained() bool {
	return len(s.Skipped)+len(s.Succeeded)+len(s.Failed) == s.Total
}
