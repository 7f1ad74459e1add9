package async

import (
	"context"
	"os/exec"
	"time"

	"github.com/teranos/vsbatch/errors"
)

// classify maps the outcome of cmd.Run to a RunResult. The deadline is checked before the exit
// status: a killed process also reports an *exec.ExitError.
func classify(runCtx context.Context, err error, timeout time.Duration) RunResult {
	if err == nil {
		return RunResult{Kind: ResultSuccess}
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return RunResult{Kind: ResultTimeout, Detail: TimeoutDetail(timeout), ExitCode: -1}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return RunResult{Kind: ResultProcessFailure, Detail: exitErr.Error(), ExitCode: exitErr.ExitCode()}
	}
	return RunResult{Kind: ResultIOError, Detail: err.Error(), ExitCode: -1}
}
