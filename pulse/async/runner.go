package async

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
)

// Runner executes one item and classifies the outcome. It never panics on item failure;
// every failure is carried in the returned RunResult.
type Runner interface {
	Run(ctx context.Context, item Item) RunResult
}

// CommandBuilder binds an item and its artifacts to an executable invocation
type CommandBuilder interface {
	Command(item Item, out Artifacts) (name string, args []string)
}

// waitDelay bounds how long Wait lingers on output copying after the process group is killed
const waitDelay = 5 * time.Second

// ProcessRunner runs an external command per item with a wall-clock timeout.
// Combined stdout and stderr go to the log artifact; the command itself writes the primary artifact.
// Partial artifacts left by a timeout or crash are not cleaned up.
type ProcessRunner struct {
	Fs      afero.Fs
	Layout  Layout
	Command CommandBuilder
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// Run executes the item's command and classifies the result as success, process failure,
// timeout or I/O error
func (r *ProcessRunner) Run(ctx context.Context, item Item) RunResult {
	start := time.Now()
	artifacts := r.Layout.For(item)
	name, args := r.Command.Command(item, artifacts)

	log := r.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With(logger.FieldItem, item.Name, logger.FieldBinary, name)

	logFile, err := r.Fs.OpenFile(artifacts.Log, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, am.DefaultFilePermissions)
	if err != nil {
		return RunResult{
			Kind:     ResultIOError,
			Detail:   errors.Wrapf(err, "failed to open log artifact %s", artifacts.Log).Error(),
			ExitCode: -1,
			Duration: time.Since(start),
		}
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	log.Debugw("Launching process", logger.FieldArgs, args, logger.FieldTimeout, r.Timeout)
	runErr := cmd.Run()
	closeErr := logFile.Close()
	duration := time.Since(start)

	result := classify(runCtx, runErr, r.Timeout)
	result.Duration = duration
	if result.OK() && closeErr != nil {
		result = RunResult{
			Kind:     ResultIOError,
			Detail:   errors.Wrapf(closeErr, "failed to close log artifact %s", artifacts.Log).Error(),
			ExitCode: 0,
			Duration: duration,
		}
	}

	log.Debugw("Process finished",
		logger.FieldKind, result.Kind,
		logger.FieldExitCode, result.ExitCode,
		logger.FieldDurationMS, duration.Milliseconds(),
	)
	return result
}
