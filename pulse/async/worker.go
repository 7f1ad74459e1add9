package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
	"github.com/teranos/vsbatch/pulse"
	"github.com/teranos/vsbatch/sym"
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event - uses DEBUG level for "STARTING" appearance
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event - uses WARN level for "CLOSING" appearance
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// Pulse logs general Pulse/worker operations - uses INFO level
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, keysAndValues...)
}

// OutcomeRecorder persists outcomes as they complete (e.g. the run ledger).
// Recording failures are logged and never change an item's outcome.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers           int     `json:"workers"`             // Concurrent Runner invocations, already capped by the caller
	LaunchesPerSecond float64 `json:"launches_per_second"` // Fixed process launch rate, 0 = unlimited
}

// WorkerPool dispatches a batch onto at most Workers concurrent Runner invocations.
// One item's failure never cancels or blocks another; Run returns only after every item
// reached a terminal outcome.
type WorkerPool struct {
	guard    Guard
	runner   Runner
	sink     FaultSink
	emitter  pulse.ProgressEmitter
	recorder OutcomeRecorder
	limiter  *rate.Limiter
	workers  int
	logger   pulseLogger

	mu            sync.Mutex
	activeWorkers int // Runner invocations currently in flight
	peakWorkers   int // Highest activeWorkers observed during Run
	summary       Summary
	sinkErr       error
}

// NewWorkerPool creates a pool. guard, runner and sink are required.
func NewWorkerPool(cfg WorkerPoolConfig, guard Guard, runner Runner, sink FaultSink, log *zap.SugaredLogger) *WorkerPool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var limiter *rate.Limiter
	if cfg.LaunchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LaunchesPerSecond), 1)
	}

	return &WorkerPool{
		guard:   guard,
		runner:  runner,
		sink:    sink,
		emitter: pulse.NopEmitter{},
		limiter: limiter,
		workers: workers,
		logger:  pulseLogger{log.Named("pulse")},
	}
}

// WithEmitter sets the progress emitter for status lines
func (wp *WorkerPool) WithEmitter(emitter pulse.ProgressEmitter) *WorkerPool {
	if emitter != nil {
		wp.emitter = emitter
	}
	return wp
}

// WithRecorder attaches an outcome recorder
func (wp *WorkerPool) WithRecorder(recorder OutcomeRecorder) *WorkerPool {
	wp.recorder = recorder
	return wp
}

// Workers returns the concurrency bound
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Run dispatches every item and blocks until the batch is drained.
// The returned error is non-nil only when the fault sink could not be initialised (no item ran)
// or could not record a failure (every item still ran); in both cases it is marked ErrFaultSink.
func (wp *WorkerPool) Run(ctx context.Context, items []Item) (Summary, error) {
	start := time.Now()

	wp.mu.Lock()
	wp.summary = Summary{Total: len(items)}
	wp.sinkErr = nil
	wp.activeWorkers, wp.peakWorkers = 0, 0
	wp.mu.Unlock()

	if err := wp.sink.Init(); err != nil {
		wp.logger.Errorw("Fault sink unavailable, batch not started", logger.FieldSymbol, sym.Fault, logger.FieldError, err)
		return wp.snapshot(), err
	}

	wp.logger.Starting("Dispatching batch",
		logger.FieldTotal, len(items),
		logger.FieldWorkers, wp.workers,
	)
	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.SugaredLogger.Warnw("Memory pressure warning", "warning", warning, logger.FieldWorkers, wp.workers)
	}

	g := new(errgroup.Group)
	g.SetLimit(wp.workers)
	for _, item := range items {
		g.Go(func() error {
			wp.observe(ctx, wp.process(ctx, item))
			return nil
		})
	}
	_ = g.Wait()

	summary := wp.snapshot()
	wp.emitter.Summary(summary.Total, len(summary.Skipped), len(summary.Succeeded), len(summary.Failed))

	fields := []interface{}{
		logger.FieldTotal, summary.Total,
		logger.FieldSkipped, len(summary.Skipped),
		logger.FieldSucceeded, len(summary.Succeeded),
		logger.FieldFailed, len(summary.Failed),
		"peak_in_flight", summary.Peak,
		"memory_percent", wp.GetSystemMetrics().MemoryPercent,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	}
	if len(summary.Failed) > 0 {
		wp.logger.Closing("Batch drained with failures", fields...)
	} else {
		wp.logger.Pulse("Batch drained", fields...)
	}

	wp.mu.Lock()
	sinkErr := wp.sinkErr
	wp.mu.Unlock()
	return summary, sinkErr
}

// process takes one item to its terminal outcome
func (wp *WorkerPool) process(ctx context.Context, item Item) Outcome {
	log := wp.logger.With(logger.FieldItem, item.Name, logger.FieldIndex, item.Index, "position", item.Position())

	// Checked at dispatch time so artifacts finished since enumeration are respected
	if wp.guard.Done(item) {
		wp.emitter.ItemSkipped(item.Name, item.Index, item.Total)
		log.Debugw("Skipping item, artifacts present")
		return Outcome{Item: item, Status: StatusSkipped}
	}

	wp.emitter.ItemStarted(item.Name, item.Index, item.Total)

	var result RunResult
	if err := wp.waitForLaunch(ctx); err != nil {
		result = RunResult{Kind: ResultIOError, Detail: err.Error(), ExitCode: -1}
	} else {
		wp.enter()
		result = wp.runner.Run(ctx, item)
		wp.leave()
	}

	if result.OK() {
		wp.emitter.ItemSucceeded(item.Name, result.Duration)
		log.Debugw("Item succeeded", logger.FieldDurationMS, result.Duration.Milliseconds())
		return Outcome{Item: item, Status: StatusSucceeded, Result: result}
	}

	reason := result.Reason()
	quarantine, sinkErr := wp.sink.Record(item, reason)
	wp.emitter.ItemFailed(item.Name, reason, quarantine)
	log.Warnw("Item failed",
		logger.FieldKind, result.Kind,
		logger.FieldReason, reason,
		logger.FieldExitCode, result.ExitCode,
		logger.FieldDurationMS, result.Duration.Milliseconds(),
		logger.FieldError, result.Err(),
	)
	if sinkErr != nil {
		log.Errorw("Failed to record failure", logger.FieldSymbol, sym.Fault, logger.FieldError, sinkErr)
	}

	return Outcome{Item: item, Status: StatusFailed, Result: result, Quarantine: quarantine, Err: sinkErr}
}

// observe folds a completed outcome into the summary, in completion order
func (wp *WorkerPool) observe(ctx context.Context, outcome Outcome) {
	wp.mu.Lock()
	wp.summary.add(outcome)
	if outcome.Err != nil {
		wp.sinkErr = errors.CombineErrors(wp.sinkErr, outcome.Err)
	}
	wp.mu.Unlock()

	if wp.recorder == nil {
		return
	}
	if err := wp.recorder.RecordOutcome(ctx, outcome); err != nil {
		wp.logger.SugaredLogger.Warnw("Failed to record outcome",
			logger.FieldItem, outcome.Item.Name,
			logger.FieldError, err,
		)
	}
}

func (wp *WorkerPool) waitForLaunch(ctx context.Context) error {
	if wp.limiter == nil {
		return nil
	}
	if err := wp.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "launch rate limiter")
	}
	return nil
}

func (wp *WorkerPool) enter() {
	wp.mu.Lock()
	wp.activeWorkers++
	if wp.activeWorkers > wp.peakWorkers {
		wp.peakWorkers = wp.activeWorkers
	}
	wp.mu.Unlock()
}

func (wp *WorkerPool) leave() {
	wp.mu.Lock()
	wp.activeWorkers--
	wp.mu.Unlock()
}

func (wp *WorkerPool) snapshot() Summary {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	s := wp.summary
	s.Peak = wp.peakWorkers
	return s
}
