package commands

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/vsbatch/am"
	"github.com/teranos/vsbatch/dock"
	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/logger"
	"github.com/teranos/vsbatch/pulse"
	"github.com/teranos/vsbatch/pulse/async"
	"github.com/teranos/vsbatch/pulse/ledger"
	"github.com/teranos/vsbatch/sym"
)

// DockCmd runs the screening batch; the root command runs it too
var DockCmd = &cobra.Command{
	Use:   "dock",
	Short: sym.Dock + " Run the screening batch",
	Long: sym.Dock + ` dock: Dock every ligand against the receptor

For each ligand in batch.ligand_dir (sorted, non-recursive):
  - skip it when <name>_out<ext> and <name>_log.txt already exist in batch.output_dir
  - otherwise run Vina with a batch.timeout_seconds wall-clock budget
  - on failure append a row to results.error_log and copy the ligand to batch.faulty_dir

At most min(cpus, batch.max_workers) ligands dock at once unless batch.workers is set.
When the batch drains the best pose of every log is ranked into results.ranking.

Item failures do not change the exit code unless batch.fail_on_errors is set.
Failing to write the error log always exits non-zero.`,
	Args: cobra.NoArgs,
	RunE: RunBatch,
}

// RunBatch is the entry point shared by the root command and "dock"
func RunBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")

	var emitter pulse.ProgressEmitter = pulse.NewCLIEmitter(verbosity)
	var jsonEmitter *pulse.JSONEmitter
	if jsonLogs {
		jsonEmitter = pulse.NewJSONEmitter(cmd.OutOrStdout())
		emitter = jsonEmitter
	}

	env := batchEnv{
		fs:      afero.NewOsFs(),
		emitter: emitter,
		log:     logger.ComponentLogger("dock"),
		cpus:    async.AvailableCPUs(),
	}

	// No batch-wide cancellation: every submitted ligand runs to completion or timeout
	ctx := logger.WithComponent(context.Background(), "dock")
	report, err := runBatch(ctx, cfg, env)
	if errors.Is(err, errors.ErrFaultSink) {
		logger.FaultErrorw("Failure records could not be written", logger.FieldError, err)
	}
	if report == nil {
		return err
	}

	ctx = logger.WithRunID(ctx, report.RunID)
	logger.LoggerFromContext(ctx).Infow("Screening batch finished",
		logger.FieldTotal, report.Summary.Total,
		logger.FieldFailed, len(report.Summary.Failed),
		logger.FieldCount, len(report.Ranked),
	)
	if len(report.Summary.Failed) > 0 {
		logger.PulseWarnw("Some ligands failed", logger.FieldFailed, len(report.Summary.Failed), logger.FieldPath, report.ErrorLogPath)
	}

	emitter.ResultsWritten(report.RankingPath, report.ErrorLogPath)
	if jsonEmitter != nil {
		if emitErr := jsonEmitter.Err(); emitErr != nil {
			logger.Logger.Warnw("Progress events were lost", logger.FieldError, emitErr)
		}
	}
	return err
}

// batchEnv carries the collaborators runBatch does not build from configuration
type batchEnv struct {
	fs      afero.Fs
	emitter pulse.ProgressEmitter
	log     *zap.SugaredLogger
	cpus    int
}

// batchReport is what a drained batch produced
type batchReport struct {
	RunID        string
	Workers      int
	Summary      async.Summary
	Ranked       []dock.Ranked
	RankingPath  string
	ErrorLogPath string
}

// runBatch enumerates, dispatches, collects and ranks. A non-nil report is returned whenever the
// batch drained, even when the returned error is non-nil (fault sink failure or fail_on_errors).
func runBatch(ctx context.Context, cfg *am.Config, env batchEnv) (*batchReport, error) {
	log := env.log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if err := env.fs.MkdirAll(cfg.Batch.OutputDir, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %s", cfg.Batch.OutputDir)
	}

	items, err := async.Source{
		Fs:     env.fs,
		Dir:    cfg.Batch.LigandDir,
		Ext:    cfg.Batch.LigandExt,
		Logger: log,
	}.Items()
	if err != nil {
		return nil, err
	}

	vina, err := dock.NewVinaCommand(cfg.Batch.VinaPath, cfg.Batch.ReceptorFile, cfg.Batch.ConfigFile, cfg.Batch.CPUPerItem, cfg.Batch.ExtraArgs)
	if err != nil {
		return nil, err
	}

	layout := async.Layout{OutputDir: cfg.Batch.OutputDir, Ext: cfg.Batch.LigandExt}
	workers := cfg.WorkerCount(env.cpus)

	pool := async.NewWorkerPool(
		async.WorkerPoolConfig{Workers: workers, LaunchesPerSecond: cfg.Batch.LaunchesPerSecond},
		async.ArtifactGuard{Fs: env.fs, Layout: layout, RequireContent: cfg.Resume.RequireContent},
		&async.ProcessRunner{
			Fs:      env.fs,
			Layout:  layout,
			Command: vina,
			Timeout: cfg.Timeout(),
			Logger:  log,
		},
		async.NewCSVFaultSink(env.fs, cfg.ErrorLogPath(), cfg.Batch.FaultyDir),
		log,
	).WithEmitter(env.emitter)

	log.Infow("Starting screening batch",
		logger.FieldTotal, len(items),
		logger.FieldWorkers, workers,
		logger.FieldTimeout, cfg.Timeout(),
		"cpus", env.cpus,
	)

	if len(items) > 0 {
		log.Debugw("Vina invocation", "command", vina.CommandLine(items[0], layout.For(items[0])))
	}

	report := &batchReport{
		Workers:      workers,
		RankingPath:  cfg.RankingPath(),
		ErrorLogPath: cfg.ErrorLogPath(),
	}

	runID, recorder, finish := beginLedgerRun(cfg, workers, len(items), log)
	if recorder != nil {
		report.RunID = runID
		pool.WithRecorder(recorder)
	}

	summary, runErr := pool.Run(ctx, items)
	finish(summary)
	report.Summary = summary

	if runErr != nil && (summary.Total == 0 || !summary.Drained()) {
		// The fault sink could not be initialised; nothing ran
		return nil, errors.Wrap(runErr, "batch not started")
	}

	ranked, err := dock.Collector{Fs: env.fs, OutputDir: cfg.Batch.OutputDir, Logger: log}.Collect()
	if err != nil {
		return report, errors.CombineErrors(runErr, err)
	}
	if err := dock.WriteRanking(env.fs, report.RankingPath, ranked); err != nil {
		return report, errors.CombineErrors(runErr, err)
	}
	report.Ranked = ranked

	if runErr != nil {
		return report, errors.WithHint(
			errors.Wrap(runErr, "failure records were lost"),
			"check that the output and faulty directories are writable")
	}
	if cfg.Batch.FailOnErrors && len(summary.Failed) > 0 {
		return report, errors.Newf("%d of %d ligands failed (batch.fail_on_errors is set)", len(summary.Failed), summary.Total)
	}
	return report, nil
}

// beginLedgerRun opens the ledger and records the run start. Ledger problems are logged
// and disable the ledger for this run; they never fail the batch.
func beginLedgerRun(cfg *am.Config, workers, total int, log *zap.SugaredLogger) (string, *ledger.Recorder, func(async.Summary)) {
	noop := func(async.Summary) {}
	if !cfg.Ledger.Enabled {
		return "", nil, noop
	}

	database, err := openLedger(cfg)
	if err != nil {
		log.Warnw("Run ledger unavailable, continuing without it", logger.FieldSymbol, sym.DB, logger.FieldError, err)
		return "", nil, noop
	}

	store := ledger.NewStore(database)
	run := &ledger.Run{
		Workers:   workers,
		Total:     total,
		LigandDir: cfg.Batch.LigandDir,
		OutputDir: cfg.Batch.OutputDir,
	}
	if err := store.BeginRun(run); err != nil {
		database.Close()
		log.Warnw("Failed to record run start, continuing without ledger", logger.FieldSymbol, sym.DB, logger.FieldError, err)
		return "", nil, noop
	}

	finish := func(summary async.Summary) {
		defer database.Close()
		if err := store.FinishRun(run.ID, summary, time.Now()); err != nil {
			log.Warnw("Failed to record run finish", logger.FieldSymbol, sym.DB, logger.FieldRunID, run.ID, logger.FieldError, err)
		}
	}
	log.Debugw("Recorded run start", logger.FieldSymbol, sym.DB, logger.FieldRunID, run.ID)
	return run.ID, store.Recorder(run.ID), finish
}
