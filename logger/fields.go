package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across vsbatch.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID = "run_id"
	FieldItem  = "item"
	FieldIndex = "index"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeout    = "timeout"

	// Errors
	FieldError  = "error"
	FieldReason = "reason"
	FieldKind   = "kind"

	// Counts
	FieldCount     = "count"
	FieldTotal     = "total"
	FieldWorkers   = "workers"
	FieldSkipped   = "skipped"
	FieldSucceeded = "succeeded"
	FieldFailed    = "failed"

	// Files and processes
	FieldPath     = "path"
	FieldBinary   = "binary"
	FieldArgs     = "args"
	FieldExitCode = "exit_code"

	// vsbatch-specific
	FieldSymbol   = "symbol"   // segment symbol (꩜, ✿, ❀, etc.)
	FieldAffinity = "affinity" // parsed binding affinity
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a batch run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	pool := async.NewWorkerPool(cfg, deps, logger.ComponentLogger("dock"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
