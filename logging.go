package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Workflow-level events
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowProgress  = "workflow_progress"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowDegraded  = "workflow_degraded"
	EventWorkflowFailed    = "workflow_failed"
	EventWorkflowCancelled = "workflow_cancelled"

	// Stage-level events
	EventStageStarted   = "stage_started"
	EventStageRetrying  = "stage_retrying"
	EventStageCompleted = "stage_completed"
	EventStageDegraded  = "stage_degraded"
	EventStageFailed    = "stage_failed"
	EventStageCacheHit  = "stage_cache_hit"

	// Resilience events
	EventBreakerOpened   = "breaker_opened"
	EventBreakerHalfOpen = "breaker_half_open"
	EventBreakerClosed   = "breaker_closed"
	EventBulkheadReject  = "bulkhead_rejected"

	// Persistence events
	EventPersistenceError = "persistence_error"
	EventCacheError       = "cache_error"
)

// LogWorkflowStarted logs when a workflow starts execution
func LogWorkflowStarted(logger zerolog.Logger, workflowID string, stages int) {
	logger.Info().
		Str("event", EventWorkflowStarted).
		Str("workflow_id", workflowID).
		Int("stages", stages).
		Msg("Workflow started")
}

// LogWorkflowProgress logs workflow execution progress
func LogWorkflowProgress(logger zerolog.Logger, workflowID string, progress float64) {
	logger.Debug().
		Str("event", EventWorkflowProgress).
		Str("workflow_id", workflowID).
		Float64("progress", progress).
		Msg("Workflow progress updated")
}

// LogWorkflowCompleted logs terminal workflow completion
func LogWorkflowCompleted(logger zerolog.Logger, workflowID string, status WorkflowStatus, duration time.Duration) {
	evt := logger.Info()
	event := EventWorkflowCompleted
	if status == WorkflowPartiallyCompleted {
		evt = logger.Warn()
		event = EventWorkflowDegraded
	}
	evt.
		Str("event", event).
		Str("workflow_id", workflowID).
		Str("status", status.String()).
		Dur("duration", duration).
		Msg("Workflow finished")
}

// LogWorkflowFailed logs workflow failure
func LogWorkflowFailed(logger zerolog.Logger, workflowID string, err error) {
	logger.Error().
		Str("event", EventWorkflowFailed).
		Str("workflow_id", workflowID).
		Err(err).
		Msg("Workflow failed")
}

// LogWorkflowCancelled logs workflow cancellation
func LogWorkflowCancelled(logger zerolog.Logger, workflowID string) {
	logger.Warn().
		Str("event", EventWorkflowCancelled).
		Str("workflow_id", workflowID).
		Msg("Workflow cancelled")
}

// LogStageStarted logs when a stage starts execution
func LogStageStarted(logger zerolog.Logger, workflowID, stage string) {
	logger.Info().
		Str("event", EventStageStarted).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Msg("Stage started")
}

// LogStageRetrying logs when a stage invocation is being retried
func LogStageRetrying(logger zerolog.Logger, workflowID, stage string, attempt int, delay time.Duration, err error) {
	logger.Warn().
		Str("event", EventStageRetrying).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Int("attempt", attempt).
		Dur("delay", delay).
		Err(err).
		Msg("Stage retrying")
}

// LogStageCompleted logs a stage reaching Succeeded
func LogStageCompleted(logger zerolog.Logger, workflowID, stage string, durationMs int64, fromCache bool) {
	logger.Info().
		Str("event", EventStageCompleted).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Int64("duration_ms", durationMs).
		Bool("from_cache", fromCache).
		Msg("Stage completed")
}

// LogStageDegraded logs a stage settling on a fallback result
func LogStageDegraded(logger zerolog.Logger, workflowID, stage string, mode FallbackMode, err error) {
	logger.Warn().
		Str("event", EventStageDegraded).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Str("fallback", string(mode)).
		Err(err).
		Msg("Stage degraded")
}

// LogStageFailed logs terminal stage failure
func LogStageFailed(logger zerolog.Logger, workflowID, stage string, err error, attempts int) {
	logger.Error().
		Str("event", EventStageFailed).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Err(err).
		Int("attempts", attempts).
		Msg("Stage failed")
}

// LogStageCacheHit logs a stage served from the result cache
func LogStageCacheHit(logger zerolog.Logger, workflowID, stage, category string) {
	logger.Debug().
		Str("event", EventStageCacheHit).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Str("category", category).
		Msg("Stage served from cache")
}

// LogBreakerTransition logs a circuit breaker state change
func LogBreakerTransition(logger zerolog.Logger, stage, from, to string) {
	event := EventBreakerClosed
	evt := logger.Info()
	switch to {
	case "OPEN":
		event = EventBreakerOpened
		evt = logger.Warn()
	case "HALF_OPEN":
		event = EventBreakerHalfOpen
		evt = logger.Info()
	}
	evt.
		Str("event", event).
		Str("stage", stage).
		Str("from", from).
		Str("to", to).
		Msg("Circuit breaker transition")
}

// LogBulkheadRejected logs an invocation that could not get a slot
func LogBulkheadRejected(logger zerolog.Logger, workflowID, stage string) {
	logger.Warn().
		Str("event", EventBulkheadReject).
		Str("workflow_id", workflowID).
		Str("stage", stage).
		Msg("Bulkhead rejected invocation")
}

// LogPersistenceError logs errors during snapshot persistence
func LogPersistenceError(logger zerolog.Logger, workflowID, operation string, err error) {
	logger.Error().
		Str("event", EventPersistenceError).
		Str("workflow_id", workflowID).
		Str("operation", operation).
		Err(err).
		Msg("Persistence error")
}

// LogCacheError logs a cache backend error handled fail-open
func LogCacheError(logger zerolog.Logger, operation, category string, err error) {
	logger.Error().
		Str("event", EventCacheError).
		Str("operation", operation).
		Str("category", category).
		Err(err).
		Msg("Cache backend error")
}

// WorkflowLogger creates a logger enriched with workflow context
func WorkflowLogger(baseLogger zerolog.Logger, workflowID string) zerolog.Logger {
	return baseLogger.With().
		Str("workflow_id", workflowID).
		Logger()
}

// StageLogger creates a logger enriched with stage context
func StageLogger(workflowLogger zerolog.Logger, stage string) zerolog.Logger {
	return workflowLogger.With().
		Str("stage", stage).
		Logger()
}
