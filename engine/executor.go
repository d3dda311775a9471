package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
	"github.com/meridianbio/pipeline/resilience"
)

// invokeStage runs one stage to a terminal result: cache lookup, bulkhead
// admission, circuit breaker gate, retried collaborator invocation, and
// finally degradation when the descriptor allows it. It never panics and
// always returns a terminal StageResult.
func (e *Engine) invokeStage(
	ctx context.Context,
	workflowID string,
	desc pipeline.StageDescriptor,
	input json.RawMessage,
	degradedUpstream bool,
	logger zerolog.Logger,
) *pipeline.StageResult {
	stageLogger := pipeline.StageLogger(logger, desc.Name)
	pipeline.LogStageStarted(stageLogger, workflowID, desc.Name)

	startedAt := time.Now()
	result := &pipeline.StageResult{
		Stage:     desc.Name,
		StartedAt: &startedAt,
	}
	finish := func(status pipeline.StageStatus) *pipeline.StageResult {
		completedAt := time.Now()
		result.Status = status
		result.CompletedAt = &completedAt
		result.DurationMs = completedAt.Sub(startedAt).Milliseconds()
		return result
	}

	// Cache hits bypass the collaborator entirely: no bulkhead slot, no
	// breaker or health update.
	cacheKey := ""
	if desc.CacheCategory != "" && e.cache != nil {
		cacheKey = pipeline.Fingerprint(desc.Name, input)
		if value, ok := e.cache.Get(ctx, desc.CacheCategory, cacheKey); ok {
			pipeline.LogStageCacheHit(stageLogger, workflowID, desc.Name, desc.CacheCategory)
			result.Payload = value
			result.FromCache = true
			if degradedUpstream {
				return finish(pipeline.StageDegraded)
			}
			return finish(pipeline.StageSucceeded)
		}
	}

	bulkhead := e.registry.Bulkhead(desc.Name, desc.Bulkhead)
	if err := bulkhead.Acquire(ctx); err != nil {
		if pipeline.IsBulkheadTimeout(err) {
			pipeline.LogBulkheadRejected(stageLogger, workflowID, desc.Name)
		}
		result.Error = resilience.ClassifyStage(err, desc.Name, 0)
		return e.settle(ctx, desc, input, finish, result)
	}
	defer bulkhead.Release()

	breaker := e.registry.Breaker(desc.Name, desc.Breaker)
	executor, ok := e.pipeline.Executor(desc.Name)
	if !ok {
		result.Error = pipeline.NewStageError(pipeline.CategorySystem, desc.Name, "no executor registered")
		return finish(pipeline.StageFailed)
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	payload, attempts, err := e.retrier.Execute(ctx, desc.Name, desc.Retry,
		func(ctx context.Context, attempt int) (json.RawMessage, error) {
			if err := breaker.Allow(); err != nil {
				return nil, err
			}

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			out, callErr := invokeSafely(callCtx, executor, input)

			if callErr == nil {
				breaker.RecordSuccess()
				e.monitor.RecordSuccess(desc.Name)
				return out, nil
			}

			// Cancellation is not collaborator health signal
			if !errors.Is(callErr, context.Canceled) {
				breaker.RecordFailure()
				e.monitor.RecordFailure(desc.Name)
			}
			if e.metrics != nil && attempt < desc.Retry.MaxRetries {
				e.metrics.StageRetry(desc.Name)
			}
			return nil, callErr
		})

	result.Attempts = attempts
	if e.metrics != nil {
		e.metrics.BreakerState(desc.Name, string(breaker.State()))
	}

	if err == nil {
		result.Payload = payload
		if cacheKey != "" && !degradedUpstream {
			e.cache.Put(ctx, desc.CacheCategory, cacheKey, payload)
		}
		if degradedUpstream {
			return finish(pipeline.StageDegraded)
		}
		return finish(pipeline.StageSucceeded)
	}

	result.Error = resilience.ClassifyStage(err, desc.Name, attempts)
	return e.settle(ctx, desc, input, finish, result)
}

// settle resolves a failed invocation into Degraded or Failed depending
// on the descriptor's fallback policy. Cancelled invocations never
// degrade.
func (e *Engine) settle(
	ctx context.Context,
	desc pipeline.StageDescriptor,
	input json.RawMessage,
	finish func(pipeline.StageStatus) *pipeline.StageResult,
	result *pipeline.StageResult,
) *pipeline.StageResult {
	if result.Error.Category == pipeline.CategoryCancelled || ctx.Err() != nil {
		return finish(pipeline.StageFailed)
	}

	payload, ok := fallbackPayload(desc, input, result.Error)
	if !ok {
		return finish(pipeline.StageFailed)
	}
	result.Payload = payload
	return finish(pipeline.StageDegraded)
}

// invokeSafely calls the executor with panic recovery
func invokeSafely(ctx context.Context, executor pipeline.StageExecutor, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return executor.Invoke(ctx, input)
}
