// Package resilience provides the failure-handling primitives shared by
// all stage invocations: error classification, bounded retries, circuit
// breakers and concurrency bulkheads. One breaker and one bulkhead exist
// per stage type and are shared across workflows.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/meridianbio/pipeline"
)

// Classify maps an arbitrary error to an error category. Typed stage
// errors pass through; context errors map to timeout/cancelled; everything
// else is refined from the message text.
func Classify(err error) pipeline.ErrorCategory {
	if err == nil {
		return ""
	}
	if se, ok := pipeline.AsStageError(err); ok {
		return se.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return pipeline.CategoryCancelled
	}
	if errors.Is(err, pipeline.ErrCircuitOpen) {
		return pipeline.CategoryCircuitOpen
	}
	if errors.Is(err, pipeline.ErrBulkheadTimeout) {
		return pipeline.CategoryBulkhead
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return pipeline.CategoryTimeout
		}
		return pipeline.CategoryNetwork
	}

	return refine(err.Error())
}

// refine guesses a category from message text. Order matters: the more
// specific hints are checked before the generic ones.
func refine(msg string) pipeline.ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "429"):
		return pipeline.CategoryRateLimited
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "authentication"):
		return pipeline.CategoryAuth
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "deadline"):
		return pipeline.CategoryTimeout
	case strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "dns"),
		strings.Contains(lower, "unreachable"):
		return pipeline.CategoryNetwork
	case strings.Contains(lower, "invalid"),
		strings.Contains(lower, "validation"),
		strings.Contains(lower, "malformed"):
		return pipeline.CategoryValidation
	case strings.Contains(lower, "out of memory"),
		strings.Contains(lower, "disk"),
		strings.Contains(lower, "resource"):
		return pipeline.CategorySystem
	default:
		return pipeline.CategoryUnknown
	}
}

// ClassifyStage wraps err as a *pipeline.StageError carrying the stage
// name and attempt number. An already-typed error keeps its category and
// message but gains the attempt count.
func ClassifyStage(err error, stage string, attempt int) *pipeline.StageError {
	if err == nil {
		return nil
	}
	if se, ok := pipeline.AsStageError(err); ok {
		cp := *se
		if cp.Stage == "" {
			cp.Stage = stage
		}
		cp.Attempt = attempt
		return &cp
	}
	se := pipeline.NewStageError(Classify(err), stage, err.Error())
	se.Attempt = attempt
	return se
}
