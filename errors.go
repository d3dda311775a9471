package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory classifies a stage failure for retry and escalation
// decisions.
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "VALIDATION"
	CategoryNetwork     ErrorCategory = "NETWORK"
	CategoryTimeout     ErrorCategory = "TIMEOUT"
	CategoryRateLimited ErrorCategory = "RATE_LIMITED"
	CategoryAuth        ErrorCategory = "AUTH"
	CategoryProcessing  ErrorCategory = "PROCESSING"
	CategorySystem      ErrorCategory = "SYSTEM"
	CategoryCancelled   ErrorCategory = "CANCELLED"
	CategoryCircuitOpen ErrorCategory = "CIRCUIT_OPEN"
	CategoryBulkhead    ErrorCategory = "BULKHEAD_TIMEOUT"
	CategoryUnknown     ErrorCategory = "UNKNOWN"
)

// Retryable reports whether an error of this category may be retried.
// Validation and auth failures cannot change outcome on retry; cancelled,
// circuit-open and bulkhead errors signal "do not try right now".
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimited,
		CategoryProcessing, CategorySystem, CategoryUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (c ErrorCategory) String() string {
	return string(c)
}

// Sentinel errors produced by the engine and resilience layer
var (
	// ErrWorkflowNotFound is returned by GetState for unknown workflow IDs
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidInput is returned by StartWorkflow when the input fails
	// structural validation
	ErrInvalidInput = errors.New("invalid workflow input")

	// ErrCircuitOpen is returned when a stage's circuit breaker is open
	// and the collaborator must not be called
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrBulkheadTimeout is returned when a stage invocation could not
	// acquire a bulkhead slot within the configured wait timeout
	ErrBulkheadTimeout = errors.New("bulkhead slot not acquired within timeout")
)

// StageError is the classified error attached to a stage result
type StageError struct {
	Category  ErrorCategory `json:"category" dynamodbav:"category"`
	Message   string        `json:"message" dynamodbav:"message"`
	Stage     string        `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
	Attempt   int           `json:"attempt" dynamodbav:"attempt"`
	Timestamp time.Time     `json:"timestamp" dynamodbav:"timestamp"`
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage: %s)", e.Category, e.Message, e.Stage)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// NewStageError creates a classified stage error
func NewStageError(category ErrorCategory, stage, message string) *StageError {
	return &StageError{
		Category:  category,
		Message:   message,
		Stage:     stage,
		Timestamp: time.Now(),
	}
}

// Errorf creates a classified stage error with a formatted message
func Errorf(category ErrorCategory, stage, format string, args ...any) *StageError {
	return NewStageError(category, stage, fmt.Sprintf(format, args...))
}

// AsStageError extracts a *StageError from an error chain, if present
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCircuitOpen checks whether err originates from an open circuit breaker
func IsCircuitOpen(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	if se, ok := AsStageError(err); ok {
		return se.Category == CategoryCircuitOpen
	}
	return false
}

// IsBulkheadTimeout checks whether err is a bulkhead admission failure
func IsBulkheadTimeout(err error) bool {
	if errors.Is(err, ErrBulkheadTimeout) {
		return true
	}
	if se, ok := AsStageError(err); ok {
		return se.Category == CategoryBulkhead
	}
	return false
}
