package domain

import (
	"fmt"
	"strings"
	"time"
)

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeMissingInput   = "MISSING_INPUT"
	ErrCodeInvalidRange   = "INVALID_RANGE"
	ErrCodeModelExecution = "MODEL_EXECUTION_ERROR"
	ErrCodePriorSpec      = "PRIOR_SPECIFICATION_ERROR"
	ErrCodeCombination    = "COMBINATION_DOMAIN_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal       = "INTERNAL_SERVER_ERROR"
)

// APIError is the standardized error response surfaced to the serving layer.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// MissingInputError reports absent required fields. It is recoverable and
// local: the calculator converts it to a SkippedResult itself; it never
// escapes the calculator boundary as an error.
type MissingInputError struct {
	ModelID string
	Fields  []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.ModelID, strings.Join(e.Fields, ", "))
}

// InvalidRangeError reports a physiologically impossible input value
// (negative counts, zero/near-zero denominators). Also recoverable and
// local: converted to a SkippedResult with an explicit reason.
type InvalidRangeError struct {
	ModelID string
	Field   string
	Reason  string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.ModelID, e.Field, e.Reason)
}

// ModelExecutionError wraps an unexpected internal fault in one calculator.
// The orchestrator records it under models_failed and continues the batch.
type ModelExecutionError struct {
	ModelID string
	Err     error
}

func (e *ModelExecutionError) Error() string {
	return fmt.Sprintf("%s: unexpected execution fault: %v", e.ModelID, e.Err)
}

func (e *ModelExecutionError) Unwrap() error { return e.Err }

// PriorSpecificationError reports malformed Beta shape parameters. Fatal to
// the requesting operation only; rejected before any sampling occurs.
type PriorSpecificationError struct {
	Reason string
}

func (e *PriorSpecificationError) Error() string {
	return "prior specification: " + e.Reason
}

// CombinationDomainError reports mitigation parameters outside the valid
// domain (correlation outside [0,1], non-positive RR). Fatal to the
// requesting operation only; rejected before Monte Carlo sampling.
type CombinationDomainError struct {
	Reason string
}

func (e *CombinationDomainError) Error() string {
	return "combination domain: " + e.Reason
}
