package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeLLM represents generation-service errors
	ErrorTypeLLM ErrorType = "llm"
	// ErrorTypeRateLimit represents rate-limit exhaustion errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeCache represents cache backing-store errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeValidation represents data-quality validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Base exposes the embedded base error through the typed wrappers
func (e *BaseError) Base() *BaseError {
	return e
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// LLM Errors

// ErrLLMNoResponse is returned when the generation service returns no choices
var ErrLLMNoResponse = NewBaseError(ErrorTypeLLM, "no response from generation service", nil)

// ErrLLMFailed is returned when a generation-service request fails after retries
type ErrLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewLLMFailed(model string, attempts int, retryable bool, err error) *ErrLLMFailed {
	return &ErrLLMFailed{
		BaseError: NewBaseError(ErrorTypeLLM, fmt.Sprintf("generation request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrPromptTooLarge is returned when a prompt exceeds the configured token limit.
// Raised before the network call is made.
type ErrPromptTooLarge struct {
	*BaseError
	EstimatedTokens int
	MaxTokens       int
}

func NewPromptTooLarge(estimatedTokens, maxTokens int) *ErrPromptTooLarge {
	return &ErrPromptTooLarge{
		BaseError: NewBaseError(ErrorTypeLLM,
			fmt.Sprintf("prompt too large: estimated %d tokens, max allowed is %d tokens", estimatedTokens, maxTokens), nil),
		EstimatedTokens: estimatedTokens,
		MaxTokens:       maxTokens,
	}
}

// Rate-limit Errors

// ErrRateLimitExceeded is returned when a caller cannot acquire a slot within the wait timeout
type ErrRateLimitExceeded struct {
	*BaseError
	CallerID   string
	RetryAfter time.Duration
}

func NewRateLimitExceeded(callerID string, retryAfter time.Duration) *ErrRateLimitExceeded {
	return &ErrRateLimitExceeded{
		BaseError: NewBaseError(ErrorTypeRateLimit,
			fmt.Sprintf("rate limit exceeded, retry after %.0f seconds", retryAfter.Seconds()), nil),
		CallerID:   callerID,
		RetryAfter: retryAfter,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrEntityNotFound is returned when an entity is not found in the graph
type ErrEntityNotFound struct {
	*BaseError
	EntityID string
}

func NewEntityNotFound(entityID string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("entity not found: %s", entityID), nil),
		EntityID:  entityID,
	}
}

// ErrDecisionNotFound is returned when a decision is not found in the graph
type ErrDecisionNotFound struct {
	*BaseError
	DecisionID string
}

func NewDecisionNotFound(decisionID string) *ErrDecisionNotFound {
	return &ErrDecisionNotFound{
		BaseError:  NewBaseError(ErrorTypeGraph, fmt.Sprintf("decision not found: %s", decisionID), nil),
		DecisionID: decisionID,
	}
}

// Validation Errors

// ErrInvalidRelationship is returned when a proposed relationship fails the
// ontology's type-compatibility rules. This is a data-quality finding, not a
// transient failure.
type ErrInvalidRelationship struct {
	*BaseError
	RelType  string
	FromType string
	ToType   string
}

func NewInvalidRelationship(relType, fromType, toType, reason string) *ErrInvalidRelationship {
	return &ErrInvalidRelationship{
		BaseError: NewBaseError(ErrorTypeValidation,
			fmt.Sprintf("invalid relationship %s (%s -> %s): %s", relType, fromType, toType, reason), nil),
		RelType:  relType,
		FromType: fromType,
		ToType:   toType,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if based, ok := err.(interface{ Base() *BaseError }); ok {
		return based.Base().Type == errType
	}
	// Check wrapped errors
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapped.Unwrap(); inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Rate-limit exhaustion has its own retry-after contract
	if IsErrorType(err, ErrorTypeRateLimit) {
		return false
	}
	if llmErr, ok := err.(*ErrLLMFailed); ok {
		return llmErr.Retryable
	}
	// Graph connection errors are retryable
	if _, ok := err.(*ErrGraphConnectionFailed); ok {
		return true
	}
	return false
}
