package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeStore represents persistence errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeEmbedding represents embedding-provider errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeExtraction represents entity extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeRetrieval represents retrieval errors
	ErrorTypeRetrieval ErrorType = "retrieval"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
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

// Store errors

// ErrCategoryNotFound is returned when a category cannot be found
var ErrCategoryNotFound = NewBaseError(ErrorTypeStore, "category not found", nil)

// ErrProfileNotFound is returned when a user profile does not exist yet
var ErrProfileNotFound = NewBaseError(ErrorTypeStore, "user profile not found", nil)

// ErrEmbeddingNotFound is returned when a category has no stored embedding
var ErrEmbeddingNotFound = NewBaseError(ErrorTypeStore, "category embedding not found", nil)

// Embedding errors

// ErrEmbedderUnavailable is returned when no embedding provider is configured
var ErrEmbedderUnavailable = NewBaseError(ErrorTypeEmbedding, "embedding provider not available", nil)

// NewStoreError wraps a persistence failure
func NewStoreError(message string, err error) *BaseError {
	return NewBaseError(ErrorTypeStore, message, err)
}

// NewEmbeddingError wraps an embedding-provider failure
func NewEmbeddingError(message string, err error) *BaseError {
	return NewBaseError(ErrorTypeEmbedding, message, err)
}
