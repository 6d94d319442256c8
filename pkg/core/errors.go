// Package core provides the main memlayer client and the ingestion,
// retrieval, and retention orchestration on top of the lower-level packages.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record was not found for the
	// tenant.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrEmbeddingNotRetryable indicates a retry was requested for a record
	// whose embedding is not in the failed state.
	ErrEmbeddingNotRetryable = errors.New("embedding is not in a retryable state")
)

// LayerError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &LayerError{
//	    Op:  "Ingest",
//	    Err: ErrEmbeddingFailed,
//	}
//	// Error() returns: "memlayer: Ingest: embedding generation failed"
type LayerError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "memlayer: <Op>: <Err>"
func (e *LayerError) Error() string {
	return fmt.Sprintf("memlayer: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with LayerError.
func (e *LayerError) Unwrap() error {
	return e.Err
}

// NewLayerError creates a new LayerError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewLayerError("Ingest", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Ingest", "Retrieve", "Update")
//   - err: The underlying error to wrap
//
// Returns a LayerError, or nil if err is nil.
func NewLayerError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LayerError{
		Op:  op,
		Err: err,
	}
}
