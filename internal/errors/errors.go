// Package errors defines the categorized error types surfaced by the
// reconciliation engine.
package errors

import (
	"errors"
	"fmt"
)

// Category separates faults by how callers must react to them.
type Category string

const (
	// CategoryInput represents malformed caller input. Fail fast, never retry.
	CategoryInput Category = "input"
	// CategoryUpstream represents a semantic error reported by an upstream
	// (GraphQL error payload, explorer non-ok envelope). Surfaced without retry.
	CategoryUpstream Category = "upstream"
	// CategoryTransient represents a transient network fault. Retried inside
	// the HTTP layer; only visible when retries are disabled.
	CategoryTransient Category = "transient"
)

// Error is an error with a category and a machine-readable code.
type Error struct {
	Category Category
	Code     string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewAddressParse reports an unparsable wallet address. This is a data quality
// fault: it aborts processing for the affected wallet and is not retried.
func NewAddressParse(address string, cause error) *Error {
	return &Error{
		Category: CategoryInput,
		Code:     "ADDRESS_PARSE",
		Message:  fmt.Sprintf("failed to parse address %q", address),
		Cause:    cause,
	}
}

// NewUpstream reports a semantic error carried in an upstream response body.
func NewUpstream(source, message string) *Error {
	return &Error{
		Category: CategoryUpstream,
		Code:     "UPSTREAM",
		Message:  fmt.Sprintf("%s: %s", source, message),
	}
}

// NewTransient wraps a transient network fault.
func NewTransient(source string, cause error) *Error {
	return &Error{
		Category: CategoryTransient,
		Code:     "TRANSIENT",
		Message:  source,
		Cause:    cause,
	}
}

// CategoryOf extracts the category of err, or "" for uncategorized errors.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// IsAddressParse reports whether err is an address parse failure.
func IsAddressParse(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == "ADDRESS_PARSE"
}

// IsRetryable reports whether the fault may resolve on its own. Input and
// upstream-semantic errors never do.
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryInput, CategoryUpstream:
		return false
	default:
		return true
	}
}
