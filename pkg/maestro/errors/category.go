// Package errors classifies planner and LLM failures and retries the
// transient ones.
//
// Plan generation talks to a local LLM service over HTTP and then parses
// free-form model output, so it fails in two very different ways: the
// service hiccups (worth retrying as-is) or the model produces garbage
// (worth re-asking, since sampling is nondeterministic). Categorization
// keeps those apart so the retry loop only spends attempts where they
// can help.
package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/nebuai/maestro/pkg/maestro/llm"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates a retry will likely help.
	// Examples: connection refused, model still loading, HTTP 5xx.
	CategoryTransient Category = iota

	// CategoryPermanent indicates a retry won't help.
	// Examples: cancellation, unknown model, invalid configuration.
	CategoryPermanent

	// CategoryRegenerate indicates the failure is in the model's output,
	// not the transport: asking again may produce a parseable answer.
	// Examples: unparseable plan JSON, a plan failing validation.
	CategoryRegenerate
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryRegenerate:
		return "regenerate"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Regenerate creates a regenerate error.
func Regenerate(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryRegenerate, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Cancellation always wins, even when wrapped.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	// LLM transport errors carry their own retryability.
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.Retryable {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	var jsonErr *JSONParseError
	if errors.As(err, &jsonErr) {
		return CategoryRegenerate
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryRegenerate
	}

	// Unknown errors are permanent (fail safe).
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried as-is.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsRegenerable reports whether asking the model again might help.
func IsRegenerable(err error) bool {
	return Categorize(err) == CategoryRegenerate
}
