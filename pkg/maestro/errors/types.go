package errors

import "fmt"

// JSONParseError indicates no workflow document could be extracted from a
// model response.
type JSONParseError struct {
	// Input is the raw model output that failed to parse. Kept for
	// diagnostics; error messages only carry an excerpt.
	Input   string
	Message string
}

// Error implements the error interface.
func (e *JSONParseError) Error() string {
	return fmt.Sprintf("JSON parse error: %s", e.Message)
}

// ValidationError indicates a generated workflow failed catalog validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
