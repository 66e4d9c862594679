package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{varname}} - varname can contain alphanumeric
// and underscore. This is the placeholder style used in node prompt templates
// ({{in_1}}..{{in_4}}) and in the model sentinel {{SELECTED_MODEL}}.
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Expander expands {{var}} placeholders in strings.
//
// Create with NewExpander() and configure with Option functions.
// Expander is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
}

// NewExpander creates a new Expander with the given options.
//
// Default configuration:
//   - MissingAction: MissingKeep (keep placeholders as-is)
//
// Example:
//
//	exp := NewExpander(WithMissingAction(MissingEmpty))
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand expands {{var}} placeholders in s using the provided vars.
//
// Returns the expanded string and any error encountered.
// Errors are only returned when MissingAction is MissingError and
// a variable is not found.
//
// Example:
//
//	exp := NewExpander()
//	result, err := exp.Expand("Hello {{name}}", map[string]any{"name": "World"})
//	// result: "Hello World"
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missingVars []string

	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from {{name}}.
		varName := match[2 : len(match)-2]
		if val, ok := vars[varName]; ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missingVars = append(missingVars, varName)
			return match // Keep for now, will return error.
		default: // MissingKeep
			return match
		}
	})

	if len(missingVars) > 0 {
		return result, &UndefinedVariableError{Names: missingVars}
	}

	return result, nil
}

// UndefinedVariableError is returned when MissingError is set and
// one or more variables are not found.
type UndefinedVariableError struct {
	// Names is the list of undefined variable names.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// defaultExpander is the package-level expander with default settings.
var defaultExpander = NewExpander()

// strippingExpander substitutes known variables and erases the rest.
var strippingExpander = NewExpander(WithMissingAction(MissingEmpty))

// Expand expands {{var}} placeholders in s using the default expander.
//
// Uses MissingKeep behavior (missing variables stay as-is).
func Expand(s string, vars map[string]any) string {
	// Default expander never returns errors (MissingKeep).
	result, _ := defaultExpander.Expand(s, vars)
	return result
}

// Substitute expands {{var}} placeholders and strips any placeholder that has
// no binding in vars. This is the behavior prompt templates rely on: absent
// inputs substitute to the empty string rather than leaking the placeholder
// into the prompt sent to the model.
func Substitute(s string, vars map[string]any) string {
	// MissingEmpty never returns errors.
	result, _ := strippingExpander.Expand(s, vars)
	return result
}
