package template

// MissingAction determines what happens when a placeholder has no binding.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as-is (default).
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError causes Expand to return UndefinedVariableError.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets the behavior for unbound placeholders.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}
