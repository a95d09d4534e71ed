package plugin

import "encoding/json"

// ValidationResult is the outcome of checking a plugin file against the
// Plugin base type contract. It is never mutated after construction.
type ValidationResult struct {
	path      string
	valid     bool
	errors    []string
	warnings  []string
	className string
}

// NewInvalidResult creates a failed validation result
func NewInvalidResult(path string, errs ...string) ValidationResult {
	if len(errs) == 0 {
		errs = []string{"plugin is invalid"}
	}
	return ValidationResult{
		path:   path,
		valid:  false,
		errors: append([]string(nil), errs...),
	}
}

// NewValidResult creates a successful validation result for the given type
func NewValidResult(path, className string, warnings []string) ValidationResult {
	return ValidationResult{
		path:      path,
		valid:     true,
		className: className,
		warnings:  append([]string(nil), warnings...),
	}
}

// Path returns the validated file path
func (r ValidationResult) Path() string { return r.path }

// Valid reports whether the plugin satisfies the contract
func (r ValidationResult) Valid() bool { return r.valid }

// ClassName returns the name of the type that satisfied the contract
func (r ValidationResult) ClassName() string { return r.className }

// Errors returns a copy of the validation errors
func (r ValidationResult) Errors() []string {
	return append([]string(nil), r.errors...)
}

// Warnings returns a copy of the non-fatal findings of a valid result
func (r ValidationResult) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

type validationView struct {
	Path      string   `json:"path" yaml:"path"`
	Valid     bool     `json:"valid" yaml:"valid"`
	ClassName string   `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (r ValidationResult) view() validationView {
	return validationView{
		Path:      r.path,
		Valid:     r.valid,
		ClassName: r.className,
		Errors:    r.Errors(),
		Warnings:  r.Warnings(),
	}
}

// MarshalJSON implements json.Marshaler
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// MarshalYAML implements yaml.Marshaler
func (r ValidationResult) MarshalYAML() (interface{}, error) {
	return r.view(), nil
}
