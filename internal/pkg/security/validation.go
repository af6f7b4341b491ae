// Package security provides security utilities for input validation,
// sanitization, and sensitive data masking.
package security

import (
	"fmt"
	"regexp"
)

// Validation limits.
const (
	// Dataset name limits.
	MinDatasetNameLength = 1
	MaxDatasetNameLength = 64

	// Precision cut-off limits.
	MinCutoff = 1
	MaxCutoff = 1000

	// Request limits.
	MaxRequestSize = 10 * 1024 * 1024 // 10MB
	MaxCutoffs     = 32
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// datasetNameRegex matches valid dataset names: alphanumeric, hyphen, underscore.
var datasetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateDatasetName validates a dataset name.
// Requirements: Required, 1-64 chars, alphanumeric + hyphen + underscore, must start with alphanumeric.
func ValidateDatasetName(name string) error {
	if name == "" {
		return &ValidationError{
			Field:      "dataset",
			Constraint: "required",
		}
	}

	if len(name) > MaxDatasetNameLength {
		return &ValidationError{
			Field:      "dataset",
			Value:      len(name),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxDatasetNameLength),
		}
	}

	if !datasetNameRegex.MatchString(name) {
		return &ValidationError{
			Field:      "dataset",
			Value:      name,
			Constraint: "must contain only alphanumeric characters, hyphens, and underscores, and start with alphanumeric",
		}
	}

	return nil
}

// ValidateCutoffs validates a precision-at-k cut-off list.
// Requirements: each value in [1,1000], strictly increasing, at most MaxCutoffs entries.
// An empty list is valid (precision-at-k reporting disabled).
func ValidateCutoffs(ks []int) error {
	if len(ks) > MaxCutoffs {
		return &ValidationError{
			Field:      "ks",
			Value:      len(ks),
			Constraint: fmt.Sprintf("maximum number of cut-offs is %d", MaxCutoffs),
		}
	}

	prev := 0
	for _, k := range ks {
		if k < MinCutoff {
			return &ValidationError{
				Field:      "ks",
				Value:      k,
				Constraint: fmt.Sprintf("minimum value is %d", MinCutoff),
			}
		}
		if k > MaxCutoff {
			return &ValidationError{
				Field:      "ks",
				Value:      k,
				Constraint: fmt.Sprintf("maximum value is %d", MaxCutoff),
			}
		}
		if k <= prev {
			return &ValidationError{
				Field:      "ks",
				Value:      k,
				Constraint: "values must be strictly increasing",
			}
		}
		prev = k
	}

	return nil
}
