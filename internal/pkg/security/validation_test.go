package security

import (
	"strings"
	"testing"
)

func TestValidateDatasetName(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		wantErr bool
	}{
		{"valid simple", "roxford5k", false},
		{"valid with hyphen", "my-dataset", false},
		{"valid with underscore", "gnd_instre", false},
		{"valid with number", "rparis6k", false},
		{"valid mixed", "My-Dataset_123", false},
		{"valid at max", strings.Repeat("a", MaxDatasetNameLength), false},
		{"empty", "", true},
		{"starts with hyphen", "-dataset", true},
		{"starts with underscore", "_dataset", true},
		{"too long", strings.Repeat("a", MaxDatasetNameLength+1), true},
		{"invalid chars", "my@dataset", true},
		{"spaces", "my dataset", true},
		{"dots", "my.dataset", true},
		{"path traversal", "../roxford5k", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatasetName(tt.dataset)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDatasetName(%q) error = %v, wantErr %v", tt.dataset, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCutoffs(t *testing.T) {
	long := make([]int, MaxCutoffs+1)
	for i := range long {
		long[i] = i + 1
	}

	tests := []struct {
		name    string
		ks      []int
		wantErr bool
	}{
		{"valid default", []int{1, 5, 10}, false},
		{"valid single", []int{10}, false},
		{"valid max value", []int{MaxCutoff}, false},
		{"empty is valid", nil, false},
		{"zero cutoff", []int{0, 5}, true},
		{"negative cutoff", []int{-1}, true},
		{"too large", []int{MaxCutoff + 1}, true},
		{"not increasing", []int{5, 5, 10}, true},
		{"decreasing", []int{10, 5, 1}, true},
		{"too many", long, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCutoffs(tt.ks)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCutoffs(%v) error = %v, wantErr %v", tt.ks, err, tt.wantErr)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:      "dataset",
		Value:      "bad name",
		Constraint: "must match pattern",
	}
	if !strings.Contains(err.Error(), "dataset") {
		t.Error("Error() should contain field name")
	}
	if !strings.Contains(err.Error(), "bad name") {
		t.Error("Error() should contain value")
	}

	errNoValue := &ValidationError{
		Field:      "ks",
		Constraint: "required",
	}
	if !strings.Contains(errNoValue.Error(), "ks") {
		t.Error("Error() should contain field name")
	}
}
