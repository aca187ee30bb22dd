// Package release provides the application use cases that plan and apply
// workspace releases.
package release

import (
	"fmt"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Validation limits for user supplied values.
const (
	MaxAuthorLength      = 256
	MaxEnvironmentLength = 64
	MaxRefLength         = 256
)

// invalidRefChars may not appear in a git ref. "~" and "^" are allowed for
// revision navigation such as HEAD~1.
const invalidRefChars = ":?*[\\ "

// ValidateRef validates a git reference used as a range bound.
func ValidateRef(ref, fieldName string) error {
	if ref == "" {
		return nil
	}
	if len(ref) > MaxRefLength {
		return fmt.Errorf("%s too long (max %d characters)", fieldName, MaxRefLength)
	}
	if strings.ContainsAny(ref, invalidRefChars) {
		return fmt.Errorf("invalid %s: %s", fieldName, ref)
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("%s cannot contain '..': %s", fieldName, ref)
	}
	return nil
}

// ValidateSafeString validates a string for safe CLI usage.
// It checks length limits and rejects control characters.
func ValidateSafeString(s string, fieldName string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%s too long (max %d characters)", fieldName, maxLen)
	}
	if strings.ContainsAny(s, "\x00\n\r\t") {
		return fmt.Errorf("%s contains invalid control characters", fieldName)
	}
	return nil
}

// ValidationError collects multiple validation errors.
type ValidationError struct {
	errors []string
}

// NewValidationError creates a new ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{errors: make([]string, 0)}
}

// Add adds an error to the collection.
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.errors = append(v.errors, err.Error())
	}
}

// HasErrors returns true if there are validation errors.
func (v *ValidationError) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the combined error message.
func (v *ValidationError) Error() string {
	if len(v.errors) == 0 {
		return ""
	}
	if len(v.errors) == 1 {
		return v.errors[0]
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(v.errors, "; "))
}

// ToError returns nil when nothing was collected, otherwise an input error
// wrapping the collection.
func (v *ValidationError) ToError(op string) error {
	if !v.HasErrors() {
		return nil
	}
	return rperrors.Wrap(v, rperrors.KindInput, op, "invalid input")
}
