package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Messages shown to callers
const (
	MsgRequired     = "All fields are required"
	MsgInvalidEmail = "Please enter a valid email address"
	MsgInvalidRole  = "Invalid role"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError describes the first rule a field failed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator accumulates rule failures in call order
type Validator struct {
	errs []*ValidationError
}

// NewValidator creates an empty validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) fail(field, message string) *Validator {
	v.errs = append(v.errs, &ValidationError{Field: field, Message: message})
	return v
}

// Required fails when value is empty or whitespace
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.fail(field, MsgRequired)
	}
	return v
}

// Email fails when value is not a plausible email address. Empty values are
// left to Required.
func (v *Validator) Email(field, value string) *Validator {
	if value != "" && !ValidEmail(value) {
		return v.fail(field, MsgInvalidEmail)
	}
	return v
}

// OneOf fails with message when value is not in allowed
func (v *Validator) OneOf(field, value string, allowed []string, message string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	return v.fail(field, message)
}

// Errors returns every failure
func (v *Validator) Errors() []*ValidationError {
	return v.errs
}

// Valid reports whether all rules passed
func (v *Validator) Valid() bool {
	return len(v.errs) == 0
}

// Err returns the first failure, or nil
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs[0]
}

// ValidEmail reports whether s matches the accepted email shape
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeEmail trims surrounding whitespace and lowercases the address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
