package errors

import (
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError through errors.Is.
var ErrValidation = errors.New("validation error")

// ValidationError rejects user input before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
