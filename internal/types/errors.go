// README: Field-level validation error shared by every module.
package types

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every *FieldError.
var ErrValidation = errors.New("validation failed")

type FieldError struct {
	Field  string
	Reason string
}

func NewFieldError(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}
