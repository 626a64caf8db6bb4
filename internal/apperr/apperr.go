// Package apperr holds the error taxonomy shared by the tool gateway services.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record is absent, soft-deleted, or owned
// by a different tenant. Lookups never distinguish between those cases.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Msg    string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Fields, ", ")
}

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
