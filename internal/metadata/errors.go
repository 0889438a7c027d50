package metadata

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every input validation failure.
var ErrValidation = errors.New("certificate validation failed")

// ErrMetadataTooLarge is returned when the encoded metadata exceeds the ceiling.
var ErrMetadataTooLarge = errors.New("metadata too large")

// DuplicateKeyError reports a field key that appears more than once.
type DuplicateKeyError struct {
	Key   string
	Index int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate certificate key %q at index %d", e.Key, e.Index)
}

// Is reports whether target is ErrValidation.
func (e *DuplicateKeyError) Is(target error) bool { return target == ErrValidation }

// EmptyFieldError reports a required field that is empty. Key is the
// certificate field it belongs to, if any.
type EmptyFieldError struct {
	Field string
	Key   string
	Index int
}

func (e *EmptyFieldError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s must not be empty", e.Field)
	}
	return fmt.Sprintf("%s must not be empty (key %q, value %d)", e.Field, e.Key, e.Index)
}

// Is reports whether target is ErrValidation.
func (e *EmptyFieldError) Is(target error) bool { return target == ErrValidation }

// FieldTooLongError reports a text longer than MaxTextLength bytes.
type FieldTooLongError struct {
	Field  string
	Length int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("%s is %d bytes, limit is %d", e.Field, e.Length, MaxTextLength)
}

// Is reports whether target is ErrValidation.
func (e *FieldTooLongError) Is(target error) bool { return target == ErrValidation }
