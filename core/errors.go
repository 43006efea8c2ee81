package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError reports a problem with a single input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned for input rejected before any rule of the domain was checked.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// NewFieldError is a ValidationError about one field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err *ValidationError) Error() string {
	switch {
	case err.Err != nil:
		return err.Err.Error()
	case len(err.Fields) > 0:
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	default:
		return "invalid input"
	}
}

// FieldMap indexes the field messages by field name. It is nil when no field was reported.
func (err *ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		m[f.Field] = f.Error
	}
	return m
}

// IntegrityError means stored state contradicts an invariant the service maintains.
// Servers stop taking traffic when they see one.
type IntegrityError struct {
	Op     string
	Reason string
}

func NewIntegrityError(op, reason string) error {
	return &IntegrityError{Op: op, Reason: reason}
}

func (err *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", err.Op, err.Reason)
}

func IsShutdown(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
