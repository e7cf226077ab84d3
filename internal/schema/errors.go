package schema

import (
	"errors"
	"fmt"
)

// ConfigError reports a request or descriptor that does not match the
// declared entity model. Configuration errors are never retried.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Entity and Field locate the problem. Field may be empty.
	Entity string
	Field  string

	// Message is a human-readable description.
	Message string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownEntity indicates the entity has no descriptor.
	ErrCodeUnknownEntity ConfigErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeUnknownField indicates a filter, sort or fetch names a field
	// that is neither declared nor overridden.
	ErrCodeUnknownField ConfigErrorCode = "UNKNOWN_FIELD"

	// ErrCodeNotAssociation indicates a fetch or path hop names a scalar.
	ErrCodeNotAssociation ConfigErrorCode = "NOT_ASSOCIATION"

	// ErrCodeInvalidDescriptor indicates a malformed descriptor table.
	ErrCodeInvalidDescriptor ConfigErrorCode = "INVALID_DESCRIPTOR"

	// ErrCodeInvalidOverride indicates an override that cannot be bound.
	ErrCodeInvalidOverride ConfigErrorCode = "INVALID_OVERRIDE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (entity=%s, field=%s)", e.Code, e.Message, e.Entity, e.Field)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NewUnknownField creates a ConfigError for an undeclared field.
func NewUnknownField(entity, field, usage string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnknownField,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf("%s field is not declared and has no override", usage),
	}
}

func invalid(entity, field, format string, args ...any) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDescriptor,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
