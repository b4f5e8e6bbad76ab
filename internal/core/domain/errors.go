package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks client-caused request errors.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks lookups of absent entities.
	ErrNotFound = errors.New("not found")
	// ErrFeed marks transient change feed failures.
	ErrFeed = errors.New("change feed failure")
	// ErrDataIntegrity marks malformed domain records.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrInternal marks unexpected failures.
	ErrInternal = errors.New("internal error")
)

// IntegrityError locates a malformed record.
type IntegrityError struct {
	Entity EntityType
	Key    string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("malformed %s %q: %s", e.Entity, e.Key, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrDataIntegrity }

// NewIntegrityError builds an IntegrityError with a formatted reason.
func NewIntegrityError(entity EntityType, key, format string, args ...any) error {
	return &IntegrityError{Entity: entity, Key: key, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError carries the details of a rejected request payload.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %v", ErrValidation, e.Details)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
