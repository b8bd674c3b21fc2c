package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input on a single field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidation creates a field-level validation error
func NewValidation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an operation that is not legal in the campaign's current status
type InvalidStateError struct {
	Current   string
	Requested string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign in status %s", e.Requested, e.Current)
}

// NewInvalidState creates an invalid state error
func NewInvalidState(current, requested string) error {
	return &InvalidStateError{Current: current, Requested: requested}
}

// NotFoundError reports a missing campaign, list or subscriber
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// NewNotFound creates a not found error for the given resource
func NewNotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ErrConcurrentModification is returned to the loser of a lock race on a campaign row.
// Callers should re-read the campaign before retrying.
var ErrConcurrentModification = errors.New("campaign is being modified by another request")

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
