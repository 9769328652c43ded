package domain

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	switch {
	case e.Msg != "" && e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

func (e ValidationError) Unwrap() error { return e.Err }

// InvalidInterval is the validation error for a booking or block range.
func InvalidInterval(msg string) error {
	return ValidationError{Field: "interval", Msg: msg}
}

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type UnauthorizedError struct {
	Msg string
}

func (e UnauthorizedError) Error() string {
	if e.Msg == "" {
		return "unauthorized"
	}
	return e.Msg
}

type ForbiddenError struct {
	Msg string
}

func (e ForbiddenError) Error() string {
	if e.Msg == "" {
		return "forbidden"
	}
	return e.Msg
}

// TransitionError is returned when a state machine refuses a move. The record is left untouched.
type TransitionError struct {
	Resource string
	From     string
	To       string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Resource, e.From, e.To)
}

type SlotConflictError struct {
	CourtID int64
}

func (e SlotConflictError) Error() string {
	return "requested time slot is no longer available"
}

type ConflictingConfirmationError struct {
	BookingID int64
}

func (e ConflictingConfirmationError) Error() string {
	return fmt.Sprintf("booking %d already confirmed with a different transaction", e.BookingID)
}

// UpstreamError wraps a failure of an external provider. Its cause is for logs only.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Provider)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e UpstreamError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsUnauthorized(err error) bool {
	var target UnauthorizedError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target TransitionError
	return errors.As(err, &target)
}

func IsSlotConflict(err error) bool {
	var target SlotConflictError
	return errors.As(err, &target)
}

func IsConflictingConfirmation(err error) bool {
	var target ConflictingConfirmationError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target UpstreamError
	return errors.As(err, &target)
}
