package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrConflict           = errors.New("order state conflict")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrForbidden          = errors.New("actor not allowed")
	ErrInvalidOTP         = errors.New("invalid delivery code")
	ErrOTPLocked          = errors.New("too many invalid delivery codes")
	ErrNoLongerAvailable  = errors.New("order no longer available")
	ErrCourierUnavailable = errors.New("courier unavailable")
	ErrNotDelivered       = errors.New("order not delivered")
	ErrAlreadyRated       = errors.New("order already rated")
)

// StateError reports a transition the state table does not allow.
type StateError struct {
	Current   Status
	Requested Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.Current, e.Requested)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState || target == ErrConflict
}
