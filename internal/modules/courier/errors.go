package courier

import (
	"errors"

	"dispatch/internal/types"
)

var (
	ErrNotFound    = errors.New("courier not found")
	ErrBusy        = errors.New("courier is on a delivery")
	ErrInactive    = errors.New("courier account is inactive")
	ErrNotApproved = errors.New("courier account is not approved")
)

// ErrPositionNotSet is a validation error: the courier must send a position
// before looking for orders.
var ErrPositionNotSet = types.NewFieldError("position", "courier position is not set")
