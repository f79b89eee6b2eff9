package order

import (
	"context"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/types"
)

// StatusUpdate is a compare-and-set on (status, status_version).
type StatusUpdate struct {
	OrderID types.ID
	From    Status
	To      Status
	Version int
	Reason  *string
	// ReleaseCourier returns the assigned courier to idle in the same
	// transaction as the status change.
	ReleaseCourier bool
	At             time.Time
}

// Delivery completes an order and credits its courier atomically.
type Delivery struct {
	OrderID   types.ID
	CourierID types.ID
	Version   int
	Earnings  types.Money
	At        time.Time
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ListByClient(ctx context.Context, clientID types.ID, status Status, limit int) ([]Order, error)
	ListByCourier(ctx context.Context, courierID types.ID, statuses []Status, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)
	// Claim moves the courier idle→busy and the order ready→courier_assigned
	// in one transaction. It returns ErrCourierUnavailable or
	// ErrNoLongerAvailable when either conditional update matches no row.
	Claim(ctx context.Context, orderID, courierID types.ID, at time.Time) error
	Deliver(ctx context.Context, d Delivery) (bool, error)
	ReadyWithin(ctx context.Context, box geo.Box) ([]Order, error)
	ListReadyUnassigned(ctx context.Context, limit int) ([]Order, error)
	AppendEvent(ctx context.Context, e *Event) error
	// Rate stores the rating and folds it into the courier's average in one
	// transaction. It returns ErrAlreadyRated when the order has one.
	Rate(ctx context.Context, r *Rating) error
}
