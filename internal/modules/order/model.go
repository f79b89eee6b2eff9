// README: Order aggregate, status definitions and the transition table.
package order

import (
	"time"

	"dispatch/internal/types"
)

type Status string

const (
	StatusNone            Status = "none"
	StatusPending         Status = "pending"
	StatusAccepted        Status = "accepted"
	StatusPreparing       Status = "preparing"
	StatusReady           Status = "ready"
	StatusCourierAssigned Status = "courier_assigned"
	StatusEnRouteToPickup Status = "en_route_to_pickup"
	StatusCollected       Status = "collected"
	StatusInDelivery      Status = "in_delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusRefused         Status = "refused"
)

// ActiveStatuses are the states in which an order occupies its courier.
var ActiveStatuses = []Status{
	StatusCourierAssigned,
	StatusEnRouteToPickup,
	StatusCollected,
	StatusInDelivery,
}

// HistoryStatuses are the closed states shown in a courier's history.
var HistoryStatuses = []Status{StatusDelivered, StatusCancelled}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady,
		StatusCourierAssigned, StatusEnRouteToPickup, StatusCollected,
		StatusInDelivery, StatusDelivered, StatusCancelled, StatusRefused:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefused
}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type MerchantKind string

const (
	MerchantRestaurant  MerchantKind = "restaurant"
	MerchantSupermarket MerchantKind = "supermarket"
)

func (k MerchantKind) Valid() bool {
	return k == MerchantRestaurant || k == MerchantSupermarket
}

type PaymentMode string

const (
	PaymentCash        PaymentMode = "cash"
	PaymentCard        PaymentMode = "card"
	PaymentMobileMoney PaymentMode = "mobile_money"
)

func (p PaymentMode) Valid() bool {
	return p == PaymentCash || p == PaymentCard || p == PaymentMobileMoney
}

const PaymentStatusPending = "pending"

type Item struct {
	ProductID    types.ID    `json:"product_id"`
	Name         string      `json:"name"`
	Quantity     int         `json:"quantity"`
	UnitPrice    types.Money `json:"unit_price"`
	LineTotal    types.Money `json:"line_total"`
	Instructions string      `json:"instructions,omitempty"`
}

type Order struct {
	ID               types.ID     `json:"id"`
	Number           string       `json:"number"`
	ClientID         types.ID     `json:"client_id"`
	MerchantID       types.ID     `json:"merchant_id"`
	MerchantKind     MerchantKind `json:"merchant_kind"`
	CourierID        *types.ID    `json:"courier_id,omitempty"`
	Status           Status       `json:"status"`
	StatusVersion    int          `json:"-"`
	Pickup           types.Point  `json:"pickup"`
	Delivery         types.Point  `json:"delivery"`
	DeliveryAddress  string       `json:"delivery_address"`
	DistanceKm       float64      `json:"distance_km"`
	EstimatedMinutes int          `json:"estimated_minutes"`
	Subtotal         types.Money  `json:"subtotal"`
	DeliveryFee      types.Money  `json:"delivery_fee"`
	Commission       types.Money  `json:"commission"`
	Total            types.Money  `json:"total"`
	CourierEarnings  types.Money  `json:"courier_earnings"`
	PaymentMode      PaymentMode  `json:"payment_mode"`
	PaymentStatus    string       `json:"payment_status"`
	OTPCode          string       `json:"-"`
	CancelReason     *string      `json:"cancel_reason,omitempty"`
	Items            []Item       `json:"items,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	AcceptedAt       *time.Time   `json:"accepted_at,omitempty"`
	PreparingAt      *time.Time   `json:"preparing_at,omitempty"`
	ReadyAt          *time.Time   `json:"ready_at,omitempty"`
	AssignedAt       *time.Time   `json:"assigned_at,omitempty"`
	EnRouteAt        *time.Time   `json:"en_route_at,omitempty"`
	CollectedAt      *time.Time   `json:"collected_at,omitempty"`
	InDeliveryAt     *time.Time   `json:"in_delivery_at,omitempty"`
	DeliveredAt      *time.Time   `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
}

// Stamp sets the timestamp owned by status s. Refusal shares the cancelled
// timestamp.
func (o *Order) Stamp(s Status, at time.Time) {
	t := at
	switch s {
	case StatusAccepted:
		o.AcceptedAt = &t
	case StatusPreparing:
		o.PreparingAt = &t
	case StatusReady:
		o.ReadyAt = &t
	case StatusCourierAssigned:
		o.AssignedAt = &t
	case StatusEnRouteToPickup:
		o.EnRouteAt = &t
	case StatusCollected:
		o.CollectedAt = &t
	case StatusInDelivery:
		o.InDeliveryAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	case StatusCancelled, StatusRefused:
		o.CancelledAt = &t
	}
	o.UpdatedAt = at
}

const (
	MinRating = 1
	MaxRating = 5
)

// Rating is the ordering client's review of the courier who delivered an
// order. An order carries at most one.
type Rating struct {
	OrderID   types.ID  `json:"order_id"`
	CourierID types.ID  `json:"courier_id"`
	ClientID  types.ID  `json:"client_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code. Every
// non-terminal state may additionally move to cancelled or refused.
var AllowedTransitions = map[Status][]Status{
	StatusPending:         {StatusAccepted},
	StatusAccepted:        {StatusPreparing},
	StatusPreparing:       {StatusReady},
	StatusReady:           {StatusCourierAssigned},
	StatusCourierAssigned: {StatusEnRouteToPickup},
	StatusEnRouteToPickup: {StatusCollected},
	StatusCollected:       {StatusInDelivery},
	StatusInDelivery:      {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled || to == StatusRefused {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
