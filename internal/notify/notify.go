//go:generate mockgen -source ./notify.go -destination=./mocks/notify.go -package=mock_notify

// README: Fire-and-forget notifications about order events (push, event log, stream).
package notify

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/types"
)

type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderStatus    EventType = "order_status"
	EventOrderAvailable EventType = "order_available"
)

type Recipient struct {
	Role string   `json:"role"`
	ID   types.ID `json:"id"`
}

type Event struct {
	Type        EventType         `json:"type"`
	OrderID     types.ID          `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      string            `json:"status"`
	Recipients  []Recipient       `json:"recipients"`
	Data        map[string]string `json:"data,omitempty"`
	At          time.Time         `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
