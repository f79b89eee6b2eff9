package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"dispatch/internal/modules/courier"
)

const courierLocationsNode = "courier_locations"

// rtdbCourierEntry mirrors a single courier entry stored in Firebase RTDB
// under the /courier_locations node. Client apps listen on
// /courier_locations/{courierID} to follow their delivery.
type rtdbCourierEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// RTDBMirror writes live courier positions to Firebase Realtime Database.
type RTDBMirror struct {
	client *db.Client
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{client: client}
}

func (m *RTDBMirror) PublishCourier(ctx context.Context, c *courier.Courier) error {
	if c.Position == nil {
		return nil
	}
	entry := newRTDBEntry(c)
	ref := m.client.NewRef(fmt.Sprintf("%s/%s", courierLocationsNode, c.ID))
	if err := ref.Set(ctx, entry); err != nil {
		return fmt.Errorf("writing courier location %s: %w", c.ID, err)
	}
	return nil
}

func newRTDBEntry(c *courier.Courier) rtdbCourierEntry {
	e := rtdbCourierEntry{
		Lat:    c.Position.Lat,
		Lng:    c.Position.Lng,
		Status: string(c.Status),
	}
	if c.PositionUpdatedAt != nil {
		e.Timestamp = c.PositionUpdatedAt.UnixMilli()
	}
	return e
}
