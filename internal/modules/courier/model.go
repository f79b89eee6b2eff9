// README: Courier profile, live position and availability.
package courier

import (
	"time"

	"dispatch/internal/types"
)

type Availability string

const (
	StatusOffline Availability = "offline"
	StatusIdle    Availability = "idle"
	StatusBusy    Availability = "busy"
	StatusPaused  Availability = "paused"
)

func ParseAvailability(s string) (Availability, bool) {
	switch a := Availability(s); a {
	case StatusOffline, StatusIdle, StatusBusy, StatusPaused:
		return a, true
	}
	return "", false
}

const DefaultActionRadiusKm = 10.0

type Courier struct {
	ID                types.ID     `json:"id"`
	VehicleType       string       `json:"vehicle_type"`
	VehiclePlate      string       `json:"vehicle_plate"`
	Position          *types.Point `json:"position,omitempty"`
	PositionUpdatedAt *time.Time   `json:"position_updated_at,omitempty"`
	Status            Availability `json:"status"`
	ActionRadiusKm    float64      `json:"action_radius_km"`
	Active            bool         `json:"active"`
	AverageRating     float64      `json:"average_rating"`
	RatingCount       int          `json:"rating_count"`
	DeliveryCount     int          `json:"delivery_count"`
	TotalEarnings     int64        `json:"total_earnings"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// New returns the profile created on a courier's first access.
func New(id types.ID, at time.Time) *Courier {
	return &Courier{
		ID:             id,
		Status:         StatusOffline,
		ActionRadiusKm: DefaultActionRadiusKm,
		Active:         true,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}
