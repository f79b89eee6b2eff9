// README: Courier earnings dashboard: today, ISO week, calendar month and a 7-day breakdown.
package earnings

import (
	"time"

	"dispatch/internal/types"
)

const days = 7

// Delivery is one delivered order as seen by the aggregator.
type Delivery struct {
	OrderID     types.ID
	DeliveredAt time.Time
	Earnings    int64
}

type Totals struct {
	Earnings   int64 `json:"earnings"`
	Deliveries int   `json:"deliveries"`
}

type Day struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	Earnings   int64  `json:"earnings"`
	Deliveries int    `json:"deliveries"`
}

type Summary struct {
	CourierID types.ID `json:"courier_id"`
	Currency  string   `json:"currency"`
	Today     Totals   `json:"today"`
	Week      Totals   `json:"week"`
	Month     Totals   `json:"month"`
	// Daily is most recent first: today, yesterday, ... six days ago.
	Daily          []Day   `json:"daily"`
	WeeklyGoal     int     `json:"weekly_goal"`
	WeeklyProgress float64 `json:"weekly_progress"`
	AverageRating  float64 `json:"average_rating"`
	Lifetime       Totals  `json:"lifetime"`
}
