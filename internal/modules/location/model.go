// README: Location snapshots and merchant positions for nearby search.
package location

import (
	"time"

	"dispatch/internal/types"
)

type Snapshot struct {
	ID         int64
	CourierID  types.ID
	Position   types.Point
	RecordedAt time.Time
}

type Merchant struct {
	ID       types.ID    `json:"id"`
	Kind     string      `json:"kind"`
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	Position types.Point `json:"position"`
	Open     bool        `json:"open"`
}

const (
	DefaultMerchantRadiusKm = 5.0
	MaxMerchantRadiusKm     = 50.0
)
