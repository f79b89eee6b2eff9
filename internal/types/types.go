// README: Shared identifiers and geographic point.
package types

import "math"

type ID string

func (id ID) String() string {
	return string(id)
}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects coordinates outside the geographic range, NaN included.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return NewFieldError("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return NewFieldError("longitude", "must be between -180 and 180")
	}
	return nil
}
