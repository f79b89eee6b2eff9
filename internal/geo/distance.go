// Package geo holds the single distance metric used for filtering, ordering
// and display: haversine great-circle distance on a 6371 km sphere.
package geo

import (
	"math"

	"dispatch/internal/types"
)

const earthRadiusKm = 6371.0

// DefaultLimit caps nearest-first searches when the caller passes no limit.
const DefaultLimit = 20

// DistanceKm returns the great-circle distance in kilometres between a and b.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Box is a lat/lng rectangle used to prefilter rows in storage before the
// exact distance check.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusKm of c.
// Near the poles or across the antimeridian it widens to all longitudes.
func BoundingBox(c types.Point, radiusKm float64) Box {
	r := radiusKm / earthRadiusKm
	dLat := radiansToDegrees(r)

	box := Box{MinLat: c.Lat - dLat, MaxLat: c.Lat + dLat, MinLng: -180, MaxLng: 180}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		return box
	}

	ratio := math.Sin(r) / math.Cos(degreesToRadians(c.Lat))
	if ratio >= 1 {
		return box
	}
	dLng := radiansToDegrees(math.Asin(ratio))
	if c.Lng-dLng < -180 || c.Lng+dLng > 180 {
		return box
	}
	box.MinLng = c.Lng - dLng
	box.MaxLng = c.Lng + dLng
	return box
}

func (b Box) Contains(p types.Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
