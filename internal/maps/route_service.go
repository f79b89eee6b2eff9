// README: Google Maps clients for delivery-time estimates and address geocoding.
package maps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

var ErrNoResult = errors.New("maps: no result")

// RouteService estimates courier travel time between two points.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// EstimateMinutes returns the two-wheeler travel time from origin to
// destination, rounded up to whole minutes.
func (s *RouteService) EstimateMinutes(ctx context.Context, from, to types.Point) (int, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Avoid:       []maps.Avoid{maps.AvoidHighways},
		Language:    "fr",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoResult
	}
	return minutes(routes[0].Legs[0].Duration.Minutes()), nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

func minutes(m float64) int {
	if m <= 0 {
		return 0
	}
	return int(math.Ceil(m))
}
