package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

// Geocoder resolves free-text delivery addresses to coordinates.
type Geocoder struct {
	client *maps.Client
	region string
}

// NewGeocoder biases results to region, a ccTLD such as "cm".
func NewGeocoder(apiKey, region string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, region: region}, nil
}

func (g *Geocoder) Geocode(ctx context.Context, address string) (types.Point, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  g.region,
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, ErrNoResult
	}
	loc := results[0].Geometry.Location
	p := types.Point{Lat: loc.Lat, Lng: loc.Lng}
	if err := p.Validate(); err != nil {
		return types.Point{}, err
	}
	return p, nil
}
