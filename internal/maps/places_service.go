package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"cabdesk/internal/types"
)

// placesBiasRadiusMeters is the location-bias radius passed to Text Search.
const placesBiasRadiusMeters = 50000

// PlacesService resolves free text (addresses, landmarks, hotel names) with the Places
// Text Search API. Dispatchers often type a venue rather than a postal address, which the
// Geocoding API resolves poorly.
type PlacesService struct {
	client *maps.Client
	region string
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey, region string) (*PlacesService, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &PlacesService{client: client, region: region}, nil
}

// Geocode returns the location of the top Text Search result near bias.
func (s *PlacesService) Geocode(ctx context.Context, query string, bias types.Point) (types.Point, bool, error) {
	r := &maps.TextSearchRequest{
		Query:    query,
		Location: &maps.LatLng{Lat: bias.Lat, Lng: bias.Lng},
		Radius:   placesBiasRadiusMeters,
		Region:   s.region,
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return types.Point{}, false, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return types.Point{}, false, nil
	}
	loc := resp.Results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
