package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"cabdesk/internal/geo"
	"cabdesk/internal/types"
)

// biasRadiusMiles is the half-size of the viewport used to bias geocoding results.
const biasRadiusMiles = 30

// GeocodeService resolves addresses with the Geocoding API, biased toward a viewport
// centred on the bias point so same-named places resolve to the local one.
type GeocodeService struct {
	client *maps.Client
	region string
}

func NewGeocodeService(apiKey, region string) (*GeocodeService, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &GeocodeService{client: client, region: region}, nil
}

// Geocode returns the top match for address. found is false when the API returned no results.
func (s *GeocodeService) Geocode(ctx context.Context, address string, bias types.Point) (types.Point, bool, error) {
	sw, ne := geo.BoundingBox(bias, biasRadiusMiles)
	r := &maps.GeocodingRequest{
		Address: address,
		Region:  s.region,
		Bounds: &maps.LatLngBounds{
			NorthEast: maps.LatLng{Lat: ne.Lat, Lng: ne.Lng},
			SouthWest: maps.LatLng{Lat: sw.Lat, Lng: sw.Lng},
		},
	}

	results, err := s.client.Geocode(ctx, r)
	if err != nil {
		return types.Point{}, false, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, false, nil
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
