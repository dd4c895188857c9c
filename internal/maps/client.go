// Package maps wraps the Google Maps Platform clients used for geocoding and routing.
package maps

import (
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"cabdesk/internal/types"
)

// ErrNotConfigured is returned by constructors when no API key is available.
var ErrNotConfigured = errors.New("maps api key not configured")

const metersPerMile = 1609.344

func newClient(apiKey string) (*maps.Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

func latLngString(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
