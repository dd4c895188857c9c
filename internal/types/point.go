// README: Identifiers and geographic points shared by every module.
package types

import (
	"encoding/json"
	"errors"
	"math"
)

type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Normalize rounds both components to 6 decimal places (~0.1 m).
func (p Point) Normalize() Point {
	return Point{Lat: Round6(p.Lat), Lng: Round6(p.Lng)}
}

func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// GeoPoint is the GeoJSON wire form of a Point: coordinates are [longitude, latitude].
type GeoPoint struct {
	Point
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (g GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: [2]float64{g.Lng, g.Lat}})
}

func (g *GeoPoint) UnmarshalJSON(b []byte) error {
	var raw geoJSONPoint
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != "Point" {
		return errors.New("geo point: type must be Point")
	}
	g.Point = Point{Lat: raw.Coordinates[1], Lng: raw.Coordinates[0]}
	return nil
}
