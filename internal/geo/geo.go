// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"
	"sort"

	"cabdesk/internal/types"
)

// EarthRadiusMiles is the mean earth radius used for every great-circle distance.
const EarthRadiusMiles = 3958.8

// HaversineMiles returns the great-circle distance in miles between two points.
func HaversineMiles(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMiles * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SortByDistance sorts items ascending by the accessor's distance. Items whose distance is
// not finite sort after every finite one; the sort is stable so ties keep input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := dist(items[i]), dist(items[j])
		fi, fj := IsFinite(di), IsFinite(dj)
		switch {
		case fi && fj:
			return di < dj
		case fi:
			return true
		default:
			return false
		}
	})
}

// BoundingBox returns the lat/lng box that contains a circle of radiusMiles around c.
func BoundingBox(c types.Point, radiusMiles float64) (sw, ne types.Point) {
	dLat := radiusMiles / EarthRadiusMiles * 180 / math.Pi
	cosLat := math.Cos(degreesToRadians(c.Lat))
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLng := dLat / cosLat
	return types.Point{Lat: c.Lat - dLat, Lng: c.Lng - dLng}, types.Point{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}
