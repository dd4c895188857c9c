package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdesk/internal/types"
)

func TestHaversineMiles_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantMiles float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 28.2919557, Lng: -81.4075713},
			b:         types.Point{Lat: 28.2919557, Lng: -81.4075713},
			wantMiles: 0,
			tolerance: 1e-9,
		},
		{
			name:      "Kissimmee to Orlando airport (~11mi)",
			a:         types.Point{Lat: 28.2919557, Lng: -81.4075713},
			b:         types.Point{Lat: 28.4311577, Lng: -81.308083},
			wantMiles: 11.7,
			tolerance: 1.0,
		},
		{
			name:      "New York to Los Angeles (~2451mi)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantMiles: 2451,
			tolerance: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMiles(tt.a, tt.b)
			assert.InDelta(t, tt.wantMiles, got, tt.tolerance)
		})
	}
}

func TestHaversineMiles_Symmetry(t *testing.T) {
	pairs := [][2]types.Point{
		{{Lat: 25.0, Lng: 121.0}, {Lat: 26.0, Lng: 122.0}},
		{{Lat: -33.86, Lng: 151.2}, {Lat: 51.5, Lng: -0.12}},
		{{Lat: 0, Lng: 179.9}, {Lat: 0, Lng: -179.9}},
	}
	for _, p := range pairs {
		assert.InDelta(t, HaversineMiles(p[0], p[1]), HaversineMiles(p[1], p[0]), 1e-9)
		assert.Zero(t, HaversineMiles(p[0], p[0]))
	}
}

func TestSortByDistance_UnknownLast(t *testing.T) {
	type item struct {
		id string
		d  float64
	}
	items := []item{
		{"nan", math.NaN()},
		{"c", 5.0},
		{"inf", math.Inf(1)},
		{"a", 1.0},
		{"b", 3.0},
	}

	SortByDistance(items, func(i item) float64 { return i.d })

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	require.Equal(t, []string{"a", "b", "c"}, ids[:3])
	assert.ElementsMatch(t, []string{"nan", "inf"}, ids[3:])
}

func TestSortByDistance_Empty(t *testing.T) {
	var items []float64
	SortByDistance(items, func(f float64) float64 { return f })
	assert.Empty(t, items)
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	c := types.Point{Lat: 28.2919557, Lng: -81.4075713}
	sw, ne := BoundingBox(c, 10)

	north := types.Point{Lat: ne.Lat, Lng: c.Lng}
	east := types.Point{Lat: c.Lat, Lng: ne.Lng}
	assert.InDelta(t, 10, HaversineMiles(c, north), 0.01)
	assert.GreaterOrEqual(t, HaversineMiles(c, east), 9.9)
	assert.Less(t, sw.Lat, c.Lat)
	assert.Less(t, sw.Lng, c.Lng)
}
