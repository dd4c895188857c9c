// README: Geocoding query/result types.
package geocoding

import "cabdesk/internal/types"

type Source string

const (
	SourceManual     Source = "manual"
	SourceGeocoded   Source = "geocoded"
	SourceUnresolved Source = "unresolved"
)

// Query describes one leg of a trip as the dispatcher entered it. Lat/Lng are operator
// overrides and win over the address when both are finite.
type Query struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Result carries the resolved point, or a nil Point when the leg is unresolved.
type Result struct {
	Point  *types.Point `json:"point,omitempty"`
	Source Source       `json:"source"`
}

func (r Result) Resolved() bool { return r.Point != nil }
