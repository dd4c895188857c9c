// README: Nearby-driver candidates and the observer that receives them.
package matching

import (
	"time"

	"cabdesk/internal/types"
)

const (
	DefaultRadiusMiles = 10.0
	MaxCandidates      = 12
)

// Candidate is a driver offered for a pickup, ranked by DistanceMiles.
type Candidate struct {
	DriverID       types.ID    `json:"driver_id"`
	Name           string      `json:"name"`
	CabNumber      *string     `json:"cab_number,omitempty"`
	Location       types.Point `json:"location"`
	LastReportedAt time.Time   `json:"last_reported_at"`
	DistanceMiles  float64     `json:"distance_miles"`
}

// Observer receives the results of a Watcher. Calls for one watcher never overlap and arrive
// in request-id order.
type Observer interface {
	OnDrivers(requestID uint64, candidates []Candidate)
	OnAdvisory(requestID uint64, a types.Advisory)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	Drivers  func(requestID uint64, candidates []Candidate)
	Advisory func(requestID uint64, a types.Advisory)
}

func (o ObserverFuncs) OnDrivers(id uint64, c []Candidate) {
	if o.Drivers != nil {
		o.Drivers(id, c)
	}
}

func (o ObserverFuncs) OnAdvisory(id uint64, a types.Advisory) {
	if o.Advisory != nil {
		o.Advisory(id, a)
	}
}
