// README: Distance estimate value types and the two-phase publish states.
package distance

import (
	"context"

	"cabdesk/internal/types"
)

type Source string

const (
	SourceStraightLine Source = "straight-line"
	SourceDriving      Source = "driving"
)

// Phase is the publish state of an estimate for one request id.
//
//	Unknown -> Provisional -> Final
//
// Unknown: at least one endpoint is missing. Provisional: straight-line value published while
// routing is pending. Final: routing answered (driving) or failed (straight-line retained).
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseProvisional
	PhaseFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseProvisional:
		return "provisional"
	case PhaseFinal:
		return "final"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Estimate is one published distance value.
type Estimate struct {
	RequestID uint64  `json:"request_id"`
	Miles     float64 `json:"miles"`
	Source    Source  `json:"source"`
	Phase     Phase   `json:"phase"`
}

// Known reports whether the estimate carries a distance.
func (e Estimate) Known() bool { return e.Phase != PhaseUnknown }

// Router returns the driving distance between two points.
type Router interface {
	DrivingMiles(ctx context.Context, origin, destination types.Point) (float64, error)
}

// Observer receives every accepted estimate and advisory for a tracker. Calls are made
// synchronously and in order; implementations must not block or call back into the tracker.
type Observer interface {
	OnDistance(e Estimate)
	OnAdvisory(requestID uint64, a types.Advisory)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Distance func(Estimate)
	Advisory func(uint64, types.Advisory)
}

func (o ObserverFuncs) OnDistance(e Estimate) {
	if o.Distance != nil {
		o.Distance(e)
	}
}

func (o ObserverFuncs) OnAdvisory(id uint64, a types.Advisory) {
	if o.Advisory != nil {
		o.Advisory(id, a)
	}
}
