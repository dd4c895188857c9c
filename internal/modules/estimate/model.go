// README: Estimate requests, results and the messages streamed to a dispatcher session.
package estimate

import (
	"time"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

// Request is one dispatcher form state: both legs, passengers and the fare strategy.
type Request struct {
	Pickup      geocoding.Query  `json:"pickup"`
	Dropoff     geocoding.Query  `json:"dropoff"`
	Passengers  int              `json:"passengers"`
	Strategy    pricing.Strategy `json:"strategy"`
	FlatRateID  types.ID         `json:"flat_rate_id,omitempty"`
	RadiusMiles float64          `json:"radius_miles,omitempty"`
}

func (r Request) passengers() int {
	if r.Passengers < 1 {
		return 1
	}
	return r.Passengers
}

func (r Request) strategy() pricing.Strategy {
	if r.Strategy == "" {
		return pricing.StrategyMeter
	}
	return r.Strategy
}

// Result is the one-shot answer. Fields are nil when the inputs did not allow computing them;
// the reason is then listed in Advisories.
type Result struct {
	Pickup     *types.GeoPoint      `json:"pickup_point,omitempty"`
	Dropoff    *types.GeoPoint      `json:"dropoff_point,omitempty"`
	Distance   *distance.Estimate   `json:"distance,omitempty"`
	Fare       *pricing.FareQuote   `json:"fare,omitempty"`
	Drivers    []matching.Candidate `json:"drivers"`
	Advisories []types.Advisory     `json:"advisories"`
}

type MessageType string

const (
	MessageResolved MessageType = "resolved"
	MessageDistance MessageType = "distance"
	MessageFare     MessageType = "fare"
	MessageDrivers  MessageType = "drivers"
	MessageAdvisory MessageType = "advisory"
)

// Message is one frame sent to a live session. RequestID identifies the form state it
// answers; a client drops frames older than the newest id it has seen.
type Message struct {
	Type      MessageType `json:"type"`
	RequestID uint64      `json:"request_id"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Resolved is the payload of a resolved message.
type Resolved struct {
	Pickup        *types.GeoPoint  `json:"pickup_point,omitempty"`
	Dropoff       *types.GeoPoint  `json:"dropoff_point,omitempty"`
	PickupSource  geocoding.Source `json:"pickup_source"`
	DropoffSource geocoding.Source `json:"dropoff_source"`
}
