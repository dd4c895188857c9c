// README: Fare configuration, flat rates and quote types.
package pricing

import (
	"time"

	"cabdesk/internal/types"
)

// DefaultOperator keys the single fare configuration of a one-operator deployment.
const DefaultOperator types.ID = "default"

type Strategy string

const (
	StrategyMeter Strategy = "meter"
	StrategyFlat  Strategy = "flat"
)

func (s Strategy) Valid() bool { return s == StrategyMeter || s == StrategyFlat }

type RoundingMode string

const (
	RoundingNone      RoundingMode = "none"
	RoundingNearest10 RoundingMode = "nearest_0.1"
	RoundingNearest25 RoundingMode = "nearest_0.25"
	RoundingNearest50 RoundingMode = "nearest_0.5"
	RoundingNearest1  RoundingMode = "nearest_1"
)

var roundingIncrements = map[RoundingMode]float64{
	RoundingNone:      0.01,
	RoundingNearest10: 0.10,
	RoundingNearest25: 0.25,
	RoundingNearest50: 0.50,
	RoundingNearest1:  1.00,
}

// Increment returns the currency step the mode rounds to. "none" still rounds to cents.
func (m RoundingMode) Increment() (float64, bool) {
	inc, ok := roundingIncrements[m]
	return inc, ok
}

// Fee is a flat, selectable add-on (airport fee, luggage, ...).
type Fee struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// FareConfig is the operator's meter configuration. Exactly one exists per operator.
//
// WaitTimePerMinute, WaitTriggerSpeedMph and IdleGracePeriodSeconds configure the live meter
// used during a trip; they do not affect the pre-trip estimate.
type FareConfig struct {
	OperatorID             types.ID     `json:"operator_id"`
	FarePerMile            float64      `json:"fare_per_mile"`
	ExtraPass              *float64     `json:"extra_pass,omitempty"`
	WaitTimePerMinute      float64      `json:"wait_time_per_minute"`
	BaseFare               *float64     `json:"base_fare,omitempty"`
	MinimumFare            *float64     `json:"minimum_fare,omitempty"`
	WaitTriggerSpeedMph    float64      `json:"wait_trigger_speed_mph"`
	IdleGracePeriodSeconds float64      `json:"idle_grace_period_seconds"`
	MeterRoundingMode      RoundingMode `json:"meter_rounding_mode"`
	SurgeEnabled           bool         `json:"surge_enabled"`
	SurgeMultiplier        *float64     `json:"surge_multiplier,omitempty"`
	SurgeNotes             *string      `json:"surge_notes,omitempty"`
	OtherFees              []Fee        `json:"other_fees"`
	// IncludeOtherFeesInEstimate adds every configured fee to the pre-trip estimate.
	// Off by default: fees are selected and reconciled when the trip closes.
	IncludeOtherFeesInEstimate bool      `json:"include_other_fees_in_estimate"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

type FlatRate struct {
	ID            types.ID  `json:"id"`
	OperatorID    types.ID  `json:"operator_id"`
	Name          string    `json:"name"`
	DistanceLabel *string   `json:"distance_label,omitempty"`
	Amount        float64   `json:"amount"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FareRequest asks for a pre-trip estimate.
type FareRequest struct {
	OperatorID types.ID
	Strategy   Strategy
	FlatRateID types.ID
	Miles      float64
	Passengers int
}

// Line is one component of a fare breakdown, in currency units.
type Line struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

type FareQuote struct {
	Strategy   Strategy    `json:"strategy"`
	Amount     types.Money `json:"amount"`
	Display    string      `json:"display"`
	FlatRateID *types.ID   `json:"flat_rate_id,omitempty"`
	Breakdown  []Line      `json:"breakdown"`
}

// TripMetrics are the live-meter readings available when a trip closes.
type TripMetrics struct {
	Miles       float64  `json:"miles"`
	WaitSeconds float64  `json:"wait_seconds"`
	Passengers  int      `json:"passengers"`
	Fees        []string `json:"fees,omitempty"`
}
