package pricing

import (
	"fmt"
	"math"
	"strings"

	"cabdesk/internal/types"
)

// ConfigInput is the editable shape of a FareConfig. Required numeric fields are pointers so
// that a missing value can be told apart from zero.
type ConfigInput struct {
	FarePerMile                *float64     `json:"fare_per_mile"`
	ExtraPass                  *float64     `json:"extra_pass"`
	WaitTimePerMinute          *float64     `json:"wait_time_per_minute"`
	BaseFare                   *float64     `json:"base_fare"`
	MinimumFare                *float64     `json:"minimum_fare"`
	WaitTriggerSpeedMph        *float64     `json:"wait_trigger_speed_mph"`
	IdleGracePeriodSeconds     *float64     `json:"idle_grace_period_seconds"`
	MeterRoundingMode          RoundingMode `json:"meter_rounding_mode"`
	SurgeEnabled               bool         `json:"surge_enabled"`
	SurgeMultiplier            *float64     `json:"surge_multiplier"`
	SurgeNotes                 *string      `json:"surge_notes"`
	OtherFees                  []Fee        `json:"other_fees"`
	IncludeOtherFeesInEstimate bool         `json:"include_other_fees_in_estimate"`
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func requireAmount(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, types.NewValidationError(field, "is required")
	}
	if !finite(*v) {
		return 0, types.NewValidationError(field, "must be a number")
	}
	if *v < 0 {
		return 0, types.NewValidationError(field, "must not be negative")
	}
	return *v, nil
}

func optionalAmount(field string, v *float64) error {
	if v == nil {
		return nil
	}
	_, err := requireAmount(field, v)
	return err
}

// Validate checks the input and builds the FareConfig it describes.
func (in ConfigInput) Validate(operator types.ID) (FareConfig, error) {
	cfg := FareConfig{OperatorID: operator}
	var err error
	if cfg.FarePerMile, err = requireAmount("fare_per_mile", in.FarePerMile); err != nil {
		return FareConfig{}, err
	}
	if cfg.WaitTimePerMinute, err = requireAmount("wait_time_per_minute", in.WaitTimePerMinute); err != nil {
		return FareConfig{}, err
	}
	if cfg.WaitTriggerSpeedMph, err = requireAmount("wait_trigger_speed_mph", in.WaitTriggerSpeedMph); err != nil {
		return FareConfig{}, err
	}
	if cfg.IdleGracePeriodSeconds, err = requireAmount("idle_grace_period_seconds", in.IdleGracePeriodSeconds); err != nil {
		return FareConfig{}, err
	}
	if err := optionalAmount("extra_pass", in.ExtraPass); err != nil {
		return FareConfig{}, err
	}
	if err := optionalAmount("base_fare", in.BaseFare); err != nil {
		return FareConfig{}, err
	}
	if err := optionalAmount("minimum_fare", in.MinimumFare); err != nil {
		return FareConfig{}, err
	}
	cfg.ExtraPass, cfg.BaseFare, cfg.MinimumFare = in.ExtraPass, in.BaseFare, in.MinimumFare

	cfg.MeterRoundingMode = in.MeterRoundingMode
	if cfg.MeterRoundingMode == "" {
		cfg.MeterRoundingMode = RoundingNone
	}
	if _, ok := cfg.MeterRoundingMode.Increment(); !ok {
		return FareConfig{}, types.NewValidationError("meter_rounding_mode", fmt.Sprintf("unknown mode %q", in.MeterRoundingMode))
	}

	if in.SurgeMultiplier != nil {
		if !finite(*in.SurgeMultiplier) || *in.SurgeMultiplier <= 0 {
			return FareConfig{}, types.NewValidationError("surge_multiplier", "must be a positive number")
		}
	}
	if in.SurgeEnabled && in.SurgeMultiplier == nil {
		return FareConfig{}, types.NewValidationError("surge_multiplier", "is required when surge is enabled")
	}
	cfg.SurgeEnabled, cfg.SurgeMultiplier, cfg.SurgeNotes = in.SurgeEnabled, in.SurgeMultiplier, in.SurgeNotes

	fees, err := ValidateFees(in.OtherFees)
	if err != nil {
		return FareConfig{}, err
	}
	cfg.OtherFees = fees
	cfg.IncludeOtherFeesInEstimate = in.IncludeOtherFeesInEstimate
	return cfg, nil
}

// ValidateFees trims fee names and rejects blanks, duplicates and bad amounts.
func ValidateFees(fees []Fee) ([]Fee, error) {
	out := make([]Fee, 0, len(fees))
	seen := make(map[string]struct{}, len(fees))
	for i, f := range fees {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, types.NewValidationError(fmt.Sprintf("other_fees[%d].name", i), "is required")
		}
		if _, dup := seen[name]; dup {
			return nil, types.NewValidationError(fmt.Sprintf("other_fees[%d].name", i), "is duplicated")
		}
		seen[name] = struct{}{}
		amt := f.Amount
		if _, err := requireAmount(fmt.Sprintf("other_fees[%d].amount", i), &amt); err != nil {
			return nil, err
		}
		out = append(out, Fee{Name: name, Amount: amt})
	}
	return out, nil
}

// FlatRateInput is the editable shape of a FlatRate.
type FlatRateInput struct {
	Name          string   `json:"name"`
	DistanceLabel *string  `json:"distance_label"`
	Amount        *float64 `json:"amount"`
	Active        *bool    `json:"active"`
}

func (in FlatRateInput) Validate() (FlatRate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return FlatRate{}, types.NewValidationError("name", "is required")
	}
	amt, err := requireAmount("amount", in.Amount)
	if err != nil {
		return FlatRate{}, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return FlatRate{Name: name, DistanceLabel: in.DistanceLabel, Amount: amt, Active: active}, nil
}
