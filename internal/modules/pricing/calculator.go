// README: Pure fare arithmetic for the meter and flat strategies.
package pricing

import "math"

// Breakdown codes.
const (
	LineDistance   = "distance"
	LinePassengers = "extra_passengers"
	LineBase       = "base_fare"
	LineSurge      = "surge"
	LineFee        = "fee:"
	LineWait       = "wait_time"
	LineMinimum    = "minimum_fare_adjustment"
	LineRounding   = "rounding"
	LineFlat       = "flat_rate"
)

// MeterEstimate computes the pre-trip meter fare:
//
//	raw = farePerMile*miles + extraPass*max(passengers-1, 0) [+ baseFare]
//	raw *= surgeMultiplier when surge is enabled
//	[+ otherFees when IncludeOtherFeesInEstimate]
//	raw = max(raw, minimumFare)
//	fare = round(raw, meterRoundingMode)
//
// miles must be finite and non-negative; callers validate it.
func MeterEstimate(cfg FareConfig, miles float64, passengers int) (float64, []Line) {
	var extra []Line
	if cfg.IncludeOtherFeesInEstimate {
		for _, f := range cfg.OtherFees {
			extra = append(extra, Line{Code: LineFee + f.Name, Amount: f.Amount})
		}
	}
	return meter(cfg, miles, passengers, extra)
}

// TripFare computes the closing meter fare from live readings. Waiting is billed per minute
// once the idle grace period has elapsed; only the fees named in m.Fees are added.
func TripFare(cfg FareConfig, m TripMetrics) (float64, []Line) {
	var extra []Line
	if billable := m.WaitSeconds - cfg.IdleGracePeriodSeconds; billable > 0 && cfg.WaitTimePerMinute > 0 {
		extra = append(extra, Line{Code: LineWait, Amount: billable / 60 * cfg.WaitTimePerMinute})
	}
	for _, name := range m.Fees {
		for _, f := range cfg.OtherFees {
			if f.Name == name {
				extra = append(extra, Line{Code: LineFee + f.Name, Amount: f.Amount})
				break
			}
		}
	}
	return meter(cfg, m.Miles, m.Passengers, extra)
}

func meter(cfg FareConfig, miles float64, passengers int, extra []Line) (float64, []Line) {
	lines := []Line{{Code: LineDistance, Amount: cfg.FarePerMile * miles}}
	raw := lines[0].Amount

	if cfg.ExtraPass != nil && passengers > 1 {
		v := *cfg.ExtraPass * float64(passengers-1)
		lines = append(lines, Line{Code: LinePassengers, Amount: v})
		raw += v
	}
	if cfg.BaseFare != nil {
		lines = append(lines, Line{Code: LineBase, Amount: *cfg.BaseFare})
		raw += *cfg.BaseFare
	}
	if cfg.SurgeEnabled && cfg.SurgeMultiplier != nil {
		surged := raw * *cfg.SurgeMultiplier
		lines = append(lines, Line{Code: LineSurge, Amount: surged - raw})
		raw = surged
	}
	for _, l := range extra {
		lines = append(lines, l)
		raw += l.Amount
	}
	if cfg.MinimumFare != nil && raw < *cfg.MinimumFare {
		lines = append(lines, Line{Code: LineMinimum, Amount: *cfg.MinimumFare - raw})
		raw = *cfg.MinimumFare
	}

	fare := ApplyRounding(math.Max(raw, 0), cfg.MeterRoundingMode)
	if d := fare - raw; math.Abs(d) >= 0.005 {
		lines = append(lines, Line{Code: LineRounding, Amount: toCents(d)})
	}
	for i := range lines {
		lines[i].Amount = toCents(lines[i].Amount)
	}
	return fare, lines
}

// FlatFare returns the rate amount. The trip distance has no influence on it.
func FlatFare(rate FlatRate) (float64, []Line) {
	amt := toCents(rate.Amount)
	return amt, []Line{{Code: LineFlat, Amount: amt}}
}
