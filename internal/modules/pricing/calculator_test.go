package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func baseConfig() FareConfig {
	return FareConfig{
		OperatorID:        DefaultOperator,
		FarePerMile:       2.00,
		MeterRoundingMode: RoundingNone,
	}
}

func TestMeterEstimate_MinimumFareThenRounding(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraPass = f(1.00)
	cfg.BaseFare = f(3.00)
	cfg.MinimumFare = f(15.00)
	cfg.MeterRoundingMode = RoundingNearest50

	// 2.00*4 + 1.00*1 + 3.00 = 12.00 -> floored to 15.00.
	got, lines := MeterEstimate(cfg, 4, 2)
	assert.Equal(t, 15.00, got)
	assert.Contains(t, lines, Line{Code: LineMinimum, Amount: 3.00})
}

func TestMeterEstimate_RoundsUpToHalf(t *testing.T) {
	cfg := baseConfig()
	cfg.FarePerMile = 2.05
	cfg.MeterRoundingMode = RoundingNearest50

	// 2.05*6 = 12.30 -> 12.50
	got, lines := MeterEstimate(cfg, 6, 1)
	assert.Equal(t, 12.50, got)
	assert.Contains(t, lines, Line{Code: LineRounding, Amount: 0.20})
}

func TestMeterEstimate_ExtraPassengers(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraPass = f(1.50)

	one, _ := MeterEstimate(cfg, 5, 1)
	four, _ := MeterEstimate(cfg, 5, 4)
	zero, _ := MeterEstimate(cfg, 5, 0)
	assert.Equal(t, 10.00, one)
	assert.Equal(t, 14.50, four)
	assert.Equal(t, one, zero, "no negative passenger surcharge")
}

func TestMeterEstimate_ZeroDistance(t *testing.T) {
	tests := []struct {
		name      string
		base, min *float64
		want      float64
	}{
		{"base above minimum", f(4), f(3), 4},
		{"minimum above base", f(2.5), f(6), 6},
		{"base only", f(3.25), nil, 3.25},
		{"neither", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.BaseFare, cfg.MinimumFare = tt.base, tt.min
			got, _ := MeterEstimate(cfg, 0, 1)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeterEstimate_Surge(t *testing.T) {
	cfg := baseConfig()
	cfg.BaseFare = f(2)
	cfg.SurgeMultiplier = f(1.5)

	off, _ := MeterEstimate(cfg, 4, 1)
	assert.Equal(t, 10.00, off, "multiplier ignored while surge is disabled")

	cfg.SurgeEnabled = true
	on, lines := MeterEstimate(cfg, 4, 1)
	assert.Equal(t, 15.00, on)
	assert.Contains(t, lines, Line{Code: LineSurge, Amount: 5.00})
}

func TestMeterEstimate_OtherFeesFlag(t *testing.T) {
	cfg := baseConfig()
	cfg.OtherFees = []Fee{{Name: "airport", Amount: 5}, {Name: "luggage", Amount: 1.25}}

	without, _ := MeterEstimate(cfg, 3, 1)
	assert.Equal(t, 6.00, without)

	cfg.IncludeOtherFeesInEstimate = true
	with, lines := MeterEstimate(cfg, 3, 1)
	assert.Equal(t, 12.25, with)
	assert.Contains(t, lines, Line{Code: LineFee + "airport", Amount: 5})
}

func TestMeterEstimate_FeesCountTowardMinimum(t *testing.T) {
	cfg := baseConfig()
	cfg.MinimumFare = f(10)
	cfg.IncludeOtherFeesInEstimate = true
	cfg.OtherFees = []Fee{{Name: "airport", Amount: 5}}

	got, lines := MeterEstimate(cfg, 3, 1)
	assert.Equal(t, 11.00, got)
	for _, l := range lines {
		assert.NotEqual(t, LineMinimum, l.Code)
	}
}

func TestMeterEstimate_MonotonicInDistance(t *testing.T) {
	cfg := baseConfig()
	cfg.BaseFare = f(3)
	cfg.MinimumFare = f(8)
	cfg.MeterRoundingMode = RoundingNearest25

	prev := -1.0
	for d := 0.0; d <= 30; d += 0.3 {
		got, _ := MeterEstimate(cfg, d, 2)
		assert.GreaterOrEqual(t, got, prev, "d=%v", d)
		prev = got
	}
}

func TestFlatFare_IgnoresDistance(t *testing.T) {
	rate := FlatRate{ID: "r1", Name: "Airport run", Amount: 45}
	got, lines := FlatFare(rate)
	assert.Equal(t, 45.00, got)
	assert.Equal(t, []Line{{Code: LineFlat, Amount: 45}}, lines)
}

func TestTripFare_WaitAfterGracePeriod(t *testing.T) {
	cfg := baseConfig()
	cfg.WaitTimePerMinute = 0.50
	cfg.IdleGracePeriodSeconds = 120
	cfg.OtherFees = []Fee{{Name: "airport", Amount: 5}, {Name: "luggage", Amount: 1}}

	// 10.00 distance + (600-120)/60*0.50 = 4.00 wait + 5.00 airport.
	got, lines := TripFare(cfg, TripMetrics{Miles: 5, WaitSeconds: 600, Passengers: 1, Fees: []string{"airport", "unknown"}})
	assert.Equal(t, 19.00, got)
	assert.Contains(t, lines, Line{Code: LineWait, Amount: 4.00})
	assert.NotContains(t, lines, Line{Code: LineFee + "luggage", Amount: 1})

	within, _ := TripFare(cfg, TripMetrics{Miles: 5, WaitSeconds: 90, Passengers: 1})
	assert.Equal(t, 10.00, within)
}

func TestMeterEstimate_ExtraPassengersHitMinimum(t *testing.T) {
	cfg := baseConfig()
	cfg.FarePerMile = 2.50
	cfg.ExtraPass = f(1.00)
	cfg.MinimumFare = f(15.00)

	// 2.50*4 + 1.00*2 = 12.00 -> 15.00
	got, _ := MeterEstimate(cfg, 4.0, 3)
	assert.Equal(t, 15.00, got)
}
