package pricing

import "math"

// roundingTolerance absorbs binary floating-point error so that 12.35 / 0.1 is treated as
// the midpoint it is meant to be.
const roundingTolerance = 1e-9

// RoundHalfUp rounds x to the nearest multiple of inc; midpoints go up.
// This is the meter's rounding policy.
func RoundHalfUp(x, inc float64) float64 {
	if inc <= 0 {
		return x
	}
	q := math.Floor(x/inc + 0.5 + roundingTolerance)
	return toCents(q * inc)
}

// RoundHalfEven rounds x to the nearest multiple of inc; midpoints go to the even multiple.
// Kept beside RoundHalfUp so the two tie-breaking rules can be compared in tests and reports.
func RoundHalfEven(x, inc float64) float64 {
	if inc <= 0 {
		return x
	}
	q := x / inc
	f := math.Floor(q)
	if math.Abs(q-f-0.5) < roundingTolerance {
		if math.Mod(f, 2) != 0 {
			f++
		}
		return toCents(f * inc)
	}
	return toCents(math.Round(q) * inc)
}

// ApplyRounding rounds a fare according to mode. Unknown modes behave like "none".
func ApplyRounding(x float64, mode RoundingMode) float64 {
	inc, ok := mode.Increment()
	if !ok {
		inc = 0.01
	}
	return RoundHalfUp(x, inc)
}

func toCents(v float64) float64 {
	return math.Round(v*100) / 100
}
