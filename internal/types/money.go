// README: Common money value object used across modules (amounts in cents).
package types

import (
	"fmt"
	"math"
)

const DefaultCurrency = "USD"

type Money struct {
	Amount   int64  `json:"amount_cents"`
	Currency string `json:"currency"`
}

// MoneyFromFloat converts a dollar amount to cents, rounding half away from zero.
func MoneyFromFloat(v float64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: int64(math.Round(v * 100)), Currency: currency}
}

func (m Money) Float() float64 {
	return float64(m.Amount) / 100
}

// String renders the amount with exactly two decimals, e.g. "12.50".
func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d", sign, a/100, a%100)
}
