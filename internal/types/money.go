// README: Common money value object used across modules (integer minor units).
package types

import "math"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Add ignores the currency of m2; callers only sum amounts of a single order.
func (m Money) Add(m2 Money) Money {
	return Money{Amount: m.Amount + m2.Amount, Currency: m.Currency}
}

// MulRound scales the amount by ratio, rounding half away from zero.
func (m Money) MulRound(ratio float64) Money {
	return Money{Amount: int64(math.Round(float64(m.Amount) * ratio)), Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}
