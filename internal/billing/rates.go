package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateSource converts a shop-currency amount to USD for usage billing.
// Pluggable so the fixed table below can be swapped for a live feed
// without touching the reconciliation workflow.
type RateSource interface {
	ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// FixedRates is a static rate table with a flat conversion spread applied
// on top of each rate.
type FixedRates struct {
	rates  map[string]decimal.Decimal
	spread decimal.Decimal
}

// NewFixedRates returns the production table. USD passes through at parity
// (still paying the spread is not something we charge merchants for).
func NewFixedRates() *FixedRates {
	return &FixedRates{
		rates: map[string]decimal.Decimal{
			"AUD": decimal.RequireFromString("0.78"),
		},
		spread: decimal.RequireFromString("1.003"),
	}
}

// ToUSD converts amount; unknown currencies fail rather than guess.
func (f *FixedRates) ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "USD" {
		return amount, nil
	}
	rate, ok := f.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD rate for currency %s", currency)
	}
	return amount.Mul(rate).Mul(f.spread), nil
}
