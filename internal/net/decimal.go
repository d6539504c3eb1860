package net

import "github.com/shopspring/decimal"

// fromFloat/toFloat convert between the wire's float64 encoding and the
// core's decimal.Decimal at the one boundary where the loss is
// acceptable: client input and outbound reports, never internal state.
func fromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
