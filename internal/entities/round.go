package entities

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimal places
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// PercentOfCapacity returns output as a percentage of capacity rounded to one decimal,
// or nil when the capacity is not positive
func PercentOfCapacity(output, capacity float64) *float64 {
	if capacity <= 0 {
		return nil
	}
	pct := Round(output/capacity*100, 1)
	return &pct
}
