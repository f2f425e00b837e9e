package calc

import "math"

func Max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func Min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Abs(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

// RoundToStep snaps amount down to the nearest multiple of step, then
// truncates to precision decimal places. It never rounds up, so the result
// never exceeds what the caller's balance supports. The epsilon guards
// against float artifacts like 0.0002/0.0001 = 1.9999999.
func RoundToStep(amount, step float64, precision int) float64 {
	if step > 0 {
		amount = math.Floor(amount/step+1e-9) * step
	}
	if precision >= 0 {
		pow := math.Pow10(precision)
		amount = math.Floor(amount*pow+1e-9) / pow
	}
	return amount
}

// Notional is the position value in quote currency.
func Notional(quantity, price float64) float64 {
	return quantity * price
}
