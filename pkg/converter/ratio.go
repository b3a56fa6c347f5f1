// pkg/converter/ratio.go
package converter

import "math"

// Round rounds x to the given number of decimal places
func Round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

// Divide returns round(num/den) when both operands are present and the
// denominator is strictly positive; otherwise nil.
func (c *Converter) Divide(num, den *float64) *float64 {
	if num == nil || den == nil || *den <= 0 {
		return nil
	}

	ratio := Round(*num / *den, c.config.RoundingPlaces)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil
	}
	return &ratio
}

// DivideInt is Divide for integer counts
func (c *Converter) DivideInt(num, den *int64) *float64 {
	return c.Divide(IntToFloat(num), IntToFloat(den))
}

// SafeDivide coerces both raw cells before dividing
func (c *Converter) SafeDivide(num, den string) *float64 {
	return c.Divide(c.Float(num), c.Float(den))
}

// IntToFloat widens an optional integer
func IntToFloat(i *int64) *float64 {
	if i == nil {
		return nil
	}
	f := float64(*i)
	return &f
}

// SumInts adds two optional integers; the sum is present only when both are
func SumInts(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	s := *a + *b
	return &s
}
