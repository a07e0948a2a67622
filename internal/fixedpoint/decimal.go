// Package fixedpoint provides bounded-precision decimal arithmetic for all
// money and probability math. Results are truncated toward zero at a fixed
// scale after every multiplication and division, so a hedge whose legs sum
// to exactly 1.0 can never drift across the profitability boundary the way
// binary floats do. Only the final externally-reported figure is converted
// back to a float64.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal digits carried through every operation.
const Scale = 9

// Value is an immutable fixed-point decimal.
type Value struct {
	d decimal.Decimal
}

var (
	// Zero is the additive identity.
	Zero = Value{}
	// One is the multiplicative identity.
	One = Value{d: decimal.New(1, 0)}
	// Hundred is used for percent conversions.
	Hundred = Value{d: decimal.New(100, 0)}
)

// FromFloat converts a float64 at the package scale, truncating toward zero.
func FromFloat(f float64) Value {
	return Value{d: decimal.NewFromFloat(f).Truncate(Scale)}
}

// FromInt converts an integer exactly.
func FromInt(n int64) Value {
	return Value{d: decimal.New(n, 0)}
}

// FromString parses a decimal string, truncating toward zero at the package
// scale.
func FromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	return Value{d: d.Truncate(Scale)}, nil
}

// Add returns v + o. Addition is exact at the package scale.
func (v Value) Add(o Value) Value {
	return Value{d: v.d.Add(o.d)}
}

// Sub returns v - o.
func (v Value) Sub(o Value) Value {
	return Value{d: v.d.Sub(o.d)}
}

// Mul returns v * o truncated toward zero.
func (v Value) Mul(o Value) Value {
	return Value{d: v.d.Mul(o.d).Truncate(Scale)}
}

// Div returns v / o truncated toward zero. Division by zero is a hard
// error, never an infinity.
func (v Value) Div(o Value) (Value, error) {
	if o.d.IsZero() {
		return Zero, fmt.Errorf("fixedpoint: division by zero")
	}
	// DivisionPrecision guards the intermediate quotient; truncate pins the
	// final rounding direction.
	q := v.d.DivRound(o.d, Scale+2).Truncate(Scale)
	return Value{d: q}, nil
}

// Neg returns -v.
func (v Value) Neg() Value {
	return Value{d: v.d.Neg()}
}

// Cmp returns -1, 0, or 1 as v is less than, equal to, or greater than o.
func (v Value) Cmp(o Value) int {
	return v.d.Cmp(o.d)
}

// GreaterThan reports v > o.
func (v Value) GreaterThan(o Value) bool { return v.d.GreaterThan(o.d) }

// LessThan reports v < o.
func (v Value) LessThan(o Value) bool { return v.d.LessThan(o.d) }

// GreaterThanOrEqual reports v >= o.
func (v Value) GreaterThanOrEqual(o Value) bool { return v.d.GreaterThanOrEqual(o.d) }

// IsZero reports v == 0.
func (v Value) IsZero() bool { return v.d.IsZero() }

// IsNegative reports v < 0.
func (v Value) IsNegative() bool { return v.d.IsNegative() }

// IsPositive reports v > 0.
func (v Value) IsPositive() bool { return v.d.IsPositive() }

// Floor returns the largest integer value <= v.
func (v Value) Floor() Value {
	return Value{d: v.d.Floor()}
}

// Min returns the smaller of v and o.
func Min(v, o Value) Value {
	if v.d.LessThan(o.d) {
		return v
	}
	return o
}

// Float64 converts the value to a float64 for external reporting. Money
// math must never continue from the result.
func (v Value) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}

// String renders the exact decimal representation.
func (v Value) String() string {
	return v.d.String()
}
