// Package fixedpoint holds the parts-per-million fraction type and the
// checked 256-bit arithmetic shared by every treasury module. All divisions
// round toward zero (floor for the unsigned amounts used here).
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// Denominator is the value of a fraction equal to 100%.
	Denominator uint64 = 1_000_000

	// ReserveDecimals and PrincipalDecimals are the smallest-unit exponents of
	// the reserve asset and the principal token.
	ReserveDecimals   = 6
	PrincipalDecimals = 18
)

// Scale converts reserve-asset units to principal units (10^12).
var Scale = uint256.NewInt(1_000_000_000_000)

// ErrOverflow is returned by every checked operation that would wrap.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

// ErrUnderflow is returned when a subtraction would go below zero.
var ErrUnderflow = errors.New("fixedpoint: arithmetic underflow")

// Fraction is a non-negative ratio expressed in parts per Denominator.
type Fraction uint64

// Percent builds a fraction from a whole percentage.
func Percent(p uint64) Fraction {
	return Fraction(p * Denominator / 100)
}

// Full is 100%.
const Full = Fraction(Denominator)

// Of returns amount × f / Denominator, rounded down.
func (f Fraction) Of(amount *uint256.Int) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(uint64(f)), uint256.NewInt(Denominator))
}

// Within reports whether lo <= f <= hi.
func (f Fraction) Within(lo, hi Fraction) bool {
	return f >= lo && f <= hi
}

func (f Fraction) String() string {
	d := decimal.NewFromInt(int64(f)).Div(decimal.NewFromInt(int64(Denominator / 100)))
	return d.String() + "%"
}

// MulDiv returns x*y/d rounded down, failing when the result does not fit in
// 256 bits or d is zero.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp is MulDiv rounded up.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	return Add(z, uint256.NewInt(1))
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x-y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Min returns a copy of the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// ToPrincipal converts reserve units into principal units.
func ToPrincipal(reserve *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(reserve, Scale)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ToReserve converts principal units into reserve units, rounding down.
func ToReserve(principal *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(principal, Scale)
}

// ToReserveUp converts principal units into reserve units, rounding up.
func ToReserveUp(principal *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(principal, Scale, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Units builds an amount of whole tokens with the given decimals, e.g.
// Units(5, ReserveDecimals) is 5_000_000.
func Units(whole uint64, decimals int) *uint256.Int {
	z := uint256.NewInt(whole)
	exp := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return z.Mul(z, exp)
}

// Format renders a smallest-unit amount as a decimal string with the given
// number of decimals.
func Format(amount *uint256.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), int32(-decimals)).String()
}

// Parse reads a decimal token amount ("12.5") into smallest units. Extra
// precision beyond decimals is rejected.
func Parse(s string, decimals int) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("fixedpoint: negative amount %q", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("fixedpoint: %q exceeds %d decimals", s, decimals)
	}
	z, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}
