// Package wad implements the checked fixed-point arithmetic used by the
// lending core. Values are unsigned integers scaled by 10^18 and every
// operation reports overflow instead of wrapping.
package wad

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WAD is the scale factor shared by Decimal and Rate.
const WAD uint64 = 1_000_000_000_000_000_000

// Scale is the number of fractional decimal digits carried by a WAD value.
const Scale = 18

// ErrMathOverflow is returned whenever a result leaves the representable
// range, including subtraction below zero and division by zero.
var ErrMathOverflow = errors.New("wad: math overflow")

var (
	wadInt     = uint256.NewInt(WAD)
	halfWadInt = uint256.NewInt(WAD / 2)
	percentInt = uint256.NewInt(WAD / 100)
)

// Decimal is a non-negative 128-bit value scaled by 10^18. Intermediate
// products are carried in 256 bits so that only the final result has to fit.
type Decimal struct {
	v uint256.Int
}

// Zero returns the zero Decimal.
func Zero() Decimal { return Decimal{} }

// One returns 1.0.
func One() Decimal {
	var d Decimal
	d.v.SetUint64(WAD)
	return d
}

// FromInteger scales an integer amount. Every uint64 fits, so this cannot
// fail.
func FromInteger(x uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(x), wadInt)
	return d
}

// FromPercent converts a whole percentage (50 == 0.5).
func FromPercent(p uint8) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(uint64(p)), percentInt)
	return d
}

// FromScaledUint64 wraps a value that is already WAD scaled, such as the fee
// fields of a reserve config.
func FromScaledUint64(raw uint64) Decimal {
	var d Decimal
	d.v.SetUint64(raw)
	return d
}

// FromScaledRaw wraps a raw scaled integer. Values wider than 128 bits are
// rejected.
func FromScaledRaw(raw *uint256.Int) (Decimal, error) {
	if raw == nil {
		return Zero(), nil
	}
	if !fits128(raw) {
		return Decimal{}, ErrMathOverflow
	}
	var d Decimal
	d.v.Set(raw)
	return d, nil
}

// FromLE reads a 16-byte little-endian scaled value.
func FromLE(src []byte) Decimal {
	var d Decimal
	lo, hi := readLE128(src)
	d.v[0], d.v[1] = lo, hi
	return d
}

// PutLE writes the 16-byte little-endian scaled value into dst.
func (d Decimal) PutLE(dst []byte) {
	writeLE128(dst, d.v[0], d.v[1])
}

// ScaledRaw returns a copy of the underlying scaled integer.
func (d Decimal) ScaledRaw() *uint256.Int {
	return new(uint256.Int).Set(&d.v)
}

// IsZero reports whether d == 0.
func (d Decimal) IsZero() bool { return d.v.IsZero() }

// Cmp compares d and o and returns -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int { return d.v.Cmp(&o.v) }

// Equal reports whether d and o hold the same value.
func (d Decimal) Equal(o Decimal) bool { return d.v.Eq(&o.v) }

// TryAdd returns d + o.
func (d Decimal) TryAdd(o Decimal) (Decimal, error) {
	var out Decimal
	out.v.Add(&d.v, &o.v)
	if !fits128(&out.v) {
		return Decimal{}, ErrMathOverflow
	}
	return out, nil
}

// TrySub returns d - o. Negative results are not representable.
func (d Decimal) TrySub(o Decimal) (Decimal, error) {
	if d.v.Lt(&o.v) {
		return Decimal{}, ErrMathOverflow
	}
	var out Decimal
	out.v.Sub(&d.v, &o.v)
	return out, nil
}

// TryMul returns d * o, truncated to 18 fractional digits.
func (d Decimal) TryMul(o Decimal) (Decimal, error) {
	var out Decimal
	out.v.Mul(&d.v, &o.v)
	out.v.Div(&out.v, wadInt)
	if !fits128(&out.v) {
		return Decimal{}, ErrMathOverflow
	}
	return out, nil
}

// TryMulInt returns d * x.
func (d Decimal) TryMulInt(x uint64) (Decimal, error) {
	var out Decimal
	out.v.Mul(&d.v, uint256.NewInt(x))
	if !fits128(&out.v) {
		return Decimal{}, ErrMathOverflow
	}
	return out, nil
}

// TryDiv returns d / o, truncated.
func (d Decimal) TryDiv(o Decimal) (Decimal, error) {
	if o.v.IsZero() {
		return Decimal{}, ErrMathOverflow
	}
	var out Decimal
	out.v.Mul(&d.v, wadInt)
	out.v.Div(&out.v, &o.v)
	if !fits128(&out.v) {
		return Decimal{}, ErrMathOverflow
	}
	return out, nil
}

// TryDivInt returns d / x, truncated.
func (d Decimal) TryDivInt(x uint64) (Decimal, error) {
	if x == 0 {
		return Decimal{}, ErrMathOverflow
	}
	var out Decimal
	out.v.Div(&d.v, uint256.NewInt(x))
	return out, nil
}

// TryPow raises d to an integer power by repeated squaring.
func (d Decimal) TryPow(exp uint64) (Decimal, error) {
	result := One()
	base := d
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.TryMul(base); err != nil {
				return Decimal{}, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = base.TryMul(base); err != nil {
				return Decimal{}, err
			}
		}
	}
	return result, nil
}

// TryFloorU64 truncates d to an integer.
func (d Decimal) TryFloorU64() (uint64, error) {
	var q uint256.Int
	q.Div(&d.v, wadInt)
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

// TryCeilU64 rounds d up to the next integer.
func (d Decimal) TryCeilU64() (uint64, error) {
	var q, r uint256.Int
	q.DivMod(&d.v, wadInt, &r)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

// TryRoundU64 rounds d half-up to an integer.
func (d Decimal) TryRoundU64() (uint64, error) {
	var q uint256.Int
	q.Add(&d.v, halfWadInt)
	q.Div(&q, wadInt)
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Shopspring converts d into an arbitrary precision decimal for display.
func (d Decimal) Shopspring() decimal.Decimal {
	return decimal.NewFromBigInt(d.v.ToBig(), -Scale)
}

// String renders d in plain decimal notation.
func (d Decimal) String() string {
	return d.Shopspring().String()
}

// FromShopspring converts x, truncating digits beyond the 18th fractional
// place.
func FromShopspring(x decimal.Decimal) (Decimal, error) {
	if x.IsNegative() {
		return Decimal{}, ErrMathOverflow
	}
	scaled := x.Shift(Scale).Truncate(0).BigInt()
	raw, overflow := uint256.FromBig(scaled)
	if overflow {
		return Decimal{}, ErrMathOverflow
	}
	return FromScaledRaw(raw)
}

// ParseDecimal parses a base-10 string such as "12.5".
func ParseDecimal(s string) (Decimal, error) {
	x, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("wad: parse %q: %w", s, err)
	}
	return FromShopspring(x)
}

// MustParseDecimal is ParseDecimal for constants and tests.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// BigInt returns the scaled value as a big.Int.
func (d Decimal) BigInt() *big.Int { return d.v.ToBig() }

func fits128(v *uint256.Int) bool {
	return v[2] == 0 && v[3] == 0
}

func readLE128(src []byte) (lo, hi uint64) {
	_ = src[15]
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(src[i])
		hi = hi<<8 | uint64(src[8+i])
	}
	return lo, hi
}

func writeLE128(dst []byte, lo, hi uint64) {
	_ = dst[15]
	for i := 0; i < 8; i++ {
		dst[i] = byte(lo >> (8 * i))
		dst[8+i] = byte(hi >> (8 * i))
	}
}
