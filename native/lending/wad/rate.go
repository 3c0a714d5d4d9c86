package wad

import "github.com/holiman/uint256"

// Rate is a WAD scaled ratio with 128-bit intermediates. It is used for
// interest rates and collateral exchange rates, where values stay small and
// the narrower range surfaces runaway compounding early.
type Rate struct {
	v uint256.Int
}

// RateZero returns a zero rate.
func RateZero() Rate { return Rate{} }

// RateOne returns 1.0.
func RateOne() Rate {
	var r Rate
	r.v.SetUint64(WAD)
	return r
}

// RateFromPercent converts a whole percentage (10 == 0.1).
func RateFromPercent(p uint8) Rate {
	var r Rate
	r.v.Mul(uint256.NewInt(uint64(p)), percentInt)
	return r
}

// RateFromScaledUint64 wraps an already scaled value.
func RateFromScaledUint64(raw uint64) Rate {
	var r Rate
	r.v.SetUint64(raw)
	return r
}

// ScaledRaw returns a copy of the scaled integer.
func (r Rate) ScaledRaw() *uint256.Int { return new(uint256.Int).Set(&r.v) }

// IsZero reports whether r == 0.
func (r Rate) IsZero() bool { return r.v.IsZero() }

// Cmp compares r and o.
func (r Rate) Cmp(o Rate) int { return r.v.Cmp(&o.v) }

// TryAdd returns r + o.
func (r Rate) TryAdd(o Rate) (Rate, error) {
	var out Rate
	out.v.Add(&r.v, &o.v)
	if !fits128(&out.v) {
		return Rate{}, ErrMathOverflow
	}
	return out, nil
}

// TrySub returns r - o.
func (r Rate) TrySub(o Rate) (Rate, error) {
	if r.v.Lt(&o.v) {
		return Rate{}, ErrMathOverflow
	}
	var out Rate
	out.v.Sub(&r.v, &o.v)
	return out, nil
}

// TryMul returns r * o. The unscaled product must fit in 128 bits.
func (r Rate) TryMul(o Rate) (Rate, error) {
	var out Rate
	out.v.Mul(&r.v, &o.v)
	if !fits128(&out.v) {
		return Rate{}, ErrMathOverflow
	}
	out.v.Div(&out.v, wadInt)
	return out, nil
}

// TryMulInt returns r * x.
func (r Rate) TryMulInt(x uint64) (Rate, error) {
	var out Rate
	out.v.Mul(&r.v, uint256.NewInt(x))
	if !fits128(&out.v) {
		return Rate{}, ErrMathOverflow
	}
	return out, nil
}

// TryDiv returns r / o.
func (r Rate) TryDiv(o Rate) (Rate, error) {
	if o.v.IsZero() {
		return Rate{}, ErrMathOverflow
	}
	var out Rate
	out.v.Mul(&r.v, wadInt)
	if !fits128(&out.v) {
		return Rate{}, ErrMathOverflow
	}
	out.v.Div(&out.v, &o.v)
	return out, nil
}

// TryDivInt returns r / x.
func (r Rate) TryDivInt(x uint64) (Rate, error) {
	if x == 0 {
		return Rate{}, ErrMathOverflow
	}
	var out Rate
	out.v.Div(&r.v, uint256.NewInt(x))
	return out, nil
}

// TryPow raises r to an integer power by repeated squaring.
func (r Rate) TryPow(exp uint64) (Rate, error) {
	result := RateOne()
	base := r
	var err error
	for exp > 0 {
		if exp&1 == 1 {
			if result, err = result.TryMul(base); err != nil {
				return Rate{}, err
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, err = base.TryMul(base); err != nil {
				return Rate{}, err
			}
		}
	}
	return result, nil
}

// ToDecimal widens r into a Decimal. Both share the same scale, so the
// conversion is exact.
func (r Rate) ToDecimal() Decimal {
	var d Decimal
	d.v.Set(&r.v)
	return d
}

// TryToRate narrows d into a Rate.
func (d Decimal) TryToRate() (Rate, error) {
	if !fits128(&d.v) {
		return Rate{}, ErrMathOverflow
	}
	var r Rate
	r.v.Set(&d.v)
	return r, nil
}

// String renders r in plain decimal notation.
func (r Rate) String() string { return r.ToDecimal().String() }
