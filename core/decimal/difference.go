package decimal

// Difference is the signed delta between two Decimals. It records what
// changed between two snapshots of the same quantity so the change can be
// replayed onto another base.
type Difference struct {
	magnitude Decimal
	sign      int
}

// Between returns a - b. Either side may be infinite; two infinities cancel.
func Between(a, b Decimal) Difference {
	switch {
	case a.inf && b.inf:
		return Difference{}
	case a.inf:
		return Difference{magnitude: Infinity, sign: 1}
	case b.inf:
		return Difference{magnitude: Infinity, sign: -1}
	}
	delta := a.Sub(b)
	return Difference{magnitude: delta.Abs(), sign: delta.Sign()}
}

// Increase is a positive Difference of the given magnitude.
func Increase(amount Decimal) Difference {
	return Between(amount.Abs(), Zero)
}

// Decrease is a negative Difference of the given magnitude.
func Decrease(amount Decimal) Difference {
	return Between(Zero, amount.Abs())
}

// Sign returns -1, 0 or +1.
func (d Difference) Sign() int { return d.sign }

func (d Difference) IsZero() bool     { return d.sign == 0 }
func (d Difference) IsPositive() bool { return d.sign > 0 }
func (d Difference) IsNegative() bool { return d.sign < 0 }

// Absolute returns the unsigned magnitude.
func (d Difference) Absolute() Decimal {
	if d.sign == 0 {
		return Zero
	}
	return d.magnitude
}

// NonZero returns d and true unless d is zero.
func (d Difference) NonZero() (Difference, bool) {
	if d.sign == 0 {
		return Difference{}, false
	}
	return d, true
}

// Positive returns d and true only for a positive difference.
func (d Difference) Positive() (Difference, bool) {
	if d.sign <= 0 {
		return Difference{}, false
	}
	return d, true
}

// Negative returns d and true only for a negative difference.
func (d Difference) Negative() (Difference, bool) {
	if d.sign >= 0 {
		return Difference{}, false
	}
	return d, true
}

// Neg flips the sign.
func (d Difference) Neg() Difference {
	return Difference{magnitude: d.magnitude, sign: -d.sign}
}

// Mul scales the magnitude by a non-negative factor.
func (d Difference) Mul(factor Decimal) Difference {
	scaled := d.magnitude.Mul(factor.Abs())
	if scaled.IsZero() {
		return Difference{}
	}
	sign := d.sign
	if factor.IsNegative() {
		sign = -sign
	}
	return Difference{magnitude: scaled, sign: sign}
}

// ApplyTo replays the change onto base. Protocol quantities are unsigned, so
// the result saturates at zero.
func (d Difference) ApplyTo(base Decimal) Decimal {
	switch {
	case d.sign == 0:
		return base
	case d.sign > 0:
		return base.Add(d.magnitude)
	case d.magnitude.inf || base.Lte(d.magnitude):
		if base.inf {
			return base
		}
		return Zero
	default:
		return base.Sub(d.magnitude)
	}
}

// String renders the difference with an explicit sign, e.g. "+1.5".
func (d Difference) String() string {
	switch {
	case d.sign > 0:
		return "+" + d.magnitude.String()
	case d.sign < 0:
		return "-" + d.magnitude.String()
	}
	return "0"
}

// Prettify renders the signed difference with thousands separators.
func (d Difference) Prettify(places int32) string {
	switch {
	case d.sign > 0:
		return "+" + d.magnitude.Prettify(places)
	case d.sign < 0:
		return "-" + d.magnitude.Prettify(places)
	}
	return Zero.Prettify(places)
}

// MarshalText encodes the signed String form.
func (d Difference) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
