// Package decimal implements the fixed-point numbers used for every protocol
// quantity. Values carry an integer mantissa at the same 18-decimal scale the
// contracts use, so conversion to and from wire integers is lossless and
// arithmetic truncates exactly like the on-chain integer math.
package decimal

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	shopspring "github.com/shopspring/decimal"

	coreerrors "trovekit/core/errors"
)

// Precision is the number of fractional digits carried by every Decimal.
const Precision = 18

// maxExponentDigits bounds the integer digits a parsed value may carry before it
// is rejected without materialising the mantissa. 2^256 has 78 digits.
const maxExponentDigits = 78

var (
	one     = new(big.Int).Exp(big.NewInt(10), big.NewInt(Precision), nil)
	maxWire = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Decimal is an immutable signed fixed-point value. The zero value is 0.
// Infinity is a positive sentinel whose wire form is 2^256-1, the value the
// contracts report for the collateral ratio of a debt-free position.
type Decimal struct {
	v   *big.Int
	inf bool
}

var (
	// Zero is the additive identity.
	Zero = Decimal{}
	// One is 1.0.
	One = Decimal{v: new(big.Int).Set(one)}
	// Infinity is the positive infinity sentinel.
	Infinity = Decimal{inf: true}
)

// New returns the Decimal for an integer.
func New(n int64) Decimal {
	return Decimal{v: new(big.Int).Mul(big.NewInt(n), one)}
}

// FromScaled wraps a raw mantissa already expressed at 18 decimals.
func FromScaled(scaled *big.Int) Decimal {
	if scaled == nil {
		return Zero
	}
	return Decimal{v: new(big.Int).Set(scaled)}
}

// FromWire converts an unsigned wire integer. The all-ones value maps to
// Infinity so Wire recovers it exactly.
func FromWire(value *uint256.Int) Decimal {
	if value == nil {
		return Zero
	}
	return fromWireBig(value.ToBig())
}

// FromBigWire converts a wire integer decoded as *big.Int (the form
// go-ethereum's ABI decoder produces). Negative values and values above
// 2^256-1 fail with a ParseError.
func FromBigWire(value *big.Int) (Decimal, error) {
	if value == nil {
		return Zero, nil
	}
	if value.Sign() < 0 || value.Cmp(maxWire) > 0 {
		return Zero, coreerrors.NewParseError(value.String(), "wire integer out of range", coreerrors.ErrOutOfRange)
	}
	return fromWireBig(value), nil
}

func fromWireBig(value *big.Int) Decimal {
	if value.Cmp(maxWire) == 0 {
		return Infinity
	}
	return Decimal{v: new(big.Int).Set(value)}
}

// Parse reads a decimal string such as "1500", "0.25", "-3.5" or "1e3".
// Digits past the 18th fractional place are truncated toward zero, matching
// the contracts. "∞" and "infinity" parse to Infinity.
func Parse(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "∞", "infinity", "+infinity":
		return Infinity, nil
	case "":
		return Zero, coreerrors.NewParseError(s, "empty input", nil)
	}
	parsed, err := shopspring.NewFromString(trimmed)
	if err != nil {
		return Zero, coreerrors.NewParseError(s, "malformed decimal", err)
	}
	return fromShopspring(s, parsed)
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromFloat converts a float using its shortest exact decimal representation.
func FromFloat(f float64) (Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero, coreerrors.NewParseError(strconv.FormatFloat(f, 'g', -1, 64), "non-finite float", nil)
	}
	parsed := shopspring.NewFromFloat(f)
	return fromShopspring(parsed.String(), parsed)
}

func fromShopspring(input string, parsed shopspring.Decimal) (Decimal, error) {
	digits := len(parsed.Coefficient().Text(10))
	if parsed.Coefficient().Sign() < 0 {
		digits--
	}
	exp := int(parsed.Exponent())
	if exp > 0 && exp+digits > maxExponentDigits {
		return Zero, coreerrors.NewParseError(input, "magnitude exceeds wire range", coreerrors.ErrOutOfRange)
	}
	if exp < -(Precision + digits) {
		// every significant digit sits below 10^-18
		return Zero, nil
	}
	scaled := parsed.Shift(Precision).BigInt()
	switch new(big.Int).Abs(scaled).Cmp(maxWire) {
	case 1:
		return Zero, coreerrors.NewParseError(input, "magnitude exceeds wire range", coreerrors.ErrOutOfRange)
	case 0:
		if scaled.Sign() < 0 {
			return Zero, coreerrors.NewParseError(input, "magnitude exceeds wire range", coreerrors.ErrOutOfRange)
		}
		// same sentinel FromBigWire maps to Infinity
		return Infinity, nil
	}
	return Decimal{v: scaled}, nil
}

func (d Decimal) mantissa() *big.Int {
	if d.v == nil {
		return new(big.Int)
	}
	return d.v
}

// Scaled returns a copy of the 18-decimal mantissa. Infinity yields 2^256-1.
func (d Decimal) Scaled() *big.Int {
	if d.inf {
		return new(big.Int).Set(maxWire)
	}
	return new(big.Int).Set(d.mantissa())
}

// Wire converts the value to the contracts' uint256 representation.
func (d Decimal) Wire() (*uint256.Int, error) {
	if d.inf {
		value, _ := uint256.FromBig(maxWire)
		return value, nil
	}
	if d.mantissa().Sign() < 0 {
		return nil, coreerrors.ErrOutOfRange
	}
	value, overflow := uint256.FromBig(d.mantissa())
	if overflow {
		return nil, coreerrors.ErrOutOfRange
	}
	return value, nil
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return !d.inf && d.mantissa().Sign() == 0 }

// IsInfinite reports whether d is the infinity sentinel.
func (d Decimal) IsInfinite() bool { return d.inf }

// IsNegative reports whether d is below zero.
func (d Decimal) IsNegative() bool { return !d.inf && d.mantissa().Sign() < 0 }

// Sign returns -1, 0 or +1.
func (d Decimal) Sign() int {
	if d.inf {
		return 1
	}
	return d.mantissa().Sign()
}

// NonZero returns d and true unless d is zero.
func (d Decimal) NonZero() (Decimal, bool) {
	if d.IsZero() {
		return Zero, false
	}
	return d, true
}

// Infinite returns d and true only when d is infinite.
func (d Decimal) Infinite() (Decimal, bool) {
	if !d.inf {
		return Zero, false
	}
	return d, true
}

// Finite returns d and true unless d is infinite.
func (d Decimal) Finite() (Decimal, bool) {
	if d.inf {
		return Zero, false
	}
	return d, true
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) Decimal {
	if d.inf || o.inf {
		return Infinity
	}
	return Decimal{v: new(big.Int).Add(d.mantissa(), o.mantissa())}
}

// Sub returns d - o. Subtracting from Infinity yields Infinity; subtracting
// Infinity from a finite value saturates at Zero.
func (d Decimal) Sub(o Decimal) Decimal {
	if d.inf {
		return Infinity
	}
	if o.inf {
		return Zero
	}
	return Decimal{v: new(big.Int).Sub(d.mantissa(), o.Scaled())}
}

// Mul returns d * o truncated toward zero at 18 decimals.
func (d Decimal) Mul(o Decimal) Decimal {
	if d.inf || o.inf {
		if d.IsZero() || o.IsZero() {
			return Zero
		}
		return Infinity
	}
	product := new(big.Int).Mul(d.mantissa(), o.mantissa())
	return Decimal{v: product.Quo(product, one)}
}

// Div returns d / o truncated toward zero. Division by zero yields Infinity.
func (d Decimal) Div(o Decimal) Decimal {
	switch {
	case o.inf && d.inf:
		return One
	case o.inf:
		return Zero
	case d.inf:
		return Infinity
	case o.IsZero():
		return Infinity
	}
	numerator := new(big.Int).Mul(d.mantissa(), one)
	return Decimal{v: numerator.Quo(numerator, o.mantissa())}
}

// DivCeil is Div rounded away from zero.
func (d Decimal) DivCeil(o Decimal) Decimal {
	if d.inf || o.inf || o.IsZero() {
		return d.Div(o)
	}
	numerator := new(big.Int).Mul(d.mantissa(), one)
	quotient, remainder := new(big.Int).QuoRem(numerator, o.mantissa(), new(big.Int))
	if remainder.Sign() != 0 {
		if (numerator.Sign() < 0) == (o.mantissa().Sign() < 0) {
			quotient.Add(quotient, big.NewInt(1))
		} else {
			quotient.Sub(quotient, big.NewInt(1))
		}
	}
	return Decimal{v: quotient}
}

// MulDiv returns d * b / c with a full-precision intermediate and a single
// truncation, the way the contracts compute collateral * price / debt. A zero
// divisor yields Infinity.
func (d Decimal) MulDiv(b, c Decimal) Decimal {
	if c.IsZero() {
		return Infinity
	}
	if c.inf {
		if d.inf || b.inf {
			return One
		}
		return Zero
	}
	if d.inf || b.inf {
		if d.IsZero() || b.IsZero() {
			return Zero
		}
		return Infinity
	}
	product := new(big.Int).Mul(d.mantissa(), b.mantissa())
	return Decimal{v: product.Quo(product, c.mantissa())}
}

// Neg returns -d. Infinity is returned unchanged.
func (d Decimal) Neg() Decimal {
	if d.inf {
		return d
	}
	return Decimal{v: new(big.Int).Neg(d.mantissa())}
}

// Abs returns |d|.
func (d Decimal) Abs() Decimal {
	if d.inf {
		return d
	}
	return Decimal{v: new(big.Int).Abs(d.mantissa())}
}

// Cmp compares d and o, returning -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int {
	switch {
	case d.inf && o.inf:
		return 0
	case d.inf:
		return 1
	case o.inf:
		return -1
	}
	return d.mantissa().Cmp(o.mantissa())
}

func (d Decimal) Eq(o Decimal) bool  { return d.Cmp(o) == 0 }
func (d Decimal) Lt(o Decimal) bool  { return d.Cmp(o) < 0 }
func (d Decimal) Lte(o Decimal) bool { return d.Cmp(o) <= 0 }
func (d Decimal) Gt(o Decimal) bool  { return d.Cmp(o) > 0 }
func (d Decimal) Gte(o Decimal) bool { return d.Cmp(o) >= 0 }

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.Gte(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Lte(b) {
		return a
	}
	return b
}
