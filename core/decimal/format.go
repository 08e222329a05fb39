package decimal

import (
	"encoding/json"
	"math/big"
	"strings"

	shopspring "github.com/shopspring/decimal"
)

const infinitySymbol = "∞"

var magnitudes = []string{"", "K", "M", "B", "T"}

func (d Decimal) shopspring() shopspring.Decimal {
	return shopspring.NewFromBigInt(d.mantissa(), -Precision)
}

// String renders d with trailing zeros removed.
func (d Decimal) String() string {
	if d.inf {
		return infinitySymbol
	}
	return d.shopspring().String()
}

// StringFixed renders d with exactly places fractional digits, rounding half
// away from zero.
func (d Decimal) StringFixed(places int32) string {
	if d.inf {
		return infinitySymbol
	}
	return d.shopspring().StringFixed(places)
}

// Prettify renders d with places fractional digits and thousands separators.
func (d Decimal) Prettify(places int32) string {
	if d.inf {
		return infinitySymbol
	}
	return groupThousands(d.StringFixed(places))
}

// Shorten renders d with at most three significant integer digits and a
// magnitude suffix, e.g. 1234567 -> "1.23M".
func (d Decimal) Shorten() string {
	if d.inf {
		return infinitySymbol
	}
	integer := new(big.Int).Quo(new(big.Int).Abs(d.mantissa()), one)
	length := len(integer.Text(10))
	magnitude := (length - 1) / 3
	if magnitude > len(magnitudes)-1 {
		magnitude = len(magnitudes) - 1
	}
	places := 3 - (length - magnitude*3)
	if places < 0 {
		places = 0
	}
	normalized := d.shopspring().Shift(int32(-3 * magnitude))
	return groupThousands(normalized.StringFixed(int32(places))) + magnitudes[magnitude]
}

func groupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	integer, fraction, hasFraction := strings.Cut(fixed, ".")
	var b strings.Builder
	b.WriteString(sign)
	for i, r := range integer {
		if i > 0 && (len(integer)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFraction {
		b.WriteByte('.')
		b.WriteString(fraction)
	}
	return b.String()
}

// MarshalText encodes d as its String form.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the String form.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes d as a JSON string so no precision is lost to floats.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var number json.Number
		if numErr := json.Unmarshal(data, &number); numErr != nil {
			return err
		}
		text = number.String()
	}
	return d.UnmarshalText([]byte(text))
}
