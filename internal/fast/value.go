package fast

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// value is the typed form of a field. Only the members matching the
// field's type are meaningful.
type value struct {
	u uint64
	i int64
	s string
	m int64
	e int32
}

// Decimal exponents are limited to the range FAST allows.
const (
	minExponent = -63
	maxExponent = 63
)

func parseValue(t FieldType, s string) (value, error) {
	switch t {
	case TypeUInt:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return value{}, ErrInvalidValue
		}
		return value{u: u}, nil
	case TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value{}, ErrInvalidValue
		}
		return value{i: i}, nil
	case TypeDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return value{}, ErrInvalidValue
		}
		return decimalValue(d)
	case TypeASCII:
		for i := 0; i < len(s); i++ {
			if s[i] == 0 || s[i] >= 0x80 {
				return value{}, ErrInvalidValue
			}
		}
		return value{s: s}, nil
	default:
		return value{s: s}, nil
	}
}

// decimalValue splits d into mantissa and exponent as written, so the
// value's scale survives a round trip ("100.50" stays 10050e-2).
func decimalValue(d decimal.Decimal) (value, error) {
	coef := d.Coefficient()
	if !coef.IsInt64() {
		return value{}, ErrOverflow
	}
	e := d.Exponent()
	if e < minExponent || e > maxExponent {
		return value{}, ErrOverflow
	}
	return value{m: coef.Int64(), e: e}, nil
}

func formatValue(t FieldType, v value) string {
	switch t {
	case TypeUInt:
		return strconv.FormatUint(v.u, 10)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeDecimal:
		d := decimal.New(v.m, v.e)
		if v.e < 0 {
			return d.StringFixed(-v.e)
		}
		return d.String()
	default:
		return v.s
	}
}

func equalValue(t FieldType, a, b value) bool {
	switch t {
	case TypeUInt:
		return a.u == b.u
	case TypeInt:
		return a.i == b.i
	case TypeDecimal:
		return a.m == b.m && a.e == b.e
	default:
		return a.s == b.s
	}
}

// incremented returns v+1 for integer types.
func incremented(t FieldType, v value) (value, error) {
	switch t {
	case TypeUInt:
		if v.u == math.MaxUint64 {
			return value{}, ErrOverflow
		}
		return value{u: v.u + 1}, nil
	default:
		if v.i == math.MaxInt64 {
			return value{}, ErrOverflow
		}
		return value{i: v.i + 1}, nil
	}
}
