package types

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Amount is an integer token quantity. Balances and prices can reach
// 128-bit magnitudes, so amounts are backed by big.Int and persisted as
// decimal strings rather than a native integer column.
type Amount struct {
	v big.Int
}

// NewAmount returns an Amount holding the given value.
func NewAmount(v int64) Amount {
	var a Amount
	a.v.SetInt64(v)
	return a
}

// ParseAmount parses a base-10 integer string into an Amount.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.v.SetString(strings.TrimSpace(s), 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

func (a Amount) String() string {
	return a.v.String()
}

// Add returns a + b without mutating either operand.
func (a Amount) Add(b Amount) Amount {
	var r Amount
	r.v.Add(&a.v, &b.v)
	return r
}

// Sub returns a - b without mutating either operand.
func (a Amount) Sub(b Amount) Amount {
	var r Amount
	r.v.Sub(&a.v, &b.v)
	return r
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Sign returns -1, 0 or 1 depending on the sign of a.
func (a Amount) Sign() int {
	return a.v.Sign()
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.v.Sign() == 0
}

// MulDiv returns floor(a * mul / div). The intermediate product is kept at
// full precision, so a*mul never overflows. Division truncates toward zero;
// all inputs here are non-negative, so this is exact floor semantics.
func (a Amount) MulDiv(mul, div Amount) Amount {
	var r Amount
	r.v.Mul(&a.v, &mul.v)
	r.v.Quo(&r.v, &div.v)
	return r
}

// Value implements driver.Valuer, storing the amount as its decimal string.
func (a Amount) Value() (driver.Value, error) {
	return a.v.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.v.SetInt64(0)
		return nil
	case int64:
		a.v.SetInt64(v)
		return nil
	case string:
		if _, ok := a.v.SetString(v, 10); !ok {
			return fmt.Errorf("invalid stored amount %q", v)
		}
		return nil
	case []byte:
		if _, ok := a.v.SetString(string(v), 10); !ok {
			return fmt.Errorf("invalid stored amount %q", v)
		}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

// MarshalJSON renders the amount as a JSON string so that values beyond
// float64 precision survive the API boundary intact.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		a.v.SetInt64(0)
		return nil
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	return nil
}
