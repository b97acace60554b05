package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount represents a token amount with fixed precision
type Amount struct {
	value decimal.Decimal
}

// Zero is the zero amount
var Zero = Amount{value: decimal.Zero}

// NewAmount creates a new Amount from a string
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount: %w", err)
	}
	return Amount{value: d}, nil
}

// MustAmount creates an Amount from a string, panicking on invalid input.
// For constants and tests only.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmountFromInt creates an Amount from int64
func NewAmountFromInt(i int64) Amount {
	return Amount{value: decimal.NewFromInt(i)}
}

// Add adds two amounts
func (a Amount) Add(other Amount) Amount {
	return Amount{value: a.value.Add(other.value)}
}

// Sub subtracts two amounts
func (a Amount) Sub(other Amount) Amount {
	return Amount{value: a.value.Sub(other.value)}
}

// MulInt multiplies by an integer factor
func (a Amount) MulInt(i int64) Amount {
	return Amount{value: a.value.Mul(decimal.NewFromInt(i))}
}

// DivInt divides by an integer divisor, truncated to 18 places
func (a Amount) DivInt(i int64) Amount {
	return Amount{value: a.value.Div(decimal.NewFromInt(i)).Truncate(18)}
}

// MulBps multiplies by a basis-point fraction, truncated to 18 places.
// Truncation keeps fee + remainder <= original.
func (a Amount) MulBps(bps int64) Amount {
	f := a.value.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	return Amount{value: f.Truncate(18)}
}

// Cmp compares two amounts
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

// Equal reports whether two amounts are numerically equal
func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

// LessThan reports whether a < other
func (a Amount) LessThan(other Amount) bool {
	return a.value.LessThan(other.value)
}

// IsZero checks if the amount is zero
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// IsNegative checks if the amount is negative
func (a Amount) IsNegative() bool {
	return a.value.IsNegative()
}

// IsPositive checks if the amount is strictly positive
func (a Amount) IsPositive() bool {
	return a.value.IsPositive()
}

// String returns the decimal string representation
func (a Amount) String() string {
	return a.value.String()
}

// Decimal returns the underlying decimal value
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// MarshalJSON encodes the amount as a JSON string
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value.String() + `"`), nil
}

// UnmarshalJSON decodes an amount from a JSON string or number
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	a.value = d
	return nil
}
