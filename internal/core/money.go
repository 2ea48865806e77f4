// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer cents so sums never drift. On the wire they
// are plain JSON numbers; shopspring/decimal does the conversion and rounding.
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCents keeps amounts well inside int64 after summing a few million rows.
const maxCents = int64(1) << 53

// Money is an amount in cents.
type Money struct {
	Cents int64
}

// NewMoney rounds d half away from zero to two decimal places.
func NewMoney(d decimal.Decimal) (Money, error) {
	rounded := d.Round(2)
	if rounded.Abs().GreaterThan(decimal.NewFromInt(maxCents).Shift(-2)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: rounded.Shift(2).IntPart()}, nil
}

// ParseMoney parses a decimal string such as "12.5" or "12,50".
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Money{}, ErrMissingAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return NewMoney(d)
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount as float64 for display and percentages.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// String formats the amount without trailing zeros ("250", "12.5").
func (m Money) String() string {
	return m.Decimal().String()
}

// MarshalJSON writes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts JSON numbers only; quoted strings are rejected.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '"' || b[0] == '{' || b[0] == '[' || b[0] == 't' || b[0] == 'f' || isNull(b) {
		return ErrInvalidAmount
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return ErrInvalidAmount
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Percent returns part/whole*100, or 0 when whole is zero.
func Percent(part, whole Money) float64 {
	if whole.Cents == 0 {
		return 0
	}
	return part.Decimal().Div(whole.Decimal()).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
