package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount with a fixed scale of two decimal
// places. All arithmetic and comparison is exact; amounts never pass
// through floating point. The service is single-currency, so Money
// carries no currency code.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates a Money value, rounding to two decimal places.
func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount.Round(2)}
}

// NewMoneyFromString parses a decimal string such as "123.45".
func NewMoneyFromString(s string) (Money, error) {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if dec.Exponent() < -2 {
		return Money{}, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	return Money{amount: dec.Round(2)}, nil
}

// NewMoneyFromCents creates Money from an integer number of cents.
func NewMoneyFromCents(cents int64) Money {
	return Money{amount: decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))}
}

// MustNewMoneyFromString parses a decimal string and panics on error.
// Intended for constants and tests.
func MustNewMoneyFromString(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the underlying decimal.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String returns the amount formatted with two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equal reports whether two amounts are equal.
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// Cmp returns -1, 0, or 1 comparing m against other.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.Cmp(other.amount) < 0
}

// GreaterThanOrEqual reports whether m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.amount.Cmp(other.amount) >= 0
}

// Add returns the exact sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns the exact difference m - other.
func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// ToCents converts to an integer number of cents.
func (m Money) ToCents() int64 {
	return m.amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// MarshalJSON encodes the amount as a JSON string with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount.StringFixed(2))
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare numbers arrive from clients that serialize decimals natively.
		var dec decimal.Decimal
		if err := json.Unmarshal(data, &dec); err != nil {
			return fmt.Errorf("invalid money value: %s", data)
		}
		if dec.Exponent() < -2 {
			return fmt.Errorf("amount %s has more than two decimal places", dec)
		}
		*m = NewMoney(dec)
		return nil
	}

	money, err := NewMoneyFromString(s)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

// Scan implements sql.Scanner for NUMERIC(18,2) columns.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case int64:
		*m = Money{amount: decimal.NewFromInt(v)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Value implements driver.Valuer; amounts are stored as NUMERIC text.
func (m Money) Value() (driver.Value, error) {
	return m.amount.StringFixed(2), nil
}

func (m *Money) scanString(s string) error {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format %q: %w", s, err)
	}
	m.amount = dec.Round(2)
	return nil
}
