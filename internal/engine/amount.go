package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// amountScale is the number of fractional decimal digits carried by Amount.
const amountScale = 4

// Amount is a fixed-point monetary value with exactly four fractional
// digits, stored as a scaled int64 (1.0000 == 10000). No floats: equality
// on Amount is exact, which the duplicate detection relies on.
type Amount int64

// ParseAmount parses a non-negative or negative decimal string carrying at
// most four fractional digits of precision.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	scaled := d.Shift(amountScale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %q exceeds %d decimal places", ErrInvalidAmount, s, amountScale)
	}
	units := scaled.BigInt()
	if !units.IsInt64() {
		return 0, ErrAmountOverflow
	}
	return Amount(units.Int64()), nil
}

// Add returns a+b, failing on int64 overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing on int64 overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, ErrAmountOverflow
	}
	return diff, nil
}

func (a Amount) Neg() Amount      { return -a }
func (a Amount) IsNegative() bool { return a < 0 }
func (a Amount) IsZero() bool     { return a == 0 }

// String renders the amount with exactly four decimal places.
func (a Amount) String() string {
	return decimal.New(int64(a), -amountScale).StringFixed(amountScale)
}

// MarshalJSON encodes the amount as its fixed-point decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string with up to four fractional digits.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
