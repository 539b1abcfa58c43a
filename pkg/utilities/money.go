package utilities

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Cents is an amount of money in the smallest currency unit. It is stored as
// an integer and rendered in JSON as decimal currency units (5000 -> 50).
type Cents int64

// CentsFromUnits converts a decimal amount such as 12.34 into cents.
func CentsFromUnits(units float64) Cents {
	return Cents(math.Round(units * 100))
}

func (c Cents) Units() float64 { return float64(c) / 100 }

func (c Cents) String() string { return fmt.Sprintf("%.2f", c.Units()) }

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(c.Units(), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or a numeric string in currency units.
func (c *Cents) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err2 := json.Unmarshal(b, &s); err2 != nil {
			return fmt.Errorf("amount: %w", err)
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
	}
	*c = CentsFromUnits(f)
	return nil
}
