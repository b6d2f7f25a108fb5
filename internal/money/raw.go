package money

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RawAmount is a request field that accepts a JSON number, a JSON string or
// null, as well as plain form values.
type RawAmount string

// UnmarshalJSON keeps the literal text of numbers and strings.
func (r *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawAmount(s)
		return nil
	}
	*r = RawAmount(data)
	return nil
}

// IsSet reports whether the field carried any text.
func (r RawAmount) IsSet() bool {
	return r != ""
}

// Decimal returns the normalized amount.
func (r RawAmount) Decimal() decimal.Decimal {
	return NormalizeAmount(string(r))
}
