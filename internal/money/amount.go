// Package money parses and normalizes monetary amounts.
//
// Amounts reach the backend from spreadsheets and forms with currency
// symbols, thousands separators or placeholder dashes. Everything here
// degrades to zero instead of failing so that aggregation never sees an
// invalid number.
package money

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimal digits stored for amounts.
const DefaultPrecision int32 = 2

var (
	// MaxAbs matches a numeric(15,2) column.
	MaxAbs = decimal.RequireFromString("9999999999999.99")

	// MaxPercentage matches a numeric(5,2) column.
	MaxPercentage = decimal.RequireFromString("999.99")

	hundred = decimal.NewFromInt(100)
)

// ParseAmount converts a loosely formatted value into a decimal.
// Empty values, "-", "—", "n/a" and anything unparseable become zero.
func ParseAmount(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(v)
	case float32:
		return ParseAmount(float64(v))
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	case json.Number:
		return parseAmountString(string(v))
	case RawAmount:
		return parseAmountString(string(v))
	case string:
		return parseAmountString(v)
	case *string:
		if v == nil {
			return decimal.Zero
		}
		return parseAmountString(*v)
	default:
		return decimal.Zero
	}
}

func parseAmountString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "—", "n/a":
		return decimal.Zero
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NormalizeAmount clamps and rounds value with the default bounds.
func NormalizeAmount(value any) decimal.Decimal {
	return NormalizeAmountWith(value, MaxAbs, DefaultPrecision)
}

// NormalizeAmountWith clamps value to [-maxAbs, maxAbs] and rounds it to
// precision digits, half away from zero.
func NormalizeAmountWith(value any, maxAbs decimal.Decimal, precision int32) decimal.Decimal {
	d := ParseAmount(value)
	maxAbs = maxAbs.Abs()

	if d.GreaterThan(maxAbs) {
		d = maxAbs
	} else if d.LessThan(maxAbs.Neg()) {
		d = maxAbs.Neg()
	}

	d = d.Round(precision)
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}

// Sum adds up the amounts selected from items. The total is not normalized.
func Sum[T any](items []T, amount func(T) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(amount(item))
	}
	return total
}

// Percentage returns part/whole*100 clamped to [0, 999.99] with two
// decimals. A non-positive whole yields zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	p := part.Div(whole).Mul(hundred)
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(MaxPercentage) {
		p = MaxPercentage
	}
	p = p.Round(DefaultPrecision)
	if p.IsZero() {
		return decimal.Zero
	}
	return p
}
