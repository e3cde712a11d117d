package gateway

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Typed accessors for Row values. The gateway exchanges JSON-shaped data,
// so values arrive as strings and float64s; these helpers normalize them so
// the ledger boundary can build domain types without repeating conversions.

// String returns the value under key as a string, or "" when absent.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Int returns the value under key as an int, or 0 when absent or invalid.
func (r Row) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float returns the value under key as a float64 and whether it was present.
func (r Row) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Decimal returns the value under key as a decimal, or zero when absent or
// unparsable.
func (r Row) Decimal(key string) decimal.Decimal {
	switch v := r[key].(type) {
	case decimal.Decimal:
		return v
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}

// Time returns the value under key parsed as RFC3339 or a plain date, or
// the zero time when absent or unparsable.
func (r Row) Time(key string) time.Time {
	s := r.String(key)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
