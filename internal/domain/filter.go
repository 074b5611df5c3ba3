package domain

import (
	"encoding/json"
	"fmt"
)

// Filter constrains search candidates by one metadata key. A filter is either
// an equality match or a numeric range (at least one bound set). Filters are
// AND-combined; a key absent from a row's metadata excludes that row.
type Filter struct {
	Key    string
	Equals any
	Min    *float64
	Max    *float64
}

// Eq builds an equality filter.
func Eq(key string, value any) Filter {
	return Filter{Key: key, Equals: value}
}

// Between builds a numeric range filter. Nil bounds are open.
func Between(key string, min, max *float64) Filter {
	return Filter{Key: key, Min: min, Max: max}
}

// IsRange reports whether the filter is a numeric range.
func (f Filter) IsRange() bool { return f.Min != nil || f.Max != nil }

// Validate rejects malformed filters before they reach a store.
func (f Filter) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("filter key is required: %w", ErrConfiguration)
	}
	if f.IsRange() && f.Equals != nil {
		return fmt.Errorf("filter %q mixes equality and range: %w", f.Key, ErrConfiguration)
	}
	if !f.IsRange() && f.Equals == nil {
		return fmt.Errorf("filter %q has no condition: %w", f.Key, ErrConfiguration)
	}
	return nil
}

// Matches evaluates the filter against a metadata map.
func (f Filter) Matches(meta Metadata) bool {
	v, ok := meta[f.Key]
	if !ok {
		return false
	}
	if f.IsRange() {
		n, ok := toFloat(v)
		if !ok {
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
		return true
	}
	return equalValues(v, f.Equals)
}

// equalValues compares metadata values across the int/float64 split that
// JSON round-tripping introduces.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
