package query

import "time"

// Document field accessors. Backends hand values back in whatever type
// survived their encoding (int64 from the memory store, float64 after a
// JSON round trip, RFC3339 strings for timestamps), so readers coerce
// instead of type-asserting.

// Int64 extracts an integer field, defaulting to 0.
func Int64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// String extracts a string field, defaulting to "".
func String(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Int64Slice extracts an integer array field.
func Int64Slice(v interface{}) []int64 {
	switch arr := v.(type) {
	case []int64:
		out := make([]int64, len(arr))
		copy(out, arr)
		return out
	case []interface{}:
		out := make([]int64, 0, len(arr))
		for _, item := range arr {
			out = append(out, Int64(item))
		}
		return out
	default:
		return nil
	}
}

// StringSlice extracts a string array field.
func StringSlice(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		out := make([]string, len(arr))
		copy(out, arr)
		return out
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			out = append(out, String(item))
		}
		return out
	default:
		return nil
	}
}

// Time extracts a timestamp field. Values without an explicit zone are
// normalized to UTC; unparseable values return the zero time.
func Time(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.Location() == nil {
			return t.UTC()
		}
		return t
	case string:
		// Zone-less layouts parse as UTC, which is exactly the required
		// normalization for legacy documents missing an offset.
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
