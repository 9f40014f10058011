package query

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
)

// Matches reports whether a document satisfies every condition of the
// filter. Numeric values are compared across Go integer and float types so
// that an int64 primary key matches a filter built from an int, or a value
// that round-tripped through JSON.
func Matches(doc interfaces.Document, filter interfaces.Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

// Equal compares two document values, coercing numbers to float64 and
// timestamps to time.Time where possible. Slices compare element-wise,
// so []int64{1} equals the []interface{}{float64(1)} a JSON round trip
// produces.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	if at, aok := asTime(a); aok {
		bt, bok := asTime(b)
		return bok && at.Equal(bt)
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Slice || bv.Kind() == reflect.Slice {
		if av.Kind() != reflect.Slice || bv.Kind() != reflect.Slice || av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !Equal(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	if av.Kind() == reflect.Map || bv.Kind() == reflect.Map {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// Apply filters, sorts, and limits a snapshot of documents in place of a
// real query planner. The input slice is not modified.
func Apply(docs []interfaces.Document, filter interfaces.Filter, opts *interfaces.FindOptions) []interfaces.Document {
	matched := make([]interfaces.Document, 0, len(docs))
	for _, doc := range docs {
		if Matches(doc, filter) {
			matched = append(matched, doc)
		}
	}

	if opts != nil && len(opts.Sort) > 0 {
		Sort(matched, opts.Sort)
	}
	if opts != nil && opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched
}

// Sort orders documents by the given fields, most significant first.
func Sort(docs []interfaces.Document, fields []interfaces.SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := Compare(docs[i][f.Field], docs[j][f.Field])
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Compare orders two document values: -1 when a < b, 0 when equal, 1 when
// a > b. Mixed or unordered types compare as equal.
func Compare(a, b interface{}) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}
	return 0
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
