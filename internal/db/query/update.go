package query

import "github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"

// ApplyUpdate produces the modified document and reports whether anything
// actually changed. Matched-but-unchanged updates count as zero modified,
// mirroring the semantics callers rely on for addToSet/pull gating.
func ApplyUpdate(doc interfaces.Document, update interfaces.Update) (interfaces.Document, bool) {
	out := make(interfaces.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	changed := false

	for field, value := range update.Set {
		if !Equal(out[field], value) {
			out[field] = value
			changed = true
		}
	}

	for field, value := range update.AddToSet {
		arr := asSlice(out[field])
		found := false
		for _, existing := range arr {
			if Equal(existing, value) {
				found = true
				break
			}
		}
		if !found {
			out[field] = append(arr, value)
			changed = true
		}
	}

	for field, value := range update.Pull {
		arr := asSlice(out[field])
		kept := arr[:0]
		for _, existing := range arr {
			if Equal(existing, value) {
				changed = true
				continue
			}
			kept = append(kept, existing)
		}
		out[field] = kept
	}

	return out, changed
}

func asSlice(v interface{}) []interface{} {
	switch arr := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]interface{}, len(arr))
		copy(out, arr)
		return out
	case []string:
		out := make([]interface{}, 0, len(arr))
		for _, s := range arr {
			out = append(out, s)
		}
		return out
	case []int64:
		out := make([]interface{}, 0, len(arr))
		for _, n := range arr {
			out = append(out, n)
		}
		return out
	default:
		return []interface{}{v}
	}
}
