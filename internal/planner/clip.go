package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Clip shortens s to at most limit runes, marking the cut with "…".
func Clip(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// SafeValue coerces an arbitrary decoded JSON value to a primitive
// suitable for embedding in a prompt: strings are clipped, numbers and
// booleans pass through, and anything nested is re-encoded as clipped
// JSON text.
func SafeValue(v any, limit int) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return Clip(x, limit)
	case bool, float64, int, int64:
		return x
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Clip(fmt.Sprint(x), limit)
		}
		return Clip(string(b), limit)
	}
}

// SafeProfile returns a copy of p with every value passed through
// [SafeValue] and at most maxKeys keys, chosen in sorted order. A nil
// profile yields nil.
func SafeProfile(p Profile, maxKeys, limit int) map[string]any {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[Clip(k, limit)] = SafeValue(p[k], limit)
	}
	return out
}
