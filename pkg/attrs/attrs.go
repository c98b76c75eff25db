// Package attrs reads values back out of slog-style key/value lists.
package attrs

// Extract returns the value paired with key in a [k1, v1, k2, v2, ...] list
// when it has type T. The first occurrence of key wins.
func Extract[T any](kv []any, key string) (T, bool) {
	var zero T
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			v, ok := kv[i+1].(T)
			return v, ok
		}
	}
	return zero, false
}

// ExtractString is Extract for strings, returning "" when key is absent.
func ExtractString(kv []any, key string) string {
	v, _ := Extract[string](kv, key)
	return v
}
