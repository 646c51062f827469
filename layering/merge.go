// Package layering overlays flat option maps ordered from strongest to
// weakest.
package layering

// Merge composes layers ordered from strongest to weakest. A key takes the
// value of the strongest layer that sets it; nested maps are not merged.
// origins lists, per key, the indexes of every layer that set the key,
// strongest first.
func Merge(layers ...map[string]any) (merged map[string]any, origins map[string][]int) {
	merged = make(map[string]any)
	origins = make(map[string][]int)
	for i := len(layers) - 1; i >= 0; i-- {
		for key, value := range layers[i] {
			merged[key] = value
			origins[key] = append([]int{i}, origins[key]...)
		}
	}
	return merged, origins
}

// Clone returns a shallow copy of values, or nil when values is nil.
func Clone(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
