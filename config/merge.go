package config

import "strings"

// Merge folds src into dst. See mergeMaps.
func Merge(dst, src map[string]any) { mergeMaps(dst, src) }

// mergeMaps folds src into dst. Keys are compared case-insensitively and
// stored lower-cased, so "readTimeout" from a file and "readtimeout" from
// the environment land on the same field. Nested maps are merged
// recursively; any other value in src replaces the one in dst.
func mergeMaps(dst, src map[string]any) {
	for k, sv := range src {
		k = strings.ToLower(k)
		sub, isMap := sv.(map[string]any)
		if !isMap {
			dst[k] = sv
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			mergeMaps(existing, sub)
			continue
		}
		cp := make(map[string]any, len(sub))
		mergeMaps(cp, sub)
		dst[k] = cp
	}
}
