package system

import "strings"

// MergeEnv returns base with each KEY=VALUE in overrides applied. Later
// entries win. Order follows first appearance.
func MergeEnv(base, overrides []string) []string {
	index := make(map[string]int, len(base)+len(overrides))
	merged := make([]string, 0, len(base)+len(overrides))

	for _, list := range [][]string{base, overrides} {
		for _, kv := range list {
			key, _, _ := strings.Cut(kv, "=")
			if i, ok := index[key]; ok {
				merged[i] = kv
				continue
			}
			index[key] = len(merged)
			merged = append(merged, kv)
		}
	}
	return merged
}
