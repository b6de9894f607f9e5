package process

import "strings"

// MergeEnv returns base with each KEY=VALUE layer applied in order. Later
// layers replace earlier values for the same key; first-seen order is kept.
func MergeEnv(base []string, layers ...[]string) []string {
	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base))

	set := func(kv string) {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return
		}
		if i, exists := index[key]; exists {
			out[i] = kv
			return
		}
		index[key] = len(out)
		out = append(out, kv)
	}

	for _, kv := range base {
		set(kv)
	}
	for _, layer := range layers {
		for _, kv := range layer {
			set(kv)
		}
	}
	return out
}
