package news

import (
	"sort"
	"strings"
)

// Defaults for Merge.
const (
	DefaultMaxItems    = 16
	DefaultDedupPrefix = 50
)

// DedupKey is the first prefix runes of the lowercased, trimmed title.
func DedupKey(title string, prefix int) string {
	r := []rune(strings.ToLower(strings.TrimSpace(title)))
	if prefix > 0 && len(r) > prefix {
		r = r[:prefix]
	}
	return string(r)
}

// Merge concatenates batches in priority order, drops later items whose
// dedup key was already seen, orders the rest newest first and keeps at
// most limit. Items with equal timestamps keep their priority order.
func Merge(batches [][]Item, prefix, limit int) []Item {
	if prefix <= 0 {
		prefix = DefaultDedupPrefix
	}
	if limit <= 0 {
		limit = DefaultMaxItems
	}
	seen := map[string]struct{}{}
	out := []Item{}
	for _, batch := range batches {
		for _, it := range batch {
			key := DedupKey(it.Title, prefix)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
