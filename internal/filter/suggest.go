package filter

import "sort"

// TagSuggestions lists the distinct "key:value" tags found at field across
// items, sorted.
func TagSuggestions(items []Item, field string) []string {
	seen := make(map[string]bool)
	for _, item := range items {
		pairs, ok := tagPairs(item[field])
		if !ok {
			continue
		}
		for _, p := range pairs {
			seen[p] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Values lists the distinct non-empty text values found at field, sorted.
// Useful as a suggestion source for Input and Select filters.
func Values(items []Item, field string) []string {
	seen := make(map[string]bool)
	for _, item := range items {
		if s, _ := textOf(item[field]); s != "" {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
