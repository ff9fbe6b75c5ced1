package parse

import (
	"sort"
	"strings"
)

// SplitList splits a comma-separated query value into trimmed, non-empty items.
// Order and duplicates are preserved.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeAmenities turns a tag list into a set: surrounding whitespace is
// trimmed, empty tags dropped, duplicates collapsed and the result sorted.
// Tags are compared case-sensitively and unknown tags are kept as-is.
func NormalizeAmenities(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
