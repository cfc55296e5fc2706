// Package strings holds helpers for identifier lists.
package strings

import (
	"sort"
	"strings"
)

// DedupeAndTrim removes duplicates and blank entries, trimming each element.
// First-seen order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SortedSet dedupes and trims values and returns them sorted. The result is never nil.
func SortedSet(values ...[]string) []string {
	var all []string
	for _, v := range values {
		all = append(all, v...)
	}
	out := DedupeAndTrim(all)
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out
}

// Without returns values minus every element equal to drop.
func Without(values []string, drop string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
