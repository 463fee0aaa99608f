// Package strings provides small string-slice set utilities used by the
// notification pipeline (recipient sets, mention sets, subscriber sets).
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice, trimming
// whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
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

// Difference returns the elements of a that are not in b, preserving the
// order of a. Duplicates in a are collapsed.
//
// Example:
//
//	Difference([]string{"u1", "u2", "u2"}, []string{"u1"})
//	// Returns: []string{"u2"}
func Difference(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}

	exclude := make(map[string]struct{}, len(b))
	for _, v := range b {
		exclude[v] = struct{}{}
	}

	seen := make(map[string]struct{}, len(a))
	var result []string
	for _, v := range a {
		if _, ok := exclude[v]; ok {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}

// Union merges slices into one deduplicated slice, preserving first-seen
// order across the inputs.
func Union(slices ...[]string) []string {
	var total int
	for _, s := range slices {
		total += len(s)
	}
	if total == 0 {
		return nil
	}

	seen := make(map[string]struct{}, total)
	result := make([]string, 0, total)
	for _, s := range slices {
		for _, v := range s {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}
