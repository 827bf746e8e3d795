package parse

import "strings"

// dedupeKey collapses case and whitespace runs so that surface variants of
// the same name compare byte-equal. Not fuzzy: "Milk" and "Milk 2" differ.
func dedupeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}

// Dedupe collapses exact-match duplicates, keeping the first occurrence
// verbatim and preserving the order of first occurrences.
func Dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		k := dedupeKey(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}
