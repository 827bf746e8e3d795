// Package canon classifies pantry candidate texts into canonical results.
//
// It owns the versioned cache key, the deterministic prefilter, the LLM batch
// classifier with strict response validation, and the canonicalization
// service that ties cache, guards, classifier, and result merging together.
package canon

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PipelineVersion prefixes every cache key. Bumping it on any rule or prompt
// change invalidates prior cache rows without a manual purge.
const PipelineVersion = "v3"

// stripMarks decomposes accented runes and removes their combining marks.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, collapses every non-alphanumeric
// run to a single space, and trims. Texts equal under this normalization
// always share a cache key, whatever their surface casing or spacing.
func Normalize(text string) string {
	if folded, _, err := transform.String(stripMarks, text); err == nil {
		text = folded
	}
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	space := true // suppress leading separators
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Key returns the versioned cache key for a candidate text.
func Key(text string) string {
	return PipelineVersion + ":" + Normalize(text)
}
