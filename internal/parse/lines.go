// Package parse turns raw OCR text from a scanned receipt into an ordered,
// deduplicated list of pantry candidate items.
//
// The pipeline is strictly sequential: line splitting, noise filtering with a
// totals-section hard stop, name cleanup, and exact-match deduplication. Each
// stage consumes the previous stage's output, so stage order is load-bearing.
package parse

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reInnerSpace = regexp.MustCompile(`[ \t]{2,}`)
)

// SplitLines normalizes raw OCR output into trimmed lines.
// CRLF variants collapse to \n, runs of spaces/tabs collapse to one space,
// and blank lines are dropped. Line order is preserved.
func SplitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = reCRLF.ReplaceAllString(raw, "\n")

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(reInnerSpace.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
