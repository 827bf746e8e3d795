package parse

import (
	"strings"

	"github.com/google/uuid"
)

// CandidateItem is one pantry candidate produced by a parse pass. Items are
// request-local: IDs are minted per pass and never persisted.
type CandidateItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourceLine string `json:"sourceLine"`
	Selected   bool   `json:"selected"`
}

// Receipt parses raw OCR text into an ordered, deduplicated candidate list.
// Candidates default to selected; the consumer may deselect before
// classification.
func Receipt(raw string) []CandidateItem {
	kept, _ := ScanLines(SplitLines(raw))
	return candidates(kept)
}

// Explain runs the same scan as Receipt but returns the full per-line
// decision trail alongside the surviving candidates.
func Explain(raw string) ([]CandidateItem, []LineDecision) {
	kept, trail := ScanLines(SplitLines(raw))
	return candidates(kept), trail
}

// candidates cleans and dedupes kept lines into the final candidate list.
func candidates(kept []string) []CandidateItem {
	seen := make(map[string]struct{}, len(kept))
	items := make([]CandidateItem, 0, len(kept))
	for _, line := range kept {
		name := CleanName(line)
		if name == "" {
			continue
		}
		k := dedupeKey(name)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		items = append(items, CandidateItem{
			ID:         uuid.NewString(),
			Name:       name,
			SourceLine: line,
			Selected:   true,
		})
	}
	return items
}

// Names returns just the candidate names, in order.
func Names(items []CandidateItem) []string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it.Name); s != "" {
			names = append(names, s)
		}
	}
	return names
}
