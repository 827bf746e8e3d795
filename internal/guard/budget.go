package guard

// Trim walks texts in order and admits a prefix while the running item count
// stays under maxItems and the running character total (counting the text
// about to be added) stays within maxChars. The first text that would break
// either cap ends the round: it and everything after it are excluded, left
// uncached for a future request. Returns the admitted prefix length and the
// characters it uses.
func Trim(texts []string, maxItems, maxChars int) (n, charsUsed int) {
	for _, t := range texts {
		if n >= maxItems {
			break
		}
		if charsUsed+len(t) > maxChars {
			break
		}
		charsUsed += len(t)
		n++
	}
	return n, charsUsed
}
