package parse

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of the noise filter for a single line, including
// which rule decided so callers (and tests) can audit precedence.
type Verdict struct {
	Keep   bool
	Rule   string
	Reason string
}

// noiseRule is one entry in the ordered rule table. The first rule whose
// match fires decides the line; later rules never run.
type noiseRule struct {
	name   string
	keep   bool
	reason string
	match  func(line string) bool
}

// hardStopRE marks the start of the totals section. Scanning terminates at
// the first matching line; everything after it is discarded unseen.
var hardStopRE = regexp.MustCompile(`(?i)^(sub\s*-?\s*total|total|tax|balance\s+due|amount\s+due)\b`)

// IsHardStop reports whether line begins the subtotal/total/tax block.
func IsHardStop(line string) bool {
	return hardStopRE.MatchString(strings.TrimSpace(line))
}

var (
	wordTokenRE  = regexp.MustCompile(`[A-Za-z]{3,}`)
	longDigitsRE = regexp.MustCompile(`\d{8,}`)
	pureCodeRE   = regexp.MustCompile(`\b[A-Z0-9]{8,}\b`)

	addressRE = regexp.MustCompile(`(?i)(\b\d{1,6}\s+\S+\s+(st|ave|avenue|rd|road|blvd|dr|drive|ln|lane|hwy|pkwy|way)\b|\b[a-z]+,\s*[A-Z]{2}\s+\d{5}\b|\b\d{5}(-\d{4})?$)`)
	phoneRE   = regexp.MustCompile(`\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`)
	dateRE    = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	timeRE    = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\s*(AM|PM|am|pm)?\b`)
	// Hash-suffixed markers get their own branch: `#` is not a word
	// character, so a trailing \b after it never matches.
	storeMetaRE = regexp.MustCompile(`(?i)(\b(st|op|te|tr|reg|store|trans(action)?)\s*#|\b(reg|register|cashier|manager|terminal|lane|mgr|trans(action)?)\b)`)
	paymentRE   = regexp.MustCompile(`(?i)(\b(visa|mastercard|amex|discover|debit|credit|tender|change\s+due|cash\s+back|card|account|approved|auth|payment|eft|chip\s+read)\b|\bref\s*#)`)
	qtyOnlyRE   = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(x|@|ea|each|qty|ct)?\s*$`)
	weightRE    = regexp.MustCompile(`(?i)(\d+(\.\d+)?\s*(lb|lbs|kg|oz|g)\b.*@|@\s*\$?\d|\$?\d+(\.\d+)?\s*/\s*(lb|lbs|kg|oz|ea))`)
	dealMathRE  = regexp.MustCompile(`(?i)^\d+\s*(for|/)\s*\$?\d`)
	nonAlphaRE  = regexp.MustCompile(`^[^A-Za-z]+$`)
	digitRE     = regexp.MustCompile(`\d`)
	letterRE    = regexp.MustCompile(`[A-Za-z]`)
)

// promoPhrases are receipt-footer marketing strings that carry no item signal.
var promoPhrases = []string{
	"thank you", "thanks for shopping", "have a nice day", "come again",
	"save money", "low prices", "member price", "member savings",
	"you saved", "total savings", "rewards", "fuel points",
	"survey", "sweepstakes", "gift receipt", "coupon", "bogo",
	"price match", "satisfaction guaranteed", "return policy",
}

func isPromo(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range promoPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func countDigits(s string) int  { return len(digitRE.FindAllString(s, -1)) }
func countLetters(s string) int { return len(letterRE.FindAllString(s, -1)) }

// noiseRules is the ordered rule table. Precedence is by position: trivial
// rejects, pure-code rejects, structural rejects, the item+barcode keep
// override, digit dominance, then the default keep. The override sits ahead
// of digit dominance on purpose — an item name followed by a barcode must
// survive even though its digit count alone would reject it, while lines
// caught by any earlier rule are never rescued.
var noiseRules = []noiseRule{
	{
		name: "short", keep: false, reason: "empty or too short",
		match: func(line string) bool { return len(strings.TrimSpace(line)) <= 2 },
	},
	{
		name: "promo", keep: false, reason: "promotional phrase",
		match: isPromo,
	},
	{
		name: "pure-code", keep: false, reason: "code token without word-like text",
		match: func(line string) bool {
			return pureCodeRE.MatchString(strings.ToUpper(line)) && !wordTokenRE.MatchString(line)
		},
	},
	{
		name: "address", keep: false, reason: "street address or zip",
		match: addressRE.MatchString,
	},
	{
		name: "phone", keep: false, reason: "phone number",
		match: phoneRE.MatchString,
	},
	{
		name: "datetime", keep: false, reason: "date or time stamp",
		match: func(line string) bool { return dateRE.MatchString(line) || timeRE.MatchString(line) },
	},
	{
		name: "store-meta", keep: false, reason: "store metadata",
		match: storeMetaRE.MatchString,
	},
	{
		name: "payment", keep: false, reason: "payment or total keyword",
		match: paymentRE.MatchString,
	},
	{
		name: "quantity", keep: false, reason: "quantity-only line",
		match: qtyOnlyRE.MatchString,
	},
	{
		name: "weight-price", keep: false, reason: "weight or unit price math",
		match: weightRE.MatchString,
	},
	{
		name: "deal-math", keep: false, reason: "multi-buy deal math",
		match: dealMathRE.MatchString,
	},
	{
		name: "percent", keep: false, reason: "percent sign",
		match: func(line string) bool { return strings.Contains(line, "%") },
	},
	{
		name: "numeric", keep: false, reason: "no letters at all",
		match: nonAlphaRE.MatchString,
	},
	{
		name: "item-barcode", keep: true, reason: "word plus long digit run",
		match: func(line string) bool {
			return wordTokenRE.MatchString(line) && longDigitsRE.MatchString(line)
		},
	},
	{
		name: "digit-dominance", keep: false, reason: "mostly digits",
		match: func(line string) bool {
			return countDigits(line) >= 7 && countLetters(line) < 3
		},
	},
	{
		name: "default-words", keep: true, reason: "enough letters",
		match: func(line string) bool { return countLetters(line) >= 4 },
	},
}

// ClassifyLine runs the ordered rule table over one line. Lines no rule
// claims fall through to a drop. Hard-stop handling is scan-level and is not
// part of the per-line table; see ScanLines.
func ClassifyLine(line string) Verdict {
	for _, r := range noiseRules {
		if r.match(line) {
			return Verdict{Keep: r.keep, Rule: r.name, Reason: r.reason}
		}
	}
	return Verdict{Keep: false, Rule: "default-drop", Reason: "too little word signal"}
}

// LineDecision records what happened to one input line during a scan.
type LineDecision struct {
	Line    string
	Verdict Verdict
	// Stopped marks the hard-stop line itself. Lines after it never appear.
	Stopped bool
}

// ScanLines applies the noise filter to normalized lines in order, halting at
// the totals-section hard stop. It returns the kept raw lines and the full
// per-line decision trail (for --explain and tests).
func ScanLines(lines []string) (kept []string, trail []LineDecision) {
	for _, line := range lines {
		if IsHardStop(line) {
			trail = append(trail, LineDecision{
				Line:    line,
				Verdict: Verdict{Keep: false, Rule: "hard-stop", Reason: "totals section"},
				Stopped: true,
			})
			break
		}
		v := ClassifyLine(line)
		trail = append(trail, LineDecision{Line: line, Verdict: v})
		if v.Keep {
			kept = append(kept, line)
		}
	}
	return kept, trail
}
