package parse

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes accented characters and drops their combining marks,
// so "CRÈME" folds to "CREME" instead of losing the letter entirely.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var titleCaser = cases.Title(language.English)

var (
	reSpaceRuns   = regexp.MustCompile(`\s+`)
	reTightPunct  = regexp.MustCompile(`\s*([/-])\s*`)
	reLeadingCode = regexp.MustCompile(`^[A-Za-z0-9]{4,}\s+`)
	reDigits2     = regexp.MustCompile(`\d.*\d`)
	reCamelBreak  = regexp.MustCompile(`([a-z])([A-Z])`)
	reTokenDigit  = regexp.MustCompile(`\d`)
	reTokenAlnum  = regexp.MustCompile(`^[A-Za-z0-9.$]+$`)
)

// abbreviations maps receipt shorthand to presentable words. Expansion is
// whole-word and case-insensitive, and runs after code stripping so stripped
// PLU/SKU tokens are never mistaken for abbreviations.
var abbreviations = map[string]string{
	"BNLS":   "Boneless",
	"SKNLS":  "Skinless",
	"CHKN":   "Chicken",
	"CHK":    "Chicken",
	"BRST":   "Breast",
	"GRND":   "Ground",
	"BF":     "Beef",
	"PRK":    "Pork",
	"TRKY":   "Turkey",
	"CHZ":    "Cheese",
	"CHED":   "Cheddar",
	"WHT":    "White",
	"WHL":    "Whole",
	"ORG":    "Organic",
	"VEG":    "Vegetable",
	"TOMA":   "Tomato",
	"ONYN":   "Onion",
	"PEPPR":  "Pepper",
	"BTR":    "Butter",
	"MLK":    "Milk",
	"YGRT":   "Yogurt",
	"STRWB":  "Strawberry",
	"BLBRY":  "Blueberry",
	"CHOC":   "Chocolate",
	"VAN":    "Vanilla",
	"SNDWCH": "Sandwich",
	"SSNG":   "Seasoning",
	"FRZ":    "Frozen",
	"LRG":    "Large",
	"SM":     "Small",
	"PK":     "Pack",
	"DZ":     "Dozen",
	"GAL":    "Gallon",
	"QT":     "Quart",
	"UNSWT":  "Unsweetened",
	"SGNLS":  "Seasonal",
}

// CleanName turns a kept raw receipt line into a presentable candidate name.
// The steps are order-sensitive: code stripping must precede abbreviation
// expansion, and hyphen normalization must precede title casing.
func CleanName(raw string) string {
	s := foldASCII(raw)
	s = tightenSpacing(s)
	s = stripLeadingCode(s)
	s = stripTrailingResidue(s)
	s = splitCamelCase(s)
	s = expandAbbreviations(s)
	s = strings.ReplaceAll(s, "-", " ")
	s = reSpaceRuns.ReplaceAllString(strings.TrimSpace(s), " ")
	return titleCaser.String(strings.ToLower(s))
}

// foldASCII unicode-normalizes and drops any byte outside printable ASCII.
func foldASCII(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func tightenSpacing(s string) string {
	s = reSpaceRuns.ReplaceAllString(strings.TrimSpace(s), " ")
	return reTightPunct.ReplaceAllString(s, "$1")
}

// stripLeadingCode removes one leading store/PLU code: at least 4
// alphanumeric characters containing at least 2 digits. Pure-letter tokens
// are never codes, however long.
func stripLeadingCode(s string) string {
	loc := reLeadingCode.FindStringIndex(s)
	if loc == nil {
		return s
	}
	token := strings.TrimSpace(s[:loc[1]])
	if reDigits2.MatchString(token) {
		return s[loc[1]:]
	}
	return s
}

// stripTrailingResidue peels SKU/price tokens off the end of the line:
// trailing alphanumeric tokens that contain a digit, repeated until a
// digit-free word is reached. At least one word always survives.
func stripTrailingResidue(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if reTokenAlnum.MatchString(last) && reTokenDigit.MatchString(last) {
			tokens = tokens[:len(tokens)-1]
			continue
		}
		break
	}
	return strings.Join(tokens, " ")
}

func splitCamelCase(s string) string {
	return reCamelBreak.ReplaceAllString(s, "$1 $2")
}

func expandAbbreviations(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if full, ok := abbreviations[strings.ToUpper(tok)]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}
