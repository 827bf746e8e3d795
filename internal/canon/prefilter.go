package canon

import (
	"regexp"
	"strings"
)

// prefilterConfidence is assigned to deterministic not-item calls. High but
// below 1.0 so a later contradicting LLM result can still win an upsert.
const prefilterConfidence = 0.95

var numericOnlyRE = regexp.MustCompile(`^[\d\s.,$-]+$`)

// prefilterPromoRE catches short promotional fragments that slip past the
// receipt-level noise filter once isolated as candidate text.
var prefilterPromoRE = regexp.MustCompile(`(?i)\b(coupon|discount|promo(tion)?|rebate|clearance|rollback|markdown|bogo)\b`)

// nonGroceryKeywords name things a grocery receipt can carry that never
// belong in a pantry: apparel, office supplies, electronics, media, seasonal
// merchandise. Whole-word membership against the normalized text.
var nonGroceryKeywords = map[string]struct{}{
	// apparel
	"shirt": {}, "tshirt": {}, "pants": {}, "jeans": {}, "sock": {},
	"socks": {}, "shoe": {}, "shoes": {}, "jacket": {}, "hat": {},
	"glove": {}, "gloves": {}, "slipper": {}, "slippers": {},
	// office
	"stapler": {}, "envelope": {}, "envelopes": {}, "binder": {},
	"notebook": {}, "marker": {}, "markers": {}, "pen": {}, "pens": {},
	"pencil": {}, "pencils": {}, "folder": {}, "folders": {},
	// electronics
	"charger": {}, "battery": {}, "batteries": {}, "hdmi": {}, "usb": {},
	"earbud": {}, "earbuds": {}, "headphone": {}, "headphones": {},
	"lightbulb": {}, "adapter": {},
	// media and seasonal
	"magazine": {}, "dvd": {}, "giftcard": {}, "gift": {}, "card": {},
	"balloon": {}, "balloons": {}, "candle": {}, "candles": {}, "toy": {},
}

// Prefilter applies the deterministic non-LLM rules to one candidate text.
// It returns a definite not-item result, or nil when the text must go to the
// batch classifier. No network, no side effects.
func Prefilter(key, text string) *Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || numericOnlyRE.MatchString(trimmed) {
		return prefilterHit(key)
	}
	if prefilterPromoRE.MatchString(trimmed) {
		return prefilterHit(key)
	}
	for _, word := range strings.Fields(Normalize(trimmed)) {
		if _, ok := nonGroceryKeywords[word]; ok {
			return prefilterHit(key)
		}
	}
	return nil
}

func prefilterHit(key string) *Result {
	return &Result{
		Key:            key,
		Status:         StatusNotItem,
		Kind:           KindOther,
		IngredientType: TypeAmbiguous,
		Confidence:     prefilterConfidence,
		Source:         SourceNone,
	}
}
