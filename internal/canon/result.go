package canon

import "time"

// Status says whether a text names a pantry-worthy item.
type Status string

const (
	StatusItem    Status = "item"
	StatusNotItem Status = "not_item"
	StatusUnknown Status = "unknown"
)

// Kind is the coarse category of a recognized item.
type Kind string

const (
	KindFood      Kind = "food"
	KindHousehold Kind = "household"
	KindOther     Kind = "other"
)

// IngredientType distinguishes raw ingredients from packaged products.
type IngredientType string

const (
	TypeIngredient IngredientType = "ingredient"
	TypeProduct    IngredientType = "product"
	TypeAmbiguous  IngredientType = "ambiguous"
)

// ResultSource records where a result came from on this request.
type ResultSource string

const (
	SourceCache ResultSource = "cache"
	SourceLLM   ResultSource = "llm"
	SourceNone  ResultSource = "none"
)

// Result is one canonical classification. All enum fields are drawn from
// the closed sets above and Confidence is clamped into [0,1] before use.
type Result struct {
	Key            string         `json:"key"`
	CanonicalName  string         `json:"canonicalName"`
	Status         Status         `json:"status"`
	Kind           Kind           `json:"kind"`
	IngredientType IngredientType `json:"ingredientType"`
	Confidence     float64        `json:"confidence"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Source         ResultSource   `json:"source"`
}

// ValidStatus reports whether s is a member of the Status enum.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusItem, StatusNotItem, StatusUnknown:
		return true
	}
	return false
}

// ValidKind reports whether k is a member of the Kind enum.
func ValidKind(k string) bool {
	switch Kind(k) {
	case KindFood, KindHousehold, KindOther:
		return true
	}
	return false
}

// ValidIngredientType reports whether t is a member of the IngredientType enum.
func ValidIngredientType(t string) bool {
	switch IngredientType(t) {
	case TypeIngredient, TypeProduct, TypeAmbiguous:
		return true
	}
	return false
}

// ClampConfidence forces c into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Fallback is the placeholder assigned to every row of a failed batch and to
// any row unexpectedly absent after merging. Never admitted to the cache.
func Fallback(key string) Result {
	return Result{
		Key:            key,
		Status:         StatusUnknown,
		Kind:           KindOther,
		IngredientType: TypeAmbiguous,
		Confidence:     0,
		Source:         SourceNone,
	}
}

// Admission thresholds. Definite negatives always cache; positive calls need
// real confidence; "unknown" rows need near-certainty so transient classifier
// confusion cannot poison the cache.
const (
	admitItemConfidence    = 0.75
	admitUnknownConfidence = 0.9
)

// ShouldCache is the cache admission policy, enforced by the service rather
// than the store.
func ShouldCache(r Result) bool {
	switch r.Status {
	case StatusNotItem:
		return true
	case StatusItem:
		return r.Confidence >= admitItemConfidence
	case StatusUnknown:
		return r.Confidence >= admitUnknownConfidence
	}
	return false
}
