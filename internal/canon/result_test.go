package canon

import "testing"

func TestShouldCacheBoundaries(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want bool
	}{
		{"not_item any confidence", Result{Status: StatusNotItem, Confidence: 0.1}, true},
		{"not_item zero confidence", Result{Status: StatusNotItem, Confidence: 0}, true},
		{"item at threshold", Result{Status: StatusItem, Confidence: 0.75}, true},
		{"item below threshold", Result{Status: StatusItem, Confidence: 0.5}, false},
		{"item just below", Result{Status: StatusItem, Confidence: 0.7499}, false},
		{"unknown at threshold", Result{Status: StatusUnknown, Confidence: 0.9}, true},
		{"unknown below threshold", Result{Status: StatusUnknown, Confidence: 0.89}, false},
		{"fallback row", Fallback("v3:x"), false},
		{"invalid status", Result{Status: "weird", Confidence: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldCache(tt.r); got != tt.want {
				t.Errorf("ShouldCache(%+v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {1.7, 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFallbackShape(t *testing.T) {
	f := Fallback("v3:abc")
	if f.Key != "v3:abc" || f.Status != StatusUnknown || f.Kind != KindOther ||
		f.IngredientType != TypeAmbiguous || f.Confidence != 0 || f.Source != SourceNone {
		t.Errorf("fallback shape wrong: %+v", f)
	}
}

func TestEnumValidation(t *testing.T) {
	for _, s := range []string{"item", "not_item", "unknown"} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	if ValidStatus("ITEM") || ValidStatus("") {
		t.Error("status validation is not strict")
	}
	if !ValidKind("food") || ValidKind("produce") {
		t.Error("kind validation wrong")
	}
	if !ValidIngredientType("ambiguous") || ValidIngredientType("mixed") {
		t.Error("ingredient type validation wrong")
	}
}
