package canon

import "testing"

func TestPrefilter(t *testing.T) {
	tests := []struct {
		name string
		text string
		hit  bool
	}{
		{"numeric only", "12345", true},
		{"price fragment", "$4.99", true},
		{"promo word", "CLEARANCE", true},
		{"coupon", "Digital Coupon", true},
		{"apparel", "Mens Crew Socks", true},
		{"office", "Spiral Notebook", true},
		{"electronics", "AA Battery 4pk", true},
		{"gift card", "Gift Card", true},
		{"real food", "Boneless Chicken Breast", false},
		{"household item goes to llm", "Paper Towels", false},
		{"ambiguous word", "Orange", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prefilter("v3:x", tt.text)
			if (got != nil) != tt.hit {
				t.Fatalf("Prefilter(%q) hit=%v, want %v", tt.text, got != nil, tt.hit)
			}
			if got == nil {
				return
			}
			if got.Status != StatusNotItem || got.Kind != KindOther ||
				got.IngredientType != TypeAmbiguous || got.Confidence != 0.95 ||
				got.Source != SourceNone {
				t.Errorf("prefilter result shape wrong: %+v", got)
			}
			if got.Key != "v3:x" {
				t.Errorf("key = %q", got.Key)
			}
		})
	}
}
