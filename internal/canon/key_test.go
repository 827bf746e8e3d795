package canon

import (
	"strings"
	"testing"
)

// Texts differing only by case, accents, or whitespace run length must share
// one cache key.
func TestKeyNormalizationEquivalence(t *testing.T) {
	groups := [][]string{
		{"Whole Milk", "whole milk", "WHOLE  MILK", " whole\tmilk "},
		{"Crème Fraîche", "creme fraiche", "CRÈME   FRAÎCHE"},
		{"Jalapeño Peppers", "jalapeno peppers"},
		{"half-and-half", "Half And Half", "HALF  AND  HALF"},
	}

	for _, group := range groups {
		base := Key(group[0])
		for _, variant := range group[1:] {
			if got := Key(variant); got != base {
				t.Errorf("Key(%q) = %q, want %q (from %q)", variant, got, base, group[0])
			}
		}
	}
}

func TestKeyVersionPrefix(t *testing.T) {
	k := Key("Bananas")
	if !strings.HasPrefix(k, PipelineVersion+":") {
		t.Errorf("key %q missing version prefix", k)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Whole Milk", "whole milk"},
		{"  BNLS/CHKN--BRST  ", "bnls chkn brst"},
		{"Café au Lait!!!", "cafe au lait"},
		{"2% MILK", "2 milk"},
		{"...", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if Key("Sourdough Bread") != Key("Sourdough Bread") {
			t.Fatal("key not deterministic")
		}
	}
}
