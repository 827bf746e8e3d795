package parse

import (
	"reflect"
	"testing"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"case collapse", []string{"Bananas", "bananas", "BANANAS"}, []string{"Bananas"}},
		{"whitespace collapse", []string{"Whole  Milk", "Whole Milk"}, []string{"Whole  Milk"}},
		{"not fuzzy", []string{"Milk", "Milk 2"}, []string{"Milk", "Milk 2"}},
		{"order preserved", []string{"Eggs", "Bread", "eggs", "Butter"}, []string{"Eggs", "Bread", "Butter"}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dedupe(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dedupe(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
