package typoutil

import (
	"math"
	"testing"
)

func TestIndelDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"insulin", "insulin", 0},
		{"insluin", "insulin", 2}, // transposition = delete + insert
		{"kitten", "sitting", 5},
		{"café", "cafe", 2}, // unicode rune substitution
	}

	for _, tt := range tests {
		result := IndelDistance(tt.a, tt.b)
		if result != tt.expected {
			t.Errorf("IndelDistance(%q, %q) = %d, expected %d", tt.a, tt.b, result, tt.expected)
		}
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b     string
		expected float64
	}{
		{"", "", 100},
		{"abc", "", 0},
		{"metformin", "metformin", 100},
		{"insluin", "insulin", 100 * 12.0 / 14.0},
		{"abc", "xyz", 0},
		{"metfromin", "metformin", 100 * 16.0 / 18.0},
	}

	for _, tt := range tests {
		result := Ratio(tt.a, tt.b)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("Ratio(%q, %q) = %f, expected %f", tt.a, tt.b, result, tt.expected)
		}
	}
}

func TestRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"insulin", "insluin"},
		{"glargine", "glargin"},
		{"tylenol", "tilenol"},
		{"a", "abcdef"},
	}
	for _, p := range pairs {
		if Ratio(p[0], p[1]) != Ratio(p[1], p[0]) {
			t.Errorf("Ratio not symmetric for %q/%q", p[0], p[1])
		}
	}
}

func BenchmarkRatio(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Ratio("insulinglargi", "insulin")
	}
}
