package geo

import (
	"testing"
)

func TestMatchCountriesWordBoundary(t *testing.T) {
	tests := []struct {
		input    string
		expected []string // ISO3
	}{
		{"Niger: flooding displaces thousands", []string{"NER"}},
		{"Nigeria floods hit Borno state", []string{"NGA"}},
		{"Niger and Nigeria both affected", []string{"NER", "NGA"}},
		{"Cyclone slams Madagascar east coast", []string{"MDG"}},
		{"No countries mentioned here", nil},
		{"Nigerien authorities respond", []string{"NER"}},
	}

	for _, tt := range tests {
		result := MatchCountries(tt.input)
		got := make(map[string]bool)
		for _, c := range result {
			got[c.ISO3] = true
		}
		want := make(map[string]bool)
		for _, iso := range tt.expected {
			want[iso] = true
		}

		if len(got) != len(want) {
			t.Errorf("MatchCountries(%q) = %v, want %v", tt.input, result, tt.expected)
			continue
		}
		for iso := range want {
			if !got[iso] {
				t.Errorf("MatchCountries(%q) missing %s", tt.input, iso)
			}
		}
	}
}

func TestNigerNeverMatchesInsideNigeria(t *testing.T) {
	// The word-boundary rule: a filter for Nigeria must not fire on Niger.
	result := MatchCountries("Niger: flooding displaces thousands")
	for _, c := range result {
		if c.ISO3 == "NGA" {
			t.Error("matched Nigeria inside the word Niger")
		}
	}
}

func TestGazetteerExactMatch(t *testing.T) {
	g := LoadGazetteer("MDG")

	area, ok := g.Match("Severe flooding reported around Amparafaravola district", 0.85)
	if !ok {
		t.Fatal("expected a gazetteer match")
	}
	if area.Name != "Amparafaravola" || area.Level != LevelAdmin2 {
		t.Errorf("got %+v, want Amparafaravola admin2", area)
	}
	if area.Parent != "Alaotra-Mangoro" {
		t.Errorf("parent = %q, want Alaotra-Mangoro", area.Parent)
	}
}

func TestGazetteerFuzzyMatch(t *testing.T) {
	g := LoadGazetteer("MDG")

	// One-letter spelling variant should still resolve.
	area, ok := g.Match("floods in Amparafaravula overnight", 0.85)
	if !ok {
		t.Fatal("expected a fuzzy match")
	}
	if area.Name != "Amparafaravola" {
		t.Errorf("got %q, want Amparafaravola", area.Name)
	}
}

func TestGazetteerNoMatch(t *testing.T) {
	g := LoadGazetteer("MDG")
	if _, ok := g.Match("no places mentioned at all", 0.85); ok {
		t.Error("expected no match")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"beira", "beira", 1.0, 1.0},
		{"beira", "biera", 0.5, 0.99},
		{"beira", "xxxxx", 0.0, 0.3},
	}
	for _, tt := range tests {
		s := Similarity(tt.a, tt.b)
		if s < tt.min || s > tt.max {
			t.Errorf("Similarity(%q,%q) = %f, want [%f,%f]", tt.a, tt.b, s, tt.min, tt.max)
		}
	}
}

func TestCountryByISO3(t *testing.T) {
	c, ok := CountryByISO3("mdg")
	if !ok || c.Name != "Madagascar" {
		t.Errorf("CountryByISO3(mdg) = %+v, %v", c, ok)
	}
}
