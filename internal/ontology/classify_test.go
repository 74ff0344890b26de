package ontology

import "testing"

func TestClassifyHazard(t *testing.T) {
	tax := DefaultTaxonomy()

	tests := []struct {
		input    string
		name     string
		category HazardCategory
	}{
		{"Severe flooding hits the capital", "flood", HazardHydrological},
		{"Tropical cyclone makes landfall", "tropical cyclone", HazardMeteorological},
		{"Magnitude 6.8 earthquake strikes offshore", "earthquake", HazardGeophysical},
		{"Cholera outbreak spreads in camps", "cholera", ""},
		{"Armed clash displaces villagers", "armed conflict", HazardConflict},
		{"Drought deepens across the Sahel", "drought", HazardClimatological},
	}

	for _, tt := range tests {
		rule, ok := tax.ClassifyHazard(tt.input)
		if !ok {
			t.Errorf("ClassifyHazard(%q): no match", tt.input)
			continue
		}
		if tt.category != "" && rule.Category != tt.category {
			t.Errorf("ClassifyHazard(%q) category = %s, want %s", tt.input, rule.Category, tt.category)
		}
	}
}

func TestClassifyHazardOrderMatters(t *testing.T) {
	tax := DefaultTaxonomy()

	// "flash flood" appears before bare "flood" in the rule table, and
	// both resolve to the flood hazard; first rule wins.
	rule, ok := tax.ClassifyHazard("flash flood sweeps through valley")
	if !ok || rule.Name != "flood" {
		t.Errorf("got %+v, want flood", rule)
	}
}

func TestClassifyImpactsMultiple(t *testing.T) {
	tax := DefaultTaxonomy()

	impacts := tax.ClassifyImpacts("12 killed and thousands displaced; bridge collapsed")
	if len(impacts) != 3 {
		t.Fatalf("got %v, want casualties+displacement+infrastructure", impacts)
	}
	if impacts[0] != ImpactCasualties {
		t.Errorf("primary impact = %s, want casualties", impacts[0])
	}
}

func TestClassifyNeeds(t *testing.T) {
	tax := DefaultTaxonomy()

	needs := tax.ClassifyNeeds("urgent need for clean water and tents; schools remain closed")
	want := map[NeedType]bool{NeedWASH: true, NeedShelter: true, NeedEducation: true}
	if len(needs) != len(want) {
		t.Fatalf("got %v", needs)
	}
	for _, n := range needs {
		if !want[n] {
			t.Errorf("unexpected need %s", n)
		}
	}
}

func TestClassifyActor(t *testing.T) {
	tax := DefaultTaxonomy()

	tests := []struct {
		input string
		want  ActorType
	}{
		{"The Red Cross deployed assessment teams", ActorRedCross},
		{"WFP distributed food rations", ActorUN},
		{"Government authorities dispatched rescue crews", ActorGovernment},
	}

	for _, tt := range tests {
		got, ok := tax.ClassifyActor(tt.input)
		if !ok || got != tt.want {
			t.Errorf("ClassifyActor(%q) = %s/%v, want %s", tt.input, got, ok, tt.want)
		}
	}
}
