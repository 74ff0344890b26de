package ontology

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classification is keyword-driven: ordered (keyword, variant) rules
// evaluated top to bottom, first hit naming the hazard, every hit
// contributing an impact or need. The tables are data, overridable from a
// YAML taxonomy file, so behavior stays inspectable without touching code.

// HazardRule maps trigger keywords to a named hazard.
type HazardRule struct {
	Keywords []string       `yaml:"keywords"`
	Name     string         `yaml:"name"`
	Category HazardCategory `yaml:"category"`
}

// ImpactRule maps trigger keywords to an impact type.
type ImpactRule struct {
	Keywords []string   `yaml:"keywords"`
	Type     ImpactType `yaml:"type"`
}

// NeedRule maps trigger keywords to a need type.
type NeedRule struct {
	Keywords []string `yaml:"keywords"`
	Type     NeedType `yaml:"type"`
}

// ActorRule maps trigger keywords to a response actor type.
type ActorRule struct {
	Keywords []string  `yaml:"keywords"`
	Type     ActorType `yaml:"type"`
}

// Taxonomy bundles the rule tables used by the builder.
type Taxonomy struct {
	Hazards []HazardRule `yaml:"hazards"`
	Impacts []ImpactRule `yaml:"impacts"`
	Needs   []NeedRule   `yaml:"needs"`
	Actors  []ActorRule  `yaml:"actors"`
}

// DefaultTaxonomy returns the built-in rule tables.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Hazards: []HazardRule{
			{[]string{"earthquake", "quake", "seismic", "aftershock"}, "earthquake", HazardGeophysical},
			{[]string{"tsunami"}, "tsunami", HazardGeophysical},
			{[]string{"volcano", "volcanic", "eruption", "lava"}, "volcanic eruption", HazardGeophysical},
			{[]string{"landslide", "mudslide", "rockfall"}, "landslide", HazardGeophysical},
			{[]string{"flash flood", "flood", "flooding", "inundation", "river overflow"}, "flood", HazardHydrological},
			{[]string{"cyclone", "hurricane", "typhoon", "tropical storm"}, "tropical cyclone", HazardMeteorological},
			{[]string{"tornado", "storm surge", "severe storm", "hailstorm"}, "severe storm", HazardMeteorological},
			{[]string{"heatwave", "heat wave", "extreme heat"}, "heatwave", HazardClimatological},
			{[]string{"drought", "failed rains", "water scarcity"}, "drought", HazardClimatological},
			{[]string{"wildfire", "bushfire", "forest fire"}, "wildfire", HazardClimatological},
			{[]string{"cholera", "measles", "ebola", "outbreak", "epidemic", "disease"}, "disease outbreak", HazardBiological},
			{[]string{"locust", "crop infestation"}, "pest infestation", HazardBiological},
			{[]string{"armed clash", "armed conflict", "airstrike", "shelling", "attack by", "insurgent", "militant"}, "armed conflict", HazardConflict},
		},
		Impacts: []ImpactRule{
			{[]string{"dead", "death", "killed", "fatalities", "casualties", "injured", "wounded", "missing"}, ImpactCasualties},
			{[]string{"displaced", "homeless", "evacuated", "fled", "displacement", "idp"}, ImpactDisplacement},
			{[]string{"houses destroyed", "homes destroyed", "bridge", "road", "infrastructure", "power outage", "collapsed", "submerged"}, ImpactInfrastructure},
			{[]string{"cholera", "disease", "outbreak", "hospital overwhelmed", "malnutrition"}, ImpactHealth},
			{[]string{"crops", "livestock", "harvest", "livelihood", "farmland"}, ImpactLivelihoods},
		},
		Needs: []NeedRule{
			{[]string{"shelter", "tents", "tarpaulin", "housing"}, NeedShelter},
			{[]string{"clean water", "drinking water", "sanitation", "hygiene", "latrines"}, NeedWASH},
			{[]string{"medical", "health care", "healthcare", "medicine", "clinics", "vaccination"}, NeedHealth},
			{[]string{"food", "hunger", "famine", "malnutrition", "rations"}, NeedFoodSecurity},
			{[]string{"protection", "gender-based violence", "child protection", "unaccompanied"}, NeedProtection},
			{[]string{"school", "education", "classrooms"}, NeedEducation},
			{[]string{"access constraints", "logistics", "supply route", "airlift", "impassable"}, NeedLogistics},
		},
		Actors: []ActorRule{
			{[]string{"red cross", "red crescent", "ifrc", "icrc"}, ActorRedCross},
			{[]string{"united nations", "unicef", "wfp", "unhcr", "ocha", "who ", "unocha"}, ActorUN},
			{[]string{"government", "ministry", "authorities", "national disaster"}, ActorGovernment},
			{[]string{"military", "army", "navy", "air force", "soldiers"}, ActorMilitary},
			{[]string{"ngo", "aid group", "aid agency", "relief organization", "msf", "save the children"}, ActorNGO},
			{[]string{"volunteers", "community members", "local residents"}, ActorCommunity},
		},
	}
}

// LoadTaxonomyFile reads a YAML taxonomy override. Sections present in the
// file replace the corresponding default table wholesale.
func LoadTaxonomyFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override Taxonomy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, err
	}

	tax := DefaultTaxonomy()
	if len(override.Hazards) > 0 {
		tax.Hazards = override.Hazards
	}
	if len(override.Impacts) > 0 {
		tax.Impacts = override.Impacts
	}
	if len(override.Needs) > 0 {
		tax.Needs = override.Needs
	}
	if len(override.Actors) > 0 {
		tax.Actors = override.Actors
	}
	return tax, nil
}

// ClassifyHazard returns the first hazard rule whose keyword appears in text.
func (t *Taxonomy) ClassifyHazard(text string) (HazardRule, bool) {
	lower := strings.ToLower(text)
	for _, rule := range t.Hazards {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule, true
			}
		}
	}
	return HazardRule{}, false
}

// ClassifyImpacts returns every impact type triggered by the text, in rule
// order. The first returned type is the primary one and is the only one that
// carries extracted figures.
func (t *Taxonomy) ClassifyImpacts(text string) []ImpactType {
	lower := strings.ToLower(text)
	var result []ImpactType
	for _, rule := range t.Impacts {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				result = append(result, rule.Type)
				break
			}
		}
	}
	return result
}

// ClassifyNeeds returns every need type triggered by the text.
func (t *Taxonomy) ClassifyNeeds(text string) []NeedType {
	lower := strings.ToLower(text)
	var result []NeedType
	for _, rule := range t.Needs {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				result = append(result, rule.Type)
				break
			}
		}
	}
	return result
}

// ClassifyActor returns the actor type for a response sentence.
func (t *Taxonomy) ClassifyActor(text string) (ActorType, bool) {
	lower := strings.ToLower(text)
	for _, rule := range t.Actors {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Type, true
			}
		}
	}
	return "", false
}
