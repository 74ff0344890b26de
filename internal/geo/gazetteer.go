package geo

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AdminLevel is the administrative depth of an area.
type AdminLevel string

const (
	LevelCountry AdminLevel = "country"
	LevelAdmin1  AdminLevel = "admin1"
	LevelAdmin2  AdminLevel = "admin2"
)

// AdminArea is one gazetteer entry. Parent is the parent area's name, not a
// pointer, so the arena never forms ownership cycles.
type AdminArea struct {
	Name   string
	Level  AdminLevel
	Parent string
}

// Gazetteer holds the admin1/admin2 tables for one country.
type Gazetteer struct {
	ISO3  string
	areas map[string]AdminArea // lowercased name -> area
}

// gazetteerFile is the YAML shape for gazetteer overrides:
//
//	MDG:
//	  Alaotra-Mangoro:
//	    - Amparafaravola
//	    - Ambatondrazaka
type gazetteerFile map[string]map[string][]string

// builtinGazetteers covers the countries exercised in routine monitoring.
// Extend via a gazetteer override file, or through LLM-assisted extraction
// merged into the cache.
var builtinGazetteers = gazetteerFile{
	"MDG": {
		"Alaotra-Mangoro": {"Amparafaravola", "Ambatondrazaka", "Moramanga", "Andilamena"},
		"Analamanga":      {"Antananarivo Renivohitra", "Ambohidratrimo", "Anjozorobe"},
		"Atsinanana":      {"Toamasina I", "Toamasina II", "Brickaville", "Vatomandry"},
		"Sava":            {"Sambava", "Antalaha", "Vohemar", "Andapa"},
	},
	"MOZ": {
		"Sofala":       {"Beira", "Buzi", "Dondo", "Nhamatanda"},
		"Cabo Delgado": {"Pemba", "Palma", "Mocimboa da Praia", "Macomia"},
		"Zambezia":     {"Quelimane", "Mocuba", "Milange"},
	},
	"PHL": {
		"Eastern Visayas": {"Tacloban", "Ormoc", "Guiuan", "Borongan"},
		"Bicol":           {"Legazpi", "Naga", "Sorsogon City"},
		"Cagayan Valley":  {"Tuguegarao", "Ilagan", "Santiago"},
	},
	"BGD": {
		"Chattogram": {"Cox's Bazar", "Chattogram", "Bandarban"},
		"Sylhet":     {"Sylhet", "Sunamganj", "Habiganj"},
	},
	"NER": {
		"Tillaberi": {"Tillaberi", "Ouallam", "Tera"},
		"Diffa":     {"Diffa", "N'Guigmi", "Maine-Soroa"},
	},
	"NGA": {
		"Borno":   {"Maiduguri", "Bama", "Gwoza"},
		"Adamawa": {"Yola", "Mubi", "Numan"},
	},
}

// LoadGazetteer builds the gazetteer for a country from the built-in tables.
func LoadGazetteer(iso3 string) *Gazetteer {
	return buildGazetteer(iso3, builtinGazetteers[strings.ToUpper(iso3)])
}

// LoadGazetteerFile reads a YAML override file and returns the gazetteer for
// the given country, merged over the built-in table.
func LoadGazetteerFile(path, iso3 string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file gazetteerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	g := LoadGazetteer(iso3)
	for admin1, admin2s := range file[strings.ToUpper(iso3)] {
		g.merge(admin1, admin2s)
	}
	return g, nil
}

func buildGazetteer(iso3 string, table map[string][]string) *Gazetteer {
	g := &Gazetteer{
		ISO3:  strings.ToUpper(iso3),
		areas: make(map[string]AdminArea),
	}
	for admin1, admin2s := range table {
		g.merge(admin1, admin2s)
	}
	return g
}

func (g *Gazetteer) merge(admin1 string, admin2s []string) {
	country := g.ISO3
	if c, ok := CountryByISO3(g.ISO3); ok {
		country = c.Name
	}
	g.areas[strings.ToLower(admin1)] = AdminArea{Name: admin1, Level: LevelAdmin1, Parent: country}
	for _, a2 := range admin2s {
		g.areas[strings.ToLower(a2)] = AdminArea{Name: a2, Level: LevelAdmin2, Parent: admin1}
	}
}

// Add inserts an area into the gazetteer cache. Used to merge LLM-extracted
// areas that validated against source text.
func (g *Gazetteer) Add(area AdminArea) {
	g.areas[strings.ToLower(area.Name)] = area
}

// Lookup returns the area with exactly this name, case-insensitive.
func (g *Gazetteer) Lookup(name string) (AdminArea, bool) {
	a, ok := g.areas[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Match scans text for admin area mentions. Exact whole-word matches win;
// fuzzy matches above minScore cover spelling variants. Returns the best
// match, preferring deeper (admin2) areas.
func (g *Gazetteer) Match(text string, minScore float64) (AdminArea, bool) {
	if g == nil || len(g.areas) == 0 {
		return AdminArea{}, false
	}
	lower := strings.ToLower(text)

	var best AdminArea
	var bestScore float64
	found := false

	for key, area := range g.areas {
		var score float64
		if containsWord(lower, key) {
			score = 1.0
		} else {
			score = bestTokenSimilarity(lower, key)
		}
		if score < minScore {
			continue
		}
		if !found || score > bestScore || (score == bestScore && deeper(area.Level, best.Level)) {
			best = area
			bestScore = score
			found = true
		}
	}

	return best, found
}

func deeper(a, b AdminLevel) bool {
	rank := map[AdminLevel]int{LevelCountry: 0, LevelAdmin1: 1, LevelAdmin2: 2}
	return rank[a] > rank[b]
}

// bestTokenSimilarity slides a window of the same word length as name across
// text and returns the best normalized similarity.
func bestTokenSimilarity(text, name string) float64 {
	nameWords := strings.Fields(name)
	textWords := strings.Fields(text)
	if len(nameWords) == 0 || len(textWords) < len(nameWords) {
		return 0
	}

	var best float64
	for i := 0; i+len(nameWords) <= len(textWords); i++ {
		candidate := strings.Join(textWords[i:i+len(nameWords)], " ")
		if s := Similarity(candidate, name); s > best {
			best = s
		}
	}
	return best
}

// Similarity returns normalized edit-distance similarity in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	dist := levenshtein(a, b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
