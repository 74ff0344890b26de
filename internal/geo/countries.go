package geo

import "strings"

// Country is one entry in the country reference table.
type Country struct {
	Name    string
	ISO3    string
	Aliases []string
}

// countryTable covers countries with recurring humanitarian caseloads plus
// common aliases. Alias matching is whole-word only, so "Niger" never fires
// inside "Nigeria".
var countryTable = []Country{
	{"Madagascar", "MDG", []string{"madagascar", "malagasy"}},
	{"Mozambique", "MOZ", []string{"mozambique", "mozambican"}},
	{"Malawi", "MWI", []string{"malawi", "malawian"}},
	{"Niger", "NER", []string{"niger", "nigerien"}},
	{"Nigeria", "NGA", []string{"nigeria", "nigerian"}},
	{"Somalia", "SOM", []string{"somalia", "somali"}},
	{"Ethiopia", "ETH", []string{"ethiopia", "ethiopian"}},
	{"Kenya", "KEN", []string{"kenya", "kenyan"}},
	{"Sudan", "SDN", []string{"sudan", "sudanese", "khartoum"}},
	{"South Sudan", "SSD", []string{"south sudan", "juba"}},
	{"Chad", "TCD", []string{"chad", "chadian", "n'djamena"}},
	{"Mali", "MLI", []string{"mali", "malian", "bamako"}},
	{"Burkina Faso", "BFA", []string{"burkina faso", "burkinabe", "ouagadougou"}},
	{"Democratic Republic of the Congo", "COD", []string{"democratic republic of the congo", "dr congo", "drc", "kinshasa"}},
	{"Haiti", "HTI", []string{"haiti", "haitian", "port-au-prince"}},
	{"Philippines", "PHL", []string{"philippines", "philippine", "filipino", "manila"}},
	{"Indonesia", "IDN", []string{"indonesia", "indonesian", "jakarta"}},
	{"Bangladesh", "BGD", []string{"bangladesh", "bangladeshi", "dhaka"}},
	{"Myanmar", "MMR", []string{"myanmar", "burma", "burmese", "yangon"}},
	{"Nepal", "NPL", []string{"nepal", "nepali", "kathmandu"}},
	{"Pakistan", "PAK", []string{"pakistan", "pakistani", "islamabad"}},
	{"Afghanistan", "AFG", []string{"afghanistan", "afghan", "kabul"}},
	{"Yemen", "YEM", []string{"yemen", "yemeni", "sanaa"}},
	{"Syria", "SYR", []string{"syria", "syrian", "damascus"}},
	{"Turkey", "TUR", []string{"turkey", "turkish", "ankara", "turkiye"}},
	{"Vanuatu", "VUT", []string{"vanuatu", "port vila"}},
	{"Fiji", "FJI", []string{"fiji", "fijian", "suva"}},
	{"Honduras", "HND", []string{"honduras", "honduran", "tegucigalpa"}},
	{"Guatemala", "GTM", []string{"guatemala", "guatemalan"}},
	{"Ecuador", "ECU", []string{"ecuador", "ecuadorian", "quito"}},
	{"Peru", "PER", []string{"peru", "peruvian", "lima"}},
	{"Libya", "LBY", []string{"libya", "libyan", "tripoli", "derna"}},
	{"Morocco", "MAR", []string{"morocco", "moroccan", "marrakech"}},
	{"Japan", "JPN", []string{"japan", "japanese", "tokyo"}},
	{"China", "CHN", []string{"china", "chinese", "beijing"}},
	{"India", "IND", []string{"india", "indian", "new delhi"}},
	{"United States", "USA", []string{"united states", "usa", "u.s.", "america"}},
}

var iso3Index = buildISO3Index()

func buildISO3Index() map[string]Country {
	idx := make(map[string]Country, len(countryTable))
	for _, c := range countryTable {
		idx[c.ISO3] = c
	}
	return idx
}

// CountryByISO3 looks up a country by its ISO3 code.
func CountryByISO3(iso3 string) (Country, bool) {
	c, ok := iso3Index[strings.ToUpper(iso3)]
	return c, ok
}

// MatchCountries finds country mentions in text.
// Returns matched countries in table order, deduplicated.
func MatchCountries(text string) []Country {
	lower := strings.ToLower(text)
	var result []Country

	for _, c := range countryTable {
		for _, alias := range c.Aliases {
			if containsWord(lower, alias) {
				result = append(result, c)
				break
			}
		}
	}

	return result
}

// MatchCountry resolves a single name or ISO3 code to a country.
func MatchCountry(name string) (Country, bool) {
	if c, ok := CountryByISO3(name); ok {
		return c, true
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, c := range countryTable {
		if strings.ToLower(c.Name) == lower {
			return c, true
		}
		for _, alias := range c.Aliases {
			if alias == lower {
				return c, true
			}
		}
	}
	return Country{}, false
}

// containsWord checks if text contains word as a whole word (not substring)
func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	if idx < 0 {
		return false
	}

	// Check left boundary
	if idx > 0 {
		prev := text[idx-1]
		if isAlphaNum(prev) {
			// Not a word boundary, might be substring - check for other occurrences
			return containsWord(text[idx+len(word):], word)
		}
	}

	// Check right boundary
	end := idx + len(word)
	if end < len(text) {
		next := text[end]
		if isAlphaNum(next) {
			// Not a word boundary
			return containsWord(text[end:], word)
		}
	}

	return true
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
