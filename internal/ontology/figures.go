package ontology

import (
	"regexp"
	"strconv"
	"strings"
)

// Figure metrics. Keys of ImpactObservation.Figures.
const (
	MetricDeaths        = "deaths"
	MetricInjured       = "injured"
	MetricMissing       = "missing"
	MetricDisplaced     = "displaced"
	MetricAffected      = "affected"
	MetricEvacuated     = "evacuated"
	MetricHousesDamaged = "houses_damaged"
)

// metricKeywords maps figure keywords to metrics for the NUMBER+keyword family.
var metricKeywords = map[string]string{
	"dead":             MetricDeaths,
	"deaths":           MetricDeaths,
	"killed":           MetricDeaths,
	"fatalities":       MetricDeaths,
	"injured":          MetricInjured,
	"wounded":          MetricInjured,
	"missing":          MetricMissing,
	"displaced":        MetricDisplaced,
	"homeless":         MetricDisplaced,
	"affected":         MetricAffected,
	"evacuated":        MetricEvacuated,
	"houses destroyed": MetricHousesDamaged,
	"houses damaged":   MetricHousesDamaged,
	"homes destroyed":  MetricHousesDamaged,
	"homes damaged":    MetricHousesDamaged,
}

// number matches "59", "48,000", "1.2 million", "20 thousand".
const number = `(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(\s*(?:million|thousand|lakh))?`

// Pattern families, evaluated in order. Later families never override a
// larger value already found for the same metric (max wins, never summed).
var (
	// (a) NUMBER + keyword: "48,000 displaced", "1.2 million people affected"
	numberKeywordRe = regexp.MustCompile(`(?i)` + number + `\s+(?:people\s+|persons\s+|residents\s+)?(` + keywordAlternation() + `)`)

	// (b) death-toll verb patterns: "death toll rises to 59", "kills 4"
	deathTollRe = regexp.MustCompile(`(?i)death\s+toll\s+(?:rises|rose|climbs|climbed|jumps|jumped|stands|now\s+stands|increases|increased)?\s*(?:to|at)?\s*` + number)
	killsRe     = regexp.MustCompile(`(?i)\bkill(?:s|ed|ing)?\s+(?:at\s+least\s+|more\s+than\s+|over\s+)?` + number)

	// (c) quantifier-prefixed: "at least 52 dead"
	quantifierRe = regexp.MustCompile(`(?i)(?:at\s+least|more\s+than|over|some|around|about|up\s+to|nearly)\s+` + number + `\s+(?:people\s+|persons\s+)?(` + keywordAlternation() + `)`)

	// (d) sentence-level death mentions: "59 killed", "59 dead", "4 died"
	sentenceDeathRe = regexp.MustCompile(`(?i)\b` + number + `\s+(?:killed|dead|died|perished)\b`)
)

func keywordAlternation() string {
	keys := make([]string, 0, len(metricKeywords))
	for k := range metricKeywords {
		keys = append(keys, strings.ReplaceAll(k, " ", `\s+`))
	}
	// Longest first so "houses destroyed" beats "destroyed" style prefixes.
	for i := 0; i < len(keys)-1; i++ {
		for j := i + 1; j < len(keys); j++ {
			if len(keys[j]) > len(keys[i]) {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return strings.Join(keys, "|")
}

// ExtractFigures runs the ordered pattern families over one evidence item's
// text and returns one value per metric. When families produce competing
// values for the same metric the maximum is kept; summing values from the
// same item double-counts the same people.
func ExtractFigures(text string) map[string]int {
	figures := make(map[string]int)

	keep := func(metric string, value int) {
		if value <= 0 {
			return
		}
		if value > figures[metric] {
			figures[metric] = value
		}
	}

	// (a) NUMBER + keyword
	for _, m := range numberKeywordRe.FindAllStringSubmatch(text, -1) {
		value := parseNumber(m[1], m[2])
		metric := lookupMetric(m[3])
		keep(metric, value)
	}

	// (b) death-toll verbs
	for _, m := range deathTollRe.FindAllStringSubmatch(text, -1) {
		keep(MetricDeaths, parseNumber(m[1], m[2]))
	}
	for _, m := range killsRe.FindAllStringSubmatch(text, -1) {
		keep(MetricDeaths, parseNumber(m[1], m[2]))
	}

	// (c) quantifier-prefixed
	for _, m := range quantifierRe.FindAllStringSubmatch(text, -1) {
		value := parseNumber(m[1], m[2])
		metric := lookupMetric(m[3])
		keep(metric, value)
	}

	// (d) sentence-level death mentions
	for _, m := range sentenceDeathRe.FindAllStringSubmatch(text, -1) {
		keep(MetricDeaths, parseNumber(m[1], m[2]))
	}

	if len(figures) == 0 {
		return nil
	}
	return figures
}

func lookupMetric(keyword string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(keyword), " "))
	if metric, ok := metricKeywords[normalized]; ok {
		return metric
	}
	return MetricAffected
}

// parseNumber converts a matched numeral plus optional multiplier word.
func parseNumber(numeral, multiplier string) int {
	numeral = strings.ReplaceAll(numeral, ",", "")
	f, err := strconv.ParseFloat(numeral, 64)
	if err != nil {
		return 0
	}

	switch strings.ToLower(strings.TrimSpace(multiplier)) {
	case "million":
		f *= 1_000_000
	case "thousand":
		f *= 1_000
	case "lakh":
		f *= 100_000
	}
	return int(f)
}
