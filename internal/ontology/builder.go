package ontology

import (
	"strings"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/geo"
	"github.com/reliefwatch/reliefwatch/internal/logging"
)

// defaultValidity is how long an observation is considered current.
const defaultValidity = 7 * 24 * time.Hour

// Builder turns evidence items into ontology graphs. It holds no per-build
// state: every Build call returns fresh graphs, and persistence between
// cycles is the caller's concern.
type Builder struct {
	tax           *Taxonomy
	fuzzyMin      float64
	gazetteerFile string                    // optional YAML override, merged over built-ins
	gazetteers    map[string]*geo.Gazetteer // ISO3 -> gazetteer, lazily loaded
}

// NewBuilder creates a Builder with the given taxonomy. A nil taxonomy uses
// the defaults.
func NewBuilder(tax *Taxonomy, fuzzyMin float64) *Builder {
	if tax == nil {
		tax = DefaultTaxonomy()
	}
	if fuzzyMin <= 0 {
		fuzzyMin = 0.85
	}
	return &Builder{
		tax:        tax,
		fuzzyMin:   fuzzyMin,
		gazetteers: make(map[string]*geo.Gazetteer),
	}
}

// UseGazetteerFile sets a YAML override file merged over the built-in
// gazetteer tables. Clears any already-loaded countries.
func (b *Builder) UseGazetteerFile(path string) {
	b.gazetteerFile = path
	b.gazetteers = make(map[string]*geo.Gazetteer)
}

// Gazetteer returns the cached gazetteer for a country, loading it on first use.
func (b *Builder) Gazetteer(iso3 string) *geo.Gazetteer {
	if g, ok := b.gazetteers[iso3]; ok {
		return g
	}
	var g *geo.Gazetteer
	if b.gazetteerFile != "" {
		var err error
		g, err = geo.LoadGazetteerFile(b.gazetteerFile, iso3)
		if err != nil {
			logging.Warn("gazetteer override unreadable, using built-ins", "path", b.gazetteerFile, "error", err)
			g = nil
		}
	}
	if g == nil {
		g = geo.LoadGazetteer(iso3)
	}
	b.gazetteers[iso3] = g
	return g
}

// Build constructs one graph per country seen in the items. Items that
// resolve to no country are skipped.
func (b *Builder) Build(items []evidence.Item) []*Graph {
	graphs := make(map[string]*Graph)

	for _, item := range items {
		country, ok := b.resolveCountry(item)
		if !ok {
			logging.Debug("ontology: no country resolved", "item", item.ID)
			continue
		}

		g := graphs[country.ISO3]
		if g == nil {
			g = NewGraph(country.Name, country.ISO3)
			graphs[country.ISO3] = g
		}

		b.addItem(g, country, item)
	}

	result := make([]*Graph, 0, len(graphs))
	for _, g := range graphs {
		result = append(result, g)
	}
	return result
}

// resolveCountry prefers connector-supplied candidates over text matching.
func (b *Builder) resolveCountry(item evidence.Item) (geo.Country, bool) {
	for _, cand := range item.CountryCandidates {
		if c, ok := geo.MatchCountry(cand); ok {
			return c, true
		}
	}
	matches := geo.MatchCountries(item.Title + " " + item.Text)
	if len(matches) > 0 {
		return matches[0], true
	}
	return geo.Country{}, false
}

func (b *Builder) addItem(g *Graph, country geo.Country, item evidence.Item) {
	text := item.Title + ". " + item.Text
	temporal := TemporalAnnotation{
		PublishedAt:    item.PublishedAt,
		EventDate:      item.PublishedAt,
		DataCutoff:     time.Now(),
		ValidityWindow: defaultValidity,
	}

	// Geographic attachment: fuzzy match against the country's gazetteer,
	// falling back to the country-level node.
	countryKey := g.AddArea(geo.AdminArea{Name: country.Name, Level: geo.LevelCountry})
	areaKey := countryKey
	scope := geo.LevelCountry
	if area, ok := b.Gazetteer(country.ISO3).Match(text, b.fuzzyMin); ok {
		areaKey = g.AddArea(area)
		scope = area.Level
		if area.Parent != "" && area.Level == geo.LevelAdmin2 {
			g.AddArea(geo.AdminArea{Name: area.Parent, Level: geo.LevelAdmin1, Parent: country.Name})
		}
	}

	var hazardKey string
	if rule, ok := b.tax.ClassifyHazard(text); ok {
		hazardKey = g.AddHazard(HazardNode{Name: rule.Name, Category: rule.Category, Temporal: temporal})
	}

	figures := ExtractFigures(text)
	severity := severityFromFigures(figures)

	// One observation per triggered impact type. Only the primary type
	// carries figures so the same count is never attributed twice.
	for i, impactType := range b.tax.ClassifyImpacts(text) {
		obs := ImpactObservation{
			ImpactType: impactType,
			Severity:   severity,
			AdminArea:  areaKey,
			Scope:      scope,
			SourceURL:  item.URL,
			Temporal:   temporal,
		}
		if i == 0 {
			obs.Figures = figures
		}
		g.Impacts = append(g.Impacts, obs)
	}

	for _, needType := range b.tax.ClassifyNeeds(text) {
		g.Needs = append(g.Needs, NeedStatement{
			NeedType:    needType,
			Description: item.Title,
			Severity:    severity,
			AdminArea:   areaKey,
			SourceURL:   item.URL,
			Temporal:    temporal,
		})
	}

	for _, sentence := range splitSentences(text) {
		if actorType, ok := b.classifyResponse(sentence); ok {
			g.Responses = append(g.Responses, ResponseAction{
				Actor:       extractActorName(sentence, b.tax, actorType),
				ActorType:   actorType,
				Description: strings.TrimSpace(sentence),
				SourceURL:   item.URL,
				Temporal:    temporal,
			})
		}
		if horizon, ok := classifyRiskHorizon(sentence); ok {
			g.Risks = append(g.Risks, RiskStatement{
				Horizon:     horizon,
				Description: strings.TrimSpace(sentence),
				HazardRef:   hazardKey,
				SourceURL:   item.URL,
				Temporal:    temporal,
			})
		}
	}
}

// severityFromFigures maps impact magnitude to the 1-5 scale.
func severityFromFigures(figures map[string]int) int {
	deaths := figures[MetricDeaths]
	displaced := figures[MetricDisplaced]
	affected := figures[MetricAffected]

	switch {
	case deaths >= 100 || displaced >= 100_000 || affected >= 500_000:
		return 5
	case deaths >= 25 || displaced >= 10_000 || affected >= 100_000:
		return 4
	case deaths >= 5 || displaced >= 1_000 || affected >= 10_000:
		return 3
	case len(figures) > 0:
		return 2
	default:
		return 1
	}
}

// responseVerbs gate response-action detection so "the government was
// criticized" does not read as a response.
var responseVerbs = []string{
	"deployed", "dispatched", "distributed", "delivered", "mobilized",
	"mobilised", "launched", "airlifted", "evacuating", "providing",
	"responding", "activated", "allocated", "released funds",
}

func (b *Builder) classifyResponse(sentence string) (ActorType, bool) {
	actorType, ok := b.tax.ClassifyActor(sentence)
	if !ok {
		return "", false
	}
	lower := strings.ToLower(sentence)
	for _, verb := range responseVerbs {
		if strings.Contains(lower, verb) {
			return actorType, true
		}
	}
	return "", false
}

// extractActorName pulls the matched actor keyword as the display name.
func extractActorName(sentence string, tax *Taxonomy, actorType ActorType) string {
	lower := strings.ToLower(sentence)
	for _, rule := range tax.Actors {
		if rule.Type != actorType {
			continue
		}
		for _, kw := range rule.Keywords {
			if idx := strings.Index(lower, kw); idx >= 0 {
				return strings.TrimSpace(sentence[idx : idx+len(kw)])
			}
		}
	}
	return string(actorType)
}

// riskMarkers signal forward-looking statements.
var riskMarkers = []string{
	"risk of", "at risk", "expected to", "forecast", "warning", "could",
	"likely to", "threat of", "may worsen", "anticipated",
}

func classifyRiskHorizon(sentence string) (RiskHorizon, bool) {
	lower := strings.ToLower(sentence)

	marked := false
	for _, marker := range riskMarkers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return "", false
	}

	switch {
	case strings.Contains(lower, "coming days") || strings.Contains(lower, "48 hours") ||
		strings.Contains(lower, "72 hours") || strings.Contains(lower, "this week") ||
		strings.Contains(lower, "next few days"):
		return HorizonImmediate, true
	case strings.Contains(lower, "coming weeks") || strings.Contains(lower, "next month") ||
		strings.Contains(lower, "in the weeks"):
		return HorizonShort, true
	case strings.Contains(lower, "coming months") || strings.Contains(lower, "season") ||
		strings.Contains(lower, "next quarter"):
		return HorizonMedium, true
	default:
		// Forward-looking with no explicit window reads as near-term.
		return HorizonImmediate, true
	}
}

// splitSentences is a cheap period/semicolon splitter, good enough for
// sitrep prose.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', ';', '!', '?':
			if i > start {
				sentences = append(sentences, text[start:i])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
