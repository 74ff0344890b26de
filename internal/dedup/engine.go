package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/geo"
	"github.com/reliefwatch/reliefwatch/internal/logging"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
)

// simHashChars bounds how much text feeds the fuzzy hash.
const simHashChars = 400

// Engine performs deduplication and change detection for one cycle.
// Not safe for concurrent use: a single goroutine owns the engine and its
// state store for the duration of a cycle.
type Engine struct {
	state         StateStore
	tax           *ontology.Taxonomy
	recencyWindow time.Duration
	fuzzyMin      float64
	now           func() time.Time
}

// Result is the outcome of one dedup pass.
type Result struct {
	Events  []EventRecord
	Skipped int // items that resolved to no country
}

// NewEngine creates a dedup engine over an opened state store.
func NewEngine(state StateStore, tax *ontology.Taxonomy, recencyWindow time.Duration, fuzzyMin float64) *Engine {
	if tax == nil {
		tax = ontology.DefaultTaxonomy()
	}
	if fuzzyMin <= 0 {
		fuzzyMin = 0.8
	}
	if recencyWindow <= 0 {
		recencyWindow = 72 * time.Hour
	}
	return &Engine{
		state:         state,
		tax:           tax,
		recencyWindow: recencyWindow,
		fuzzyMin:      fuzzyMin,
		now:           time.Now,
	}
}

// candidate is one evidence item annotated for event matching.
type candidate struct {
	item         evidence.Item
	country      geo.Country
	disasterType string
	hash         uint64
	recent       bool
}

// Process maps this cycle's evidence items onto event records, tagging each
// event new, updated, or unchanged against the prior cycle's state.
func (e *Engine) Process(items []evidence.Item) Result {
	now := e.now()
	var result Result

	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		c, ok := e.annotate(item, now)
		if !ok {
			result.Skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	clusters := e.cluster(candidates)

	for _, cluster := range clusters {
		result.Events = append(result.Events, e.resolve(cluster, now))
	}

	// Stable output order regardless of map iteration above.
	sort.Slice(result.Events, func(i, j int) bool {
		return result.Events[i].Fingerprint < result.Events[j].Fingerprint
	})

	return result
}

func (e *Engine) annotate(item evidence.Item, now time.Time) (candidate, bool) {
	country, ok := e.resolveCountry(item)
	if !ok {
		logging.Debug("dedup: no country for item", "item", item.ID, "connector", item.Connector)
		return candidate{}, false
	}

	disasterType := "unknown"
	if rule, ok := e.tax.ClassifyHazard(item.Title + " " + item.Text); ok {
		disasterType = rule.Name
	}

	text := item.Title + " " + item.Text
	if len(text) > simHashChars {
		text = text[:simHashChars]
	}

	recent := true
	if item.PublishedAt != nil && now.Sub(*item.PublishedAt) > e.recencyWindow {
		recent = false
	}

	return candidate{
		item:         item,
		country:      country,
		disasterType: disasterType,
		hash:         SimHash(text),
		recent:       recent,
	}, true
}

func (e *Engine) resolveCountry(item evidence.Item) (geo.Country, bool) {
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

// cluster groups same-event candidates within the cycle. Two items are the
// same event iff same country, same disaster type, and either identical
// fingerprints or fuzzy text similarity above the threshold while both fall
// inside the recency window.
func (e *Engine) cluster(candidates []candidate) [][]candidate {
	var clusters [][]candidate

	for _, c := range candidates {
		placed := false
		for i := range clusters {
			if e.sameEvent(clusters[i][0], c) {
				clusters[i] = append(clusters[i], c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []candidate{c})
		}
	}

	return clusters
}

func (e *Engine) sameEvent(a, b candidate) bool {
	if a.country.ISO3 != b.country.ISO3 || a.disasterType != b.disasterType {
		return false
	}
	if a.item.ID == b.item.ID {
		return true
	}
	if !a.recent || !b.recent {
		return false
	}
	return SimilarityScore(a.hash, b.hash) >= e.fuzzyMin
}

// resolve matches a cluster against state and produces the event record.
func (e *Engine) resolve(cluster []candidate, now time.Time) EventRecord {
	entry, found := e.matchState(cluster, now)

	sources := e.clusterSources(cluster)
	digest := clusterDigest(cluster)
	text := clusterText(cluster)
	figures := ontology.ExtractFigures(text)

	var record EventRecord
	if !found {
		entry = StateEntry{
			Fingerprint:  cluster[0].item.ID,
			EventID:      uuid.NewString(),
			Country:      cluster[0].country.Name,
			CountryISO3:  cluster[0].country.ISO3,
			DisasterType: cluster[0].disasterType,
			FirstSeenAt:  now,
		}
		record.State = StateNew
	} else {
		merged := unionSources(entry.Sources, sources)
		if len(merged) > len(entry.Sources) || digest != entry.ContentDigest {
			record.State = StateUpdated
		} else {
			record.State = StateUnchanged
		}
		sources = merged
	}

	// Update state metadata even for unchanged events: corroboration and
	// last-seen always move forward.
	entry.SimHash = cluster[0].hash
	entry.ContentDigest = digest
	entry.Sources = unionSources(entry.Sources, sources)
	entry.Corroboration = len(entry.Sources)
	entry.LastSeenAt = now
	if record.State != StateUnchanged {
		entry.LastChangedAt = now
	}
	e.state.Put(entry)

	bestTier := evidence.TierOther
	for _, c := range cluster {
		if c.item.Tier < bestTier && c.item.Tier >= evidence.TierOfficial {
			bestTier = c.item.Tier
		}
	}

	record.EventID = entry.EventID
	record.Fingerprint = entry.Fingerprint
	record.Country = entry.Country
	record.CountryISO3 = entry.CountryISO3
	record.DisasterType = entry.DisasterType
	record.Severity = DeriveSeverity(text, figures)
	record.Confidence = DeriveConfidence(entry.Corroboration, bestTier)
	record.CorroborationSources = entry.Corroboration
	record.Title = cluster[0].item.Title
	record.FirstSeenAt = entry.FirstSeenAt
	record.LastChangedAt = entry.LastChangedAt

	for _, c := range cluster {
		record.ItemIDs = append(record.ItemIDs, c.item.ID)
		if c.item.URL != "" {
			record.SourceURLs = appendUnique(record.SourceURLs, c.item.URL)
		}
	}

	if cit, ok := baseCitation(cluster); ok {
		record.Citations = append(record.Citations, cit)
	}

	return record
}

// matchState finds the prior-cycle entry for a cluster: exact fingerprint
// first, then fuzzy against recent same-country same-type history.
func (e *Engine) matchState(cluster []candidate, now time.Time) (StateEntry, bool) {
	for _, c := range cluster {
		if entry, ok := e.state.Lookup(c.item.ID); ok {
			return entry, true
		}
	}

	for _, entry := range e.state.Entries() {
		if entry.CountryISO3 != cluster[0].country.ISO3 || entry.DisasterType != cluster[0].disasterType {
			continue
		}
		if now.Sub(entry.LastSeenAt) > e.recencyWindow {
			continue
		}
		if SimilarityScore(entry.SimHash, cluster[0].hash) >= e.fuzzyMin {
			return entry, true
		}
	}

	return StateEntry{}, false
}

// clusterSources returns the distinct sources behind a cluster. An article
// relaying another outlet is credited to the original outlet.
func (e *Engine) clusterSources(cluster []candidate) []string {
	var sources []string
	for _, c := range cluster {
		source := c.item.Connector
		if original, ok := AttributedSource(c.item.Text); ok {
			source = original
		}
		sources = appendUnique(sources, source)
	}
	return sources
}

// baseCitation records the exact span of the first extracted figure sentence
// so even rule-engine events remain traceable to source text.
func baseCitation(cluster []candidate) (Citation, bool) {
	for _, c := range cluster {
		if c.item.URL == "" {
			continue
		}
		text := c.item.Text
		for _, sentence := range splitSentences(text) {
			if ontology.ExtractFigures(sentence) == nil {
				continue
			}
			start := strings.Index(text, sentence)
			if start < 0 {
				continue
			}
			return Citation{
				URL:        c.item.URL,
				Quote:      sentence,
				QuoteStart: start,
				QuoteEnd:   start + len(sentence),
			}, true
		}
	}
	return Citation{}, false
}

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

func clusterText(cluster []candidate) string {
	var parts []string
	for _, c := range cluster {
		parts = append(parts, c.item.Title, c.item.Text)
	}
	return strings.Join(parts, " ")
}

// clusterDigest hashes the sorted member fingerprints: new corroborating
// evidence changes the digest, re-fetched identical evidence does not.
func clusterDigest(cluster []candidate) string {
	ids := make([]string, 0, len(cluster))
	for _, c := range cluster {
		ids = append(ids, c.item.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return hex.EncodeToString(sum[:8])
}

func unionSources(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool)
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
