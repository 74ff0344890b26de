// Package figures clusters numeric impact figures across sources into
// canonical, non-inflated totals.
package figures

import (
	"sort"
	"strings"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/geo"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
)

// asOfWindow is how far apart two readings of the same figure may be dated
// and still describe the same count.
const asOfWindow = 3 * 24 * time.Hour

// valueTolerance is the relative spread within which two values are treated
// as the same underlying count.
const valueTolerance = 0.10

// Canonical is a deduplicated figure with its supporting sources.
type Canonical struct {
	Metric      string         `json:"metric"`
	Value       int            `json:"value"`
	Unit        string         `json:"unit"`
	Scope       geo.AdminLevel `json:"scope"`
	AreaName    string         `json:"area_name"`
	SourceCount int            `json:"source_count"`
	AsOf        time.Time      `json:"as_of"`
	Sources     []string       `json:"sources"`
}

// observation is one (metric, value) reading flattened out of an impact node.
type observation struct {
	metric    string
	value     int
	scope     geo.AdminLevel
	areaKey   string // lowercased area name
	areaName  string
	asOf      time.Time
	sourceURL string
}

// Deduplicate clusters impact figures into canonical values. Two readings
// cluster iff they share metric, normalized area name and scope, their as-of
// dates are within the window, and their values are within tolerance of each
// other. The canonical value is the cluster max: summing near-identical
// reports from different outlets is how totals get inflated.
//
// Pure and deterministic: output is independent of input order.
func Deduplicate(impacts []ontology.ImpactObservation) []Canonical {
	obs := flatten(impacts)

	// Canonical processing order, so clustering never depends on how the
	// caller assembled the slice.
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].metric != obs[j].metric {
			return obs[i].metric < obs[j].metric
		}
		if obs[i].areaKey != obs[j].areaKey {
			return obs[i].areaKey < obs[j].areaKey
		}
		if obs[i].scope != obs[j].scope {
			return obs[i].scope < obs[j].scope
		}
		if !obs[i].asOf.Equal(obs[j].asOf) {
			return obs[i].asOf.Before(obs[j].asOf)
		}
		if obs[i].value != obs[j].value {
			return obs[i].value < obs[j].value
		}
		return obs[i].sourceURL < obs[j].sourceURL
	})

	var clusters [][]observation
	for _, o := range obs {
		placed := false
		for i := range clusters {
			if belongs(clusters[i], o) {
				clusters[i] = append(clusters[i], o)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []observation{o})
		}
	}

	result := make([]Canonical, 0, len(clusters))
	for _, cluster := range clusters {
		result = append(result, canonicalize(cluster))
	}
	return result
}

func flatten(impacts []ontology.ImpactObservation) []observation {
	var obs []observation
	for _, imp := range impacts {
		var asOf time.Time
		if imp.Temporal.PublishedAt != nil {
			asOf = *imp.Temporal.PublishedAt
		} else {
			asOf = imp.Temporal.DataCutoff
		}
		for metric, value := range imp.Figures {
			if value <= 0 {
				continue
			}
			obs = append(obs, observation{
				metric:    metric,
				value:     value,
				scope:     imp.Scope,
				areaKey:   strings.ToLower(strings.TrimSpace(imp.AdminArea)),
				areaName:  imp.AdminArea,
				asOf:      asOf,
				sourceURL: imp.SourceURL,
			})
		}
	}
	return obs
}

// belongs reports whether o clusters with every member of the cluster.
// All-pairs so a chain of 10% steps cannot drift the cluster arbitrarily far.
func belongs(cluster []observation, o observation) bool {
	for _, member := range cluster {
		if member.metric != o.metric {
			return false
		}
		if member.areaKey != o.areaKey {
			return false
		}
		// Never cluster across scopes: an admin1 total and an admin2
		// figure for a same-named area are different facts.
		if member.scope != o.scope {
			return false
		}
		if absDuration(member.asOf.Sub(o.asOf)) > asOfWindow {
			return false
		}
		if !withinTolerance(member.value, o.value) {
			return false
		}
	}
	return true
}

func withinTolerance(a, b int) bool {
	hi, lo := a, b
	if b > a {
		hi, lo = b, a
	}
	if hi == 0 {
		return true
	}
	return float64(hi-lo)/float64(hi) <= valueTolerance
}

func canonicalize(cluster []observation) Canonical {
	c := Canonical{
		Metric:   cluster[0].metric,
		Unit:     "people",
		Scope:    cluster[0].scope,
		AreaName: cluster[0].areaName,
	}
	if c.Metric == ontology.MetricHousesDamaged {
		c.Unit = "houses"
	}

	seen := make(map[string]bool)
	for _, o := range cluster {
		if o.value > c.Value {
			c.Value = o.value
		}
		if o.asOf.After(c.AsOf) {
			c.AsOf = o.asOf
		}
		if o.sourceURL != "" && !seen[o.sourceURL] {
			seen[o.sourceURL] = true
			c.Sources = append(c.Sources, o.sourceURL)
		}
	}
	c.SourceCount = len(cluster)
	return c
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
