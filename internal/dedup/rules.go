package dedup

import (
	"strings"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
)

// The rule engine is the safety net under enrichment: it must produce a
// severity and confidence for every event, even with the LLM layer disabled
// or failing.

// severityMarkers are ordered strongest-first; the first marker found in the
// text sets the keyword floor for severity.
var severityMarkers = []struct {
	Marker   string
	Severity int
}{
	{"catastrophic", 5},
	{"catastrophe", 5},
	{"unprecedented", 5},
	{"state of emergency", 4},
	{"devastating", 4},
	{"devastated", 4},
	{"major disaster", 4},
	{"mass casualties", 4},
	{"severe", 3},
	{"widespread", 3},
	{"emergency", 3},
	{"significant", 2},
}

// DeriveSeverity computes the 1-5 severity from keyword markers and
// extracted figures; the larger signal wins.
func DeriveSeverity(text string, figures map[string]int) int {
	severity := 1

	lower := strings.ToLower(text)
	for _, rule := range severityMarkers {
		if strings.Contains(lower, rule.Marker) {
			severity = rule.Severity
			break
		}
	}

	if s := figureSeverity(figures); s > severity {
		severity = s
	}
	return severity
}

func figureSeverity(figures map[string]int) int {
	deaths := figures[ontology.MetricDeaths]
	displaced := figures[ontology.MetricDisplaced]
	affected := figures[ontology.MetricAffected]

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

// DeriveConfidence maps corroboration count and best source tier to the 1-5
// confidence scale. A single unverified source never exceeds 2; any tier-1 or
// tier-2 source guarantees at least 3.
func DeriveConfidence(corroboration int, bestTier evidence.SourceTier) int {
	switch {
	case corroboration >= 3 && bestTier == evidence.TierOfficial:
		return 5
	case corroboration >= 2 && bestTier <= evidence.TierMedia:
		return 4
	case bestTier <= evidence.TierMedia:
		return 3
	case corroboration >= 2:
		return 3
	default:
		return 2
	}
}
