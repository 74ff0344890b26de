// Package gates evaluates per-cycle quality thresholds over pipeline output.
// Gate results are advisory: a failing gate flags the cycle for review, it
// never blocks persistence.
package gates

import (
	"fmt"

	"github.com/reliefwatch/reliefwatch/internal/logging"
)

// Verdict is the outcome of one gate check.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictUnknown Verdict = "unknown" // not enough data to judge
)

// Check names the individual gates.
type Check string

const (
	CheckDuplicateRate        Check = "duplicate_rate"
	CheckTraceableRate        Check = "traceable_rate"
	CheckConnectorFailureRate Check = "connector_failure_rate"
	CheckLLMEnrichmentRate    Check = "llm_enrichment_rate"
	CheckCitationCoverageRate Check = "citation_coverage_rate"
)

// Thresholds hold the configured gate limits. Rate comparisons are inclusive:
// a measured rate exactly at its limit passes.
type Thresholds struct {
	MaxDuplicateRate        float64
	MinTraceableRate        float64
	MaxConnectorFailureRate float64
	MinLLMEnrichmentRate    float64
	MinCitationCoverageRate float64
}

// CycleStats are the raw counters one cycle produces for gate evaluation.
type CycleStats struct {
	ItemsFetched       int // items delivered by connectors after normalization
	ItemsDuplicate     int // items folded into an existing event this cycle
	ItemsTraceable     int // items with a resolvable source URL
	ConnectorsTotal    int
	ConnectorsFailed   int
	EventsTotal        int
	EventsNew          int
	EventsUpdated      int
	EventsEnriched     int // events the LLM layer enriched
	EventsWithCitation int // events carrying at least one valid citation
	EnrichmentEnabled  bool
}

// Result is one gate's evaluation.
type Result struct {
	Check     Check   `json:"check"`
	Verdict   Verdict `json:"verdict"`
	Measured  float64 `json:"measured"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

// Report is the full gate evaluation for a cycle.
type Report struct {
	Results []Result `json:"results"`
	Pass    bool     `json:"pass"` // true iff no check failed
}

// Evaluate runs every gate against the cycle's stats. Checks that cannot be
// judged return unknown and do not fail the cycle.
func Evaluate(stats CycleStats, th Thresholds) Report {
	results := []Result{
		duplicateRate(stats, th),
		traceableRate(stats, th),
		connectorFailureRate(stats, th),
		enrichmentRate(stats, th),
		citationCoverage(stats, th),
	}

	pass := true
	for _, r := range results {
		if r.Verdict == VerdictFail {
			pass = false
			logging.Warn("quality gate failed", "check", r.Check, "measured", r.Measured, "threshold", r.Threshold)
		}
	}

	return Report{Results: results, Pass: pass}
}

func duplicateRate(stats CycleStats, th Thresholds) Result {
	r := Result{Check: CheckDuplicateRate, Threshold: th.MaxDuplicateRate}
	if stats.ItemsFetched == 0 {
		r.Verdict = VerdictUnknown
		r.Detail = "no items fetched"
		return r
	}
	r.Measured = float64(stats.ItemsDuplicate) / float64(stats.ItemsFetched)
	r.Verdict = verdictMax(r.Measured, th.MaxDuplicateRate)
	return r
}

func traceableRate(stats CycleStats, th Thresholds) Result {
	r := Result{Check: CheckTraceableRate, Threshold: th.MinTraceableRate}
	if stats.ItemsFetched == 0 {
		r.Verdict = VerdictUnknown
		r.Detail = "no items fetched"
		return r
	}
	r.Measured = float64(stats.ItemsTraceable) / float64(stats.ItemsFetched)
	r.Verdict = verdictMin(r.Measured, th.MinTraceableRate)
	return r
}

func connectorFailureRate(stats CycleStats, th Thresholds) Result {
	r := Result{Check: CheckConnectorFailureRate, Threshold: th.MaxConnectorFailureRate}
	if stats.ConnectorsTotal == 0 {
		r.Verdict = VerdictUnknown
		r.Detail = "no connectors ran"
		return r
	}
	r.Measured = float64(stats.ConnectorsFailed) / float64(stats.ConnectorsTotal)
	r.Verdict = verdictMax(r.Measured, th.MaxConnectorFailureRate)
	return r
}

func enrichmentRate(stats CycleStats, th Thresholds) Result {
	r := Result{Check: CheckLLMEnrichmentRate, Threshold: th.MinLLMEnrichmentRate}
	if !stats.EnrichmentEnabled {
		r.Verdict = VerdictUnknown
		r.Detail = "enrichment disabled"
		return r
	}
	// Suppressed events keep their stored annotations and are never sent to
	// the model, so only emitted events count toward the rate.
	emitted := stats.EventsNew + stats.EventsUpdated
	if emitted == 0 {
		r.Verdict = VerdictUnknown
		r.Detail = "no emitted events"
		return r
	}
	r.Measured = float64(stats.EventsEnriched) / float64(emitted)
	r.Verdict = verdictMin(r.Measured, th.MinLLMEnrichmentRate)
	return r
}

func citationCoverage(stats CycleStats, th Thresholds) Result {
	r := Result{Check: CheckCitationCoverageRate, Threshold: th.MinCitationCoverageRate}
	if stats.EventsTotal == 0 {
		r.Verdict = VerdictUnknown
		r.Detail = "no events"
		return r
	}
	r.Measured = float64(stats.EventsWithCitation) / float64(stats.EventsTotal)
	r.Verdict = verdictMin(r.Measured, th.MinCitationCoverageRate)
	return r
}

// verdictMax passes when measured <= limit. The boundary is inclusive.
func verdictMax(measured, limit float64) Verdict {
	if measured <= limit {
		return VerdictPass
	}
	return VerdictFail
}

// verdictMin passes when measured >= limit. The boundary is inclusive.
func verdictMin(measured, limit float64) Verdict {
	if measured >= limit {
		return VerdictPass
	}
	return VerdictFail
}

// Summary renders a short one-line status for logs.
func (r Report) Summary() string {
	failed := 0
	unknown := 0
	for _, res := range r.Results {
		switch res.Verdict {
		case VerdictFail:
			failed++
		case VerdictUnknown:
			unknown++
		}
	}
	return fmt.Sprintf("%d checks, %d failed, %d unknown", len(r.Results), failed, unknown)
}

// Failed returns the results that failed, for diagnostics.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Verdict == VerdictFail {
			out = append(out, res)
		}
	}
	return out
}
