package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MaxDuplicateRate:        0.10,
		MinTraceableRate:        0.95,
		MaxConnectorFailureRate: 0.25,
		MinLLMEnrichmentRate:    0.50,
		MinCitationCoverageRate: 0.80,
	}
}

func findResult(t *testing.T, report Report, check Check) Result {
	t.Helper()
	for _, r := range report.Results {
		if r.Check == check {
			return r
		}
	}
	t.Fatalf("check %s missing from report", check)
	return Result{}
}

func TestEvaluateAllPass(t *testing.T) {
	stats := CycleStats{
		ItemsFetched:       100,
		ItemsDuplicate:     5,
		ItemsTraceable:     98,
		ConnectorsTotal:    8,
		ConnectorsFailed:   1,
		EventsTotal:        10,
		EventsNew:          7,
		EventsUpdated:      3,
		EventsEnriched:     8,
		EventsWithCitation: 9,
		EnrichmentEnabled:  true,
	}

	report := Evaluate(stats, defaultThresholds())
	require.True(t, report.Pass)
	for _, r := range report.Results {
		assert.Equal(t, VerdictPass, r.Verdict, "check %s", r.Check)
	}
	assert.Empty(t, report.Failed())
}

func TestDuplicateRateBoundaryIsInclusive(t *testing.T) {
	th := defaultThresholds()

	// Exactly at the limit: 10 of 100 = 0.10 passes.
	at := Evaluate(CycleStats{ItemsFetched: 100, ItemsDuplicate: 10, ItemsTraceable: 100, ConnectorsTotal: 1, EventsTotal: 1, EventsWithCitation: 1}, th)
	assert.Equal(t, VerdictPass, findResult(t, at, CheckDuplicateRate).Verdict)

	// Just over: 11 of 100 fails.
	over := Evaluate(CycleStats{ItemsFetched: 100, ItemsDuplicate: 11, ItemsTraceable: 100, ConnectorsTotal: 1, EventsTotal: 1, EventsWithCitation: 1}, th)
	r := findResult(t, over, CheckDuplicateRate)
	assert.Equal(t, VerdictFail, r.Verdict)
	assert.False(t, over.Pass)
}

func TestMinBoundaryIsInclusive(t *testing.T) {
	stats := CycleStats{
		ItemsFetched:       100,
		ItemsTraceable:     95, // exactly 0.95
		ConnectorsTotal:    4,
		EventsTotal:        10,
		EventsNew:          10,
		EventsEnriched:     5, // exactly 0.50
		EventsWithCitation: 8, // exactly 0.80
		EnrichmentEnabled:  true,
	}
	report := Evaluate(stats, defaultThresholds())
	assert.Equal(t, VerdictPass, findResult(t, report, CheckTraceableRate).Verdict)
	assert.Equal(t, VerdictPass, findResult(t, report, CheckLLMEnrichmentRate).Verdict)
	assert.Equal(t, VerdictPass, findResult(t, report, CheckCitationCoverageRate).Verdict)
}

func TestZeroEventsYieldsUnknown(t *testing.T) {
	stats := CycleStats{
		ItemsFetched:      0,
		ConnectorsTotal:   4,
		EventsTotal:       0,
		EnrichmentEnabled: true,
	}
	report := Evaluate(stats, defaultThresholds())

	assert.Equal(t, VerdictUnknown, findResult(t, report, CheckDuplicateRate).Verdict)
	assert.Equal(t, VerdictUnknown, findResult(t, report, CheckTraceableRate).Verdict)
	assert.Equal(t, VerdictUnknown, findResult(t, report, CheckLLMEnrichmentRate).Verdict)
	assert.Equal(t, VerdictUnknown, findResult(t, report, CheckCitationCoverageRate).Verdict)

	// Unknown never fails the cycle.
	assert.True(t, report.Pass)
}

func TestEnrichmentDisabledYieldsUnknown(t *testing.T) {
	stats := CycleStats{
		ItemsFetched:       10,
		ItemsTraceable:     10,
		ConnectorsTotal:    2,
		EventsTotal:        3,
		EventsEnriched:     0,
		EventsWithCitation: 3,
		EnrichmentEnabled:  false,
	}
	report := Evaluate(stats, defaultThresholds())

	r := findResult(t, report, CheckLLMEnrichmentRate)
	assert.Equal(t, VerdictUnknown, r.Verdict)
	assert.Equal(t, "enrichment disabled", r.Detail)
	assert.True(t, report.Pass)
}

func TestEnrichmentRateIgnoresSuppressedEvents(t *testing.T) {
	th := defaultThresholds()

	// A stable cycle: every event suppressed, nothing sent to the model.
	// The rate cannot be judged and must not fail.
	stable := Evaluate(CycleStats{
		ItemsFetched:       10,
		ItemsTraceable:     10,
		ConnectorsTotal:    2,
		EventsTotal:        3,
		EventsEnriched:     0,
		EventsWithCitation: 3,
		EnrichmentEnabled:  true,
	}, th)
	r := findResult(t, stable, CheckLLMEnrichmentRate)
	assert.Equal(t, VerdictUnknown, r.Verdict)
	assert.Equal(t, "no emitted events", r.Detail)
	assert.True(t, stable.Pass)

	// Mixed cycle: 2 of 5 events suppressed, both emitted ones enriched.
	// The rate is 2/2, not 2/5.
	mixed := Evaluate(CycleStats{
		ItemsFetched:       10,
		ItemsTraceable:     10,
		ConnectorsTotal:    2,
		EventsTotal:        5,
		EventsNew:          1,
		EventsUpdated:      1,
		EventsEnriched:     2,
		EventsWithCitation: 5,
		EnrichmentEnabled:  true,
	}, th)
	r = findResult(t, mixed, CheckLLMEnrichmentRate)
	assert.Equal(t, VerdictPass, r.Verdict)
	assert.InDelta(t, 1.0, r.Measured, 1e-9)
}

func TestConnectorFailureRateFails(t *testing.T) {
	stats := CycleStats{
		ItemsFetched:       10,
		ItemsTraceable:     10,
		ConnectorsTotal:    4,
		ConnectorsFailed:   2, // 0.50 > 0.25
		EventsTotal:        2,
		EventsWithCitation: 2,
		EnrichmentEnabled:  false,
	}
	report := Evaluate(stats, defaultThresholds())

	r := findResult(t, report, CheckConnectorFailureRate)
	require.Equal(t, VerdictFail, r.Verdict)
	assert.InDelta(t, 0.5, r.Measured, 1e-9)
	assert.False(t, report.Pass)
	assert.Len(t, report.Failed(), 1)
}
