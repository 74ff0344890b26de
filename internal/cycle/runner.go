// Package cycle orchestrates one monitoring pass: fetch, deduplicate, build
// ontologies, deduplicate figures, enrich, evaluate gates, and persist
// everything atomically.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/config"
	"github.com/reliefwatch/reliefwatch/internal/dedup"
	"github.com/reliefwatch/reliefwatch/internal/enrich"
	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/figures"
	"github.com/reliefwatch/reliefwatch/internal/gates"
	"github.com/reliefwatch/reliefwatch/internal/logging"
	"github.com/reliefwatch/reliefwatch/internal/metrics"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
	"github.com/reliefwatch/reliefwatch/internal/store"
	"github.com/reliefwatch/reliefwatch/internal/work"
)

// Status is a cycle's final outcome.
type Status string

const (
	StatusOK      Status = "ok"      // all connectors healthy, events produced
	StatusPartial Status = "partial" // some connectors failed, cycle still ran
	StatusEmpty   Status = "empty"   // no evidence this cycle
)

// Summary reports what one cycle did.
type Summary struct {
	Status      Status
	CycleID     int64
	Items       int
	Events      int
	NewEvents   int
	Updated     int
	Suppressed  int
	Enriched    int
	GatesPassed bool
	Duration    time.Duration
}

// Runner executes monitoring cycles. Construct once, call Run per cycle;
// Run is not safe for concurrent invocation.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	fetcher  *work.Fetcher
	builder  *ontology.Builder
	enricher *enrich.Enricher
	tax      *ontology.Taxonomy
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a cycle runner. The enricher may be nil when enrichment is
// disabled; metrics may be nil in tests.
func New(cfg *config.Config, s *store.Store, fetcher *work.Fetcher, tax *ontology.Taxonomy, enricher *enrich.Enricher, m *metrics.Metrics) *Runner {
	if tax == nil {
		tax = ontology.DefaultTaxonomy()
	}
	builder := ontology.NewBuilder(tax, cfg.Cycle.FuzzyMatchMin)
	if cfg.GazetteerFile != "" {
		builder.UseGazetteerFile(cfg.GazetteerFile)
	}
	return &Runner{
		cfg:      cfg,
		store:    s,
		fetcher:  fetcher,
		builder:  builder,
		enricher: enricher,
		tax:      tax,
		metrics:  m,
		now:      time.Now,
	}
}

// Run executes one full cycle. Persistence is all-or-nothing: any storage
// failure rolls back both the cycle artifacts and the dedup state.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := r.now()
	logging.Info("cycle starting")

	// Fetch and normalize.
	items, diagnostics := r.fetcher.FetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	connectorsFailed := 0
	for _, d := range diagnostics {
		if d.Failed {
			connectorsFailed++
			if r.metrics != nil {
				r.metrics.ConnectorFailures.WithLabelValues(d.Connector).Inc()
			}
		}
	}

	// Deduplicate against cross-cycle state.
	state := r.store.StateStore()
	engine := dedup.NewEngine(state, r.tax, r.cfg.Cycle.RecencyWindow, r.cfg.Cycle.FuzzyMatchMin)
	result := engine.Process(items)

	// Per-country ontology graphs and canonical figures.
	graphs := r.builder.Build(items)
	figuresByCountry := make(map[string][]figures.Canonical, len(graphs))
	for _, graph := range graphs {
		figuresByCountry[graph.CountryISO3] = figures.Deduplicate(graph.Impacts)
	}

	// Enrich emitted events; unchanged events keep their stored annotations.
	outcomes, err := r.enrichEvents(ctx, result.Events, items)
	if err != nil {
		state.Rollback()
		return Summary{}, err
	}

	summary := r.summarize(result, outcomes, len(items), started)
	stats := r.buildStats(result, outcomes, items, diagnostics, connectorsFailed)
	report := gates.Evaluate(stats, gates.Thresholds{
		MaxDuplicateRate:        r.cfg.Gates.MaxDuplicateRate,
		MinTraceableRate:        r.cfg.Gates.MinTraceableRate,
		MaxConnectorFailureRate: r.cfg.Gates.MaxConnectorFailureRate,
		MinLLMEnrichmentRate:    r.cfg.Gates.MinLLMEnrichmentRate,
		MinCitationCoverageRate: r.cfg.Gates.MinCitationCoverageRate,
	})
	summary.GatesPassed = report.Pass

	status := r.status(items, connectorsFailed, len(diagnostics))
	summary.Status = status

	// Persist atomically: cycle artifacts and dedup state share one
	// transaction, so a failure leaves neither behind.
	cycleID, err := r.persist(started, string(status), items, outcomes, graphs, figuresByCountry, stats, report, diagnostics, state)
	if err != nil {
		state.Rollback()
		return Summary{}, err
	}
	summary.CycleID = cycleID
	summary.Duration = r.now().Sub(started)

	r.record(summary, result, outcomes, report)

	logging.Info("cycle complete",
		"status", summary.Status,
		"items", summary.Items,
		"events", summary.Events,
		"new", summary.NewEvents,
		"updated", summary.Updated,
		"suppressed", summary.Suppressed,
		"gates_pass", summary.GatesPassed,
		"duration", summary.Duration)
	return summary, nil
}

// enrichEvents runs LLM enrichment over emitted events only. Unchanged
// events pass through untouched; a disabled or missing enricher yields
// rule-engine fallbacks for everything.
func (r *Runner) enrichEvents(ctx context.Context, events []dedup.EventRecord, items []evidence.Item) ([]enrich.Outcome, error) {
	textByURL := make(map[string]string, len(items))
	for _, item := range items {
		if item.URL != "" {
			textByURL[item.URL] = item.Text
		}
	}

	var inputs []enrich.Input
	var passthrough []enrich.Outcome
	for _, event := range events {
		if !event.Emitted() || r.enricher == nil || !r.cfg.Enrichment.Enabled {
			passthrough = append(passthrough, enrich.Outcome{Event: event, Mode: enrich.ModeFallback})
			continue
		}

		sourceTexts := make(map[string]string, len(event.SourceURLs))
		for _, url := range event.SourceURLs {
			if text, ok := textByURL[url]; ok {
				sourceTexts[url] = text
			}
		}
		inputs = append(inputs, enrich.Input{Event: event, SourceTexts: sourceTexts})
	}

	if len(inputs) == 0 {
		return passthrough, nil
	}

	enriched, err := r.enricher.Enrich(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("enrichment: %w", err)
	}
	return append(passthrough, enriched...), nil
}

func (r *Runner) persist(
	started time.Time,
	status string,
	items []evidence.Item,
	outcomes []enrich.Outcome,
	graphs []*ontology.Graph,
	figuresByCountry map[string][]figures.Canonical,
	stats gates.CycleStats,
	report gates.Report,
	diagnostics []evidence.ConnectorDiagnostic,
	state *store.StateStore,
) (int64, error) {
	tx, err := r.store.BeginCycle(started)
	if err != nil {
		return 0, err
	}

	upserts := make([]store.EventUpsert, 0, len(outcomes))
	for _, out := range outcomes {
		upserts = append(upserts, store.EventUpsert{
			Event:   out.Event,
			Summary: out.Summary,
			Needs:   out.Needs,
		})
	}

	if err := tx.SaveItems(items); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.SaveEvents(upserts); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.SaveSnapshots(graphs); err != nil {
		tx.Rollback()
		return 0, err
	}
	for iso3, figs := range figuresByCountry {
		if err := tx.SaveFigures(iso3, figs); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.SaveState(state); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Finish(status, stats, report, diagnostics); err != nil {
		return 0, err
	}
	return tx.CycleID(), nil
}

func (r *Runner) summarize(result dedup.Result, outcomes []enrich.Outcome, itemCount int, started time.Time) Summary {
	s := Summary{
		Items:  itemCount,
		Events: len(result.Events),
	}
	for _, event := range result.Events {
		switch event.State {
		case dedup.StateNew:
			s.NewEvents++
		case dedup.StateUpdated:
			s.Updated++
		case dedup.StateUnchanged:
			s.Suppressed++
		}
	}
	for _, out := range outcomes {
		if out.Mode == enrich.ModeEnriched {
			s.Enriched++
		}
	}
	return s
}

func (r *Runner) buildStats(
	result dedup.Result,
	outcomes []enrich.Outcome,
	items []evidence.Item,
	diagnostics []evidence.ConnectorDiagnostic,
	connectorsFailed int,
) gates.CycleStats {
	stats := gates.CycleStats{
		ItemsFetched:      len(items),
		ConnectorsTotal:   len(diagnostics),
		ConnectorsFailed:  connectorsFailed,
		EventsTotal:       len(result.Events),
		EnrichmentEnabled: r.cfg.Enrichment.Enabled && r.enricher != nil,
	}

	for _, item := range items {
		if item.Traceable() {
			stats.ItemsTraceable++
		}
	}

	// Items beyond one per event were folded into an existing event.
	itemsClustered := 0
	for _, event := range result.Events {
		itemsClustered += len(event.ItemIDs)
		switch event.State {
		case dedup.StateNew:
			stats.EventsNew++
		case dedup.StateUpdated:
			stats.EventsUpdated++
		}
	}
	if itemsClustered > len(result.Events) {
		stats.ItemsDuplicate = itemsClustered - len(result.Events)
	}

	for _, out := range outcomes {
		if out.Mode == enrich.ModeEnriched {
			stats.EventsEnriched++
		}
		if len(out.Event.Citations) > 0 {
			stats.EventsWithCitation++
		}
	}
	return stats
}

func (r *Runner) status(items []evidence.Item, connectorsFailed, connectorsTotal int) Status {
	switch {
	case len(items) == 0:
		return StatusEmpty
	case connectorsFailed > 0 && connectorsFailed < connectorsTotal:
		return StatusPartial
	default:
		return StatusOK
	}
}

func (r *Runner) record(summary Summary, result dedup.Result, outcomes []enrich.Outcome, report gates.Report) {
	if r.metrics == nil {
		return
	}

	r.metrics.CyclesTotal.WithLabelValues(string(summary.Status)).Inc()
	r.metrics.CycleDuration.Observe(summary.Duration.Seconds())
	r.metrics.ItemsFetched.Add(float64(summary.Items))
	r.metrics.ItemsSkipped.Add(float64(result.Skipped))

	for _, event := range result.Events {
		r.metrics.EventsByState.WithLabelValues(string(event.State)).Inc()
	}
	for _, out := range outcomes {
		r.metrics.EnrichmentTotal.WithLabelValues(string(out.Mode)).Inc()
		r.metrics.ClaimsDropped.Add(float64(out.ClaimsDropped))
	}
	for _, failed := range report.Failed() {
		r.metrics.GateFailures.WithLabelValues(string(failed.Check)).Inc()
	}
}
