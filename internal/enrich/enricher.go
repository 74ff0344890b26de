package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
	"github.com/reliefwatch/reliefwatch/internal/logging"
)

const systemPrompt = `You are a disaster-monitoring analyst. For each event you receive, return a JSON array with one object per event:
{"event_id": "...", "summary": "...", "severity": 1-5, "confidence": 1-5, "needs": ["shelter", ...], "claims": [{"text": "...", "citation": {"url": "...", "quote": "...", "quote_start": 0, "quote_end": 0}}]}
Every claim must cite an exact, character-for-character substring of the provided source text, with quote_start and quote_end giving its byte offsets. Never paraphrase inside a quote. Return only the JSON array.`

// Mode tags how an event's final annotations were produced.
type Mode string

const (
	ModeEnriched Mode = "enriched" // model output passed validation
	ModeFallback Mode = "fallback" // rule-engine values stand
)

// Outcome is the enrichment result for one event.
type Outcome struct {
	Event         dedup.EventRecord
	Mode          Mode
	Summary       string
	Needs         []string
	Claims        []Claim
	ClaimsDropped int // claims rejected by the quote lock
}

// Input pairs an event with the source texts its citations are checked
// against, keyed by URL.
type Input struct {
	Event       dedup.EventRecord
	SourceTexts map[string]string
}

// Enricher runs batched LLM enrichment over a cycle's events. Failures never
// lose events: a batch that cannot be enriched falls back to the rule-engine
// annotations already on the record.
type Enricher struct {
	provider      Provider
	limiter       *rate.Limiter
	batchSize     int
	maxConcurrent int
	retryBackoff  time.Duration
	sleep         func(time.Duration)
}

// Options configure an Enricher. Zero values take defaults.
type Options struct {
	BatchSize      int
	MaxConcurrent  int
	RetryBackoff   time.Duration
	RequestsPerMin int
}

// NewEnricher creates an enricher over a provider.
func NewEnricher(provider Provider, opts Options) *Enricher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 15
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.RequestsPerMin <= 0 {
		opts.RequestsPerMin = 30
	}
	return &Enricher{
		provider:      provider,
		limiter:       rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMin)/60.0), 1),
		batchSize:     opts.BatchSize,
		maxConcurrent: opts.MaxConcurrent,
		retryBackoff:  opts.RetryBackoff,
		sleep:         time.Sleep,
	}
}

// Enrich processes all inputs in batches. The returned outcomes preserve
// input order; every input yields exactly one outcome.
func (e *Enricher) Enrich(ctx context.Context, inputs []Input) ([]Outcome, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if e.provider == nil || !e.provider.Available() {
		logging.Warn("enrichment provider unavailable, using rule-engine fallback", "events", len(inputs))
		return fallbackAll(inputs), nil
	}

	outcomes := make([]Outcome, len(inputs))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrent)
	var mu sync.Mutex

	for start := 0; start < len(inputs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := inputs[start:end]
		offset := start

		g.Go(func() error {
			results := e.enrichBatch(ctx, batch)
			mu.Lock()
			copy(outcomes[offset:offset+len(results)], results)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// enrichBatch runs one model call with a single retry, then validates each
// event's enrichment independently.
func (e *Enricher) enrichBatch(ctx context.Context, batch []Input) []Outcome {
	enrichments, err := e.callModel(ctx, batch)
	if err != nil {
		logging.Warn("enrichment batch failed, falling back", "events", len(batch), "error", err)
		return fallbackAll(batch)
	}

	byID := make(map[string]EventEnrichment, len(enrichments))
	for _, en := range enrichments {
		byID[en.EventID] = en
	}

	outcomes := make([]Outcome, len(batch))
	for i, input := range batch {
		outcomes[i] = e.apply(input, byID)
	}
	return outcomes
}

func (e *Enricher) callModel(ctx context.Context, batch []Input) ([]EventEnrichment, error) {
	prompt, err := buildPrompt(batch)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			e.sleep(e.retryBackoff)
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := e.provider.Generate(ctx, Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   prompt,
		})
		if err != nil {
			lastErr = err
			continue
		}

		enrichments, err := ParseBatch(resp.Content)
		if err != nil {
			lastErr = err
			continue
		}
		return enrichments, nil
	}
	return nil, lastErr
}

// apply validates one event's enrichment and locks its claims. Any
// validation failure reverts that event to its rule-engine annotations.
func (e *Enricher) apply(input Input, byID map[string]EventEnrichment) Outcome {
	event := input.Event

	en, ok := byID[event.EventID]
	if !ok {
		logging.Debug("no enrichment returned for event", "event", event.EventID)
		return fallback(input)
	}
	if err := en.Validate(event); err != nil {
		logging.Warn("enrichment failed validation", "event", event.EventID, "error", err)
		return fallback(input)
	}

	claims, dropped := LockClaims(en.Claims, input.SourceTexts)
	if dropped > 0 {
		logging.Debug("citation lock dropped claims", "event", event.EventID, "dropped", dropped)
	}

	event.Severity = en.Severity
	event.Confidence = en.Confidence
	event.LLMEnriched = true
	for _, claim := range claims {
		event.Citations = append(event.Citations, claim.Citation)
	}

	return Outcome{
		Event:         event,
		Mode:          ModeEnriched,
		Summary:       strings.TrimSpace(en.Summary),
		Needs:         en.Needs,
		Claims:        claims,
		ClaimsDropped: dropped,
	}
}

func fallback(input Input) Outcome {
	event := input.Event
	event.LLMEnriched = false
	return Outcome{Event: event, Mode: ModeFallback}
}

func fallbackAll(inputs []Input) []Outcome {
	outcomes := make([]Outcome, len(inputs))
	for i, input := range inputs {
		outcomes[i] = fallback(input)
	}
	return outcomes
}

// buildPrompt serializes a batch of events and their source texts.
func buildPrompt(batch []Input) (string, error) {
	type promptEvent struct {
		EventID      string            `json:"event_id"`
		Country      string            `json:"country"`
		DisasterType string            `json:"disaster_type"`
		Title        string            `json:"title"`
		Severity     int               `json:"rule_severity"`
		Confidence   int               `json:"rule_confidence"`
		Sources      map[string]string `json:"sources"`
	}

	events := make([]promptEvent, 0, len(batch))
	for _, input := range batch {
		events = append(events, promptEvent{
			EventID:      input.Event.EventID,
			Country:      input.Event.Country,
			DisasterType: input.Event.DisasterType,
			Title:        input.Event.Title,
			Severity:     input.Event.Severity,
			Confidence:   input.Event.Confidence,
			Sources:      input.SourceTexts,
		})
	}

	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}
	return "Events to analyze:\n" + string(data), nil
}
