package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
)

type stubProvider struct {
	responses []string
	errs      []error
	calls     int
	available bool
}

func (s *stubProvider) Name() string    { return "stub" }
func (s *stubProvider) Available() bool { return s.available }

func (s *stubProvider) Generate(ctx context.Context, req Request) (Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return Response{Content: s.responses[i]}, nil
	}
	return Response{}, errors.New("no scripted response")
}

func newTestEnricher(p Provider) *Enricher {
	e := NewEnricher(p, Options{RequestsPerMin: 6000})
	e.sleep = func(time.Duration) {}
	return e
}

func testInput(eventID string) Input {
	text := "Flooding in Sofala province displaced 48,000 people. Roads to Beira remain cut."
	return Input{
		Event: dedup.EventRecord{
			EventID:      eventID,
			Country:      "Mozambique",
			CountryISO3:  "MOZ",
			DisasterType: "flood",
			Severity:     3,
			Confidence:   3,
			Title:        "Mozambique flooding",
			SourceURLs:   []string{"https://src.example/1"},
		},
		SourceTexts: map[string]string{"https://src.example/1": text},
	}
}

func enrichmentJSON(t *testing.T, enrichments []EventEnrichment) string {
	t.Helper()
	data, err := json.Marshal(enrichments)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestEnrichValidClaimKept(t *testing.T) {
	input := testInput("ev-1")
	text := input.SourceTexts["https://src.example/1"]
	quote := "displaced 48,000 people"
	start := strings.Index(text, quote)

	resp := enrichmentJSON(t, []EventEnrichment{{
		EventID:    "ev-1",
		Summary:    "Severe flooding in Sofala with mass displacement.",
		Severity:   4,
		Confidence: 4,
		Needs:      []string{"shelter"},
		Claims: []Claim{{
			Text: "48,000 people have been displaced",
			Citation: dedup.Citation{
				URL:        "https://src.example/1",
				Quote:      quote,
				QuoteStart: start,
				QuoteEnd:   start + len(quote),
			},
		}},
	}})

	p := &stubProvider{available: true, responses: []string{resp}}
	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}

	out := outcomes[0]
	if out.Mode != ModeEnriched {
		t.Fatalf("mode = %s, want enriched", out.Mode)
	}
	if !out.Event.LLMEnriched {
		t.Error("llm_enriched not set")
	}
	if out.Event.Severity != 4 || out.Event.Confidence != 4 {
		t.Errorf("severity/confidence = %d/%d, want 4/4", out.Event.Severity, out.Event.Confidence)
	}
	if len(out.Claims) != 1 || out.ClaimsDropped != 0 {
		t.Errorf("claims=%d dropped=%d, want 1/0", len(out.Claims), out.ClaimsDropped)
	}
}

func TestEnrichOffByOneSpanDropped(t *testing.T) {
	input := testInput("ev-1")
	text := input.SourceTexts["https://src.example/1"]
	quote := "displaced 48,000 people"
	start := strings.Index(text, quote)

	resp := enrichmentJSON(t, []EventEnrichment{{
		EventID:    "ev-1",
		Summary:    "Severe flooding in Sofala.",
		Severity:   4,
		Confidence: 4,
		Claims: []Claim{{
			Text: "mass displacement",
			Citation: dedup.Citation{
				URL:        "https://src.example/1",
				Quote:      quote,
				QuoteStart: start + 1, // shifted by one character
				QuoteEnd:   start + 1 + len(quote),
			},
		}},
	}})

	p := &stubProvider{available: true, responses: []string{resp}}
	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}

	out := outcomes[0]
	if out.Mode != ModeEnriched {
		t.Fatalf("mode = %s; a bad claim drops the claim, not the enrichment", out.Mode)
	}
	if len(out.Claims) != 0 || out.ClaimsDropped != 1 {
		t.Errorf("claims=%d dropped=%d, want 0/1", len(out.Claims), out.ClaimsDropped)
	}
	if len(out.Event.Citations) != 0 {
		t.Error("rejected citation must not reach the event record")
	}
}

func TestEnrichInvalidSeverityFallsBack(t *testing.T) {
	input := testInput("ev-1")
	resp := enrichmentJSON(t, []EventEnrichment{{
		EventID:    "ev-1",
		Summary:    "Flooding.",
		Severity:   9, // out of range
		Confidence: 3,
	}})

	p := &stubProvider{available: true, responses: []string{resp}}
	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}

	out := outcomes[0]
	if out.Mode != ModeFallback {
		t.Fatalf("mode = %s, want fallback", out.Mode)
	}
	if out.Event.LLMEnriched {
		t.Error("fallback event must not claim enrichment")
	}
	if out.Event.Severity != 3 {
		t.Errorf("severity = %d, want rule-engine 3", out.Event.Severity)
	}
}

func TestEnrichRetriesOnceThenFallsBack(t *testing.T) {
	input := testInput("ev-1")
	p := &stubProvider{
		available: true,
		errs:      []error{errors.New("boom"), errors.New("boom again")},
	}

	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", p.calls)
	}
	if outcomes[0].Mode != ModeFallback {
		t.Errorf("mode = %s, want fallback after retry exhausted", outcomes[0].Mode)
	}
}

func TestEnrichRetrySucceeds(t *testing.T) {
	input := testInput("ev-1")
	resp := enrichmentJSON(t, []EventEnrichment{{
		EventID:    "ev-1",
		Summary:    "Flooding in Sofala.",
		Severity:   3,
		Confidence: 3,
	}})

	p := &stubProvider{
		available: true,
		errs:      []error{errors.New("transient")},
		responses: []string{"", resp},
	}

	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Mode != ModeEnriched {
		t.Errorf("mode = %s, want enriched after retry", outcomes[0].Mode)
	}
}

func TestEnrichUnavailableProviderFallsBack(t *testing.T) {
	input := testInput("ev-1")
	p := &stubProvider{available: false}

	outcomes, err := newTestEnricher(p).Enrich(context.Background(), []Input{input})
	if err != nil {
		t.Fatal(err)
	}
	if p.calls != 0 {
		t.Error("unavailable provider must not be called")
	}
	if outcomes[0].Mode != ModeFallback {
		t.Errorf("mode = %s, want fallback", outcomes[0].Mode)
	}
}

func TestParseBatchStripsFences(t *testing.T) {
	content := "```json\n[{\"event_id\":\"ev-1\",\"summary\":\"x\",\"severity\":2,\"confidence\":2}]\n```"
	enrichments, err := ParseBatch(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(enrichments) != 1 || enrichments[0].EventID != "ev-1" {
		t.Errorf("unexpected parse result: %+v", enrichments)
	}
}

func TestVerifyCitation(t *testing.T) {
	texts := map[string]string{"https://src.example/1": "At least 12 dead after floods."}

	tests := []struct {
		name    string
		cit     dedup.Citation
		wantErr bool
	}{
		{
			name:    "exact span",
			cit:     dedup.Citation{URL: "https://src.example/1", Quote: "12 dead", QuoteStart: 9, QuoteEnd: 16},
			wantErr: false,
		},
		{
			name:    "unknown url",
			cit:     dedup.Citation{URL: "https://other.example", Quote: "12 dead", QuoteStart: 9, QuoteEnd: 16},
			wantErr: true,
		},
		{
			name:    "span out of bounds",
			cit:     dedup.Citation{URL: "https://src.example/1", Quote: "12 dead", QuoteStart: 9, QuoteEnd: 999},
			wantErr: true,
		},
		{
			name:    "paraphrased quote",
			cit:     dedup.Citation{URL: "https://src.example/1", Quote: "a dozen dead", QuoteStart: 9, QuoteEnd: 16},
			wantErr: true,
		},
		{
			name:    "empty quote",
			cit:     dedup.Citation{URL: "https://src.example/1", Quote: "", QuoteStart: 0, QuoteEnd: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyCitation(tt.cit, texts)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyCitation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
