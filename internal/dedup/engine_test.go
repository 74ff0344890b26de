package dedup

import (
	"testing"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

func mustItem(t *testing.T, connector, title, text, url string, tier evidence.SourceTier, published time.Time) evidence.Item {
	t.Helper()
	item, err := evidence.Normalize(evidence.Item{
		Connector:   connector,
		Title:       title,
		Text:        text,
		URL:         url,
		Tier:        tier,
		PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return item
}

func newTestEngine(state StateStore) *Engine {
	e := NewEngine(state, nil, 72*time.Hour, 0.8)
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	return e
}

func TestProcessNewEvent(t *testing.T) {
	state := NewMemoryStateStore()
	e := newTestEngine(state)
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	item := mustItem(t, "reliefweb",
		"Madagascar: severe flooding in Alaotra-Mangoro",
		"Heavy rains left 48,000 displaced around Amparafaravola. Authorities declared a state of emergency.",
		"https://reliefweb.int/report/1", evidence.TierOfficial, published)

	result := e.Process([]evidence.Item{item})
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(result.Events))
	}
	ev := result.Events[0]
	if ev.State != StateNew {
		t.Errorf("state = %s, want new", ev.State)
	}
	if ev.CountryISO3 != "MDG" || ev.DisasterType != "flood" {
		t.Errorf("event = %s/%s, want MDG/flood", ev.CountryISO3, ev.DisasterType)
	}
	if ev.CorroborationSources != 1 {
		t.Errorf("corroboration = %d, want 1", ev.CorroborationSources)
	}
	if ev.Severity < 4 {
		t.Errorf("severity = %d, want >= 4 (state of emergency + 48k displaced)", ev.Severity)
	}
	if ev.Confidence < 3 {
		t.Errorf("confidence = %d, want >= 3 for a tier-1 source", ev.Confidence)
	}
	if !ev.Emitted() {
		t.Error("new event must be emitted")
	}
}

func TestProcessUnchangedSuppression(t *testing.T) {
	state := NewMemoryStateStore()
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	item := mustItem(t, "reliefweb",
		"Madagascar: severe flooding in Alaotra-Mangoro",
		"Heavy rains left 48,000 displaced around Amparafaravola.",
		"https://reliefweb.int/report/1", evidence.TierOfficial, published)

	first := newTestEngine(state).Process([]evidence.Item{item})
	if err := state.Commit(); err != nil {
		t.Fatal(err)
	}
	second := newTestEngine(state).Process([]evidence.Item{item})

	if len(first.Events) != 1 || len(second.Events) != 1 {
		t.Fatalf("want exactly one event per cycle, got %d then %d", len(first.Events), len(second.Events))
	}
	if second.Events[0].State != StateUnchanged {
		t.Errorf("second cycle state = %s, want unchanged", second.Events[0].State)
	}
	if second.Events[0].Emitted() {
		t.Error("unchanged event must be suppressed from emission")
	}
	if first.Events[0].EventID != second.Events[0].EventID {
		t.Error("re-sighted event must keep its event id")
	}
	// Metadata still updates on the suppressed event.
	if second.Events[0].CorroborationSources < first.Events[0].CorroborationSources {
		t.Error("corroboration must never decrease")
	}
}

func TestProcessFuzzyCrossSourceMerge(t *testing.T) {
	state := NewMemoryStateStore()
	e := newTestEngine(state)
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	a := mustItem(t, "reliefweb",
		"Cyclone batters Madagascar east coast leaving thousands displaced",
		"The cyclone made landfall near Toamasina with destructive winds, leaving thousands displaced across the region.",
		"https://reliefweb.int/report/2", evidence.TierOfficial, published)
	b := mustItem(t, "rss:bbc-africa",
		"Cyclone batters Madagascar east coast, thousands displaced",
		"The cyclone made landfall near Toamasina with destructive winds, leaving thousands displaced across the area.",
		"https://bbc.example/news/3", evidence.TierMedia, published)

	result := e.Process([]evidence.Item{a, b})
	if len(result.Events) != 1 {
		t.Fatalf("near-identical stories from two sources should merge, got %d events", len(result.Events))
	}
	if result.Events[0].CorroborationSources != 2 {
		t.Errorf("corroboration = %d, want 2", result.Events[0].CorroborationSources)
	}
	if result.Events[0].Confidence < 4 {
		t.Errorf("confidence = %d, want >= 4 with two corroborating tier-1/2 sources", result.Events[0].Confidence)
	}
}

func TestProcessDistinctCountriesNeverMerge(t *testing.T) {
	state := NewMemoryStateStore()
	e := newTestEngine(state)
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	a := mustItem(t, "rss:x",
		"Niger: flooding displaces thousands",
		"Flooding along the river displaced thousands of residents.",
		"https://x.example/1", evidence.TierMedia, published)
	b := mustItem(t, "rss:y",
		"Nigeria: flooding displaces thousands",
		"Flooding along the river displaced thousands of residents.",
		"https://y.example/2", evidence.TierMedia, published)

	result := e.Process([]evidence.Item{a, b})
	if len(result.Events) != 2 {
		t.Fatalf("Niger and Nigeria events must stay separate, got %d", len(result.Events))
	}
}

func TestProcessUpdatedOnNewCorroboration(t *testing.T) {
	state := NewMemoryStateStore()
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	a := mustItem(t, "reliefweb",
		"Mozambique floods: death toll rises",
		"Flooding in Sofala province. Death toll rises to 40.",
		"https://reliefweb.int/report/4", evidence.TierOfficial, published)

	first := newTestEngine(state).Process([]evidence.Item{a})
	if err := state.Commit(); err != nil {
		t.Fatal(err)
	}

	b := mustItem(t, "rss:bbc-africa",
		"Mozambique floods: death toll rises further",
		"Flooding in Sofala province. Death toll rises to 45 according to authorities.",
		"https://bbc.example/news/5", evidence.TierMedia, published.Add(6*time.Hour))

	second := newTestEngine(state).Process([]evidence.Item{a, b})
	if len(second.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(second.Events))
	}
	if second.Events[0].State != StateUpdated {
		t.Errorf("state = %s, want updated (new corroborating source)", second.Events[0].State)
	}
	if second.Events[0].CorroborationSources <= first.Events[0].CorroborationSources {
		t.Error("corroboration should grow with a new source")
	}
}

func TestProcessSkipsCountrylessItems(t *testing.T) {
	state := NewMemoryStateStore()
	e := newTestEngine(state)
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	item := mustItem(t, "rss:x", "Storm forms over open ocean",
		"Forecasters are monitoring a system far from land.",
		"https://x.example/9", evidence.TierMedia, published)

	result := e.Process([]evidence.Item{item})
	if len(result.Events) != 0 || result.Skipped != 1 {
		t.Errorf("events=%d skipped=%d, want 0/1", len(result.Events), result.Skipped)
	}
}

func TestBaseCitationSpanIsExact(t *testing.T) {
	state := NewMemoryStateStore()
	e := newTestEngine(state)
	published := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	text := "Flooding hit the district overnight. At least 12 dead and 500 displaced. Rescue is ongoing."
	item := mustItem(t, "reliefweb", "Madagascar flooding", text,
		"https://reliefweb.int/report/7", evidence.TierOfficial, published)

	result := e.Process([]evidence.Item{item})
	if len(result.Events) != 1 || len(result.Events[0].Citations) == 0 {
		t.Fatal("expected a base citation")
	}
	cit := result.Events[0].Citations[0]
	if cit.Quote != item.Text[cit.QuoteStart:cit.QuoteEnd] {
		t.Errorf("citation span mismatch: %q vs %q", cit.Quote, item.Text[cit.QuoteStart:cit.QuoteEnd])
	}
}
