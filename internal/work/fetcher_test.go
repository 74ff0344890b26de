package work

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

type fakeConnector struct {
	name  string
	tier  evidence.SourceTier
	items []evidence.Item
	err   error
	delay time.Duration
}

func (f *fakeConnector) Name() string              { return f.name }
func (f *fakeConnector) Tier() evidence.SourceTier { return f.tier }

func (f *fakeConnector) Fetch(ctx context.Context) ([]evidence.Item, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

func TestFetchAllCollectsAndNormalizes(t *testing.T) {
	conns := []evidence.Connector{
		&fakeConnector{
			name: "reliefweb",
			tier: evidence.TierOfficial,
			items: []evidence.Item{
				{Title: "Flooding in Madagascar", Text: "  48,000   displaced  ", URL: "https://a.example/1"},
				{Title: "", Text: ""}, // malformed, skipped
			},
		},
		&fakeConnector{
			name: "rss:bbc-africa",
			tier: evidence.TierMedia,
			items: []evidence.Item{
				{Title: "Cyclone nears coast", Text: "Landfall expected.", URL: "https://b.example/2"},
			},
		},
	}

	f := NewFetcher(conns, time.Second, 2)
	items, diags := f.FetchAll(context.Background())

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.ID == "" {
			t.Error("item missing fingerprint id")
		}
		if item.Connector == "" {
			t.Error("item missing connector")
		}
	}

	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(diags))
	}
	for _, d := range diags {
		if !d.Attempted || !d.Healthy {
			t.Errorf("diagnostic %s = %+v, want attempted and healthy", d.Connector, d)
		}
	}

	var reliefweb evidence.ConnectorDiagnostic
	for _, d := range diags {
		if d.Connector == "reliefweb" {
			reliefweb = d
		}
	}
	if reliefweb.Fetched != 2 || reliefweb.Matched != 1 {
		t.Errorf("reliefweb fetched/matched = %d/%d, want 2/1", reliefweb.Fetched, reliefweb.Matched)
	}
	if len(reliefweb.Warnings) != 1 {
		t.Errorf("malformed item should leave a warning, got %v", reliefweb.Warnings)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	conns := []evidence.Connector{
		&fakeConnector{name: "broken", tier: evidence.TierMedia, err: errors.New("connection refused")},
		&fakeConnector{
			name:  "working",
			tier:  evidence.TierOfficial,
			items: []evidence.Item{{Title: "Report", Text: "Some text.", URL: "https://a.example/1"}},
		},
	}

	f := NewFetcher(conns, time.Second, 2)
	items, diags := f.FetchAll(context.Background())

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 from the working connector", len(items))
	}

	var broken evidence.ConnectorDiagnostic
	for _, d := range diags {
		if d.Connector == "broken" {
			broken = d
		}
	}
	if !broken.Failed || broken.Healthy {
		t.Errorf("broken diagnostic = %+v", broken)
	}
	if len(broken.Errors) != 1 {
		t.Errorf("want 1 error recorded, got %v", broken.Errors)
	}
}

func TestFetchAllTimesOutSlowConnector(t *testing.T) {
	conns := []evidence.Connector{
		&fakeConnector{name: "slow", tier: evidence.TierMedia, delay: 500 * time.Millisecond},
	}

	f := NewFetcher(conns, 20*time.Millisecond, 1)
	start := time.Now()
	items, diags := f.FetchAll(context.Background())

	if time.Since(start) > 300*time.Millisecond {
		t.Error("fetch did not respect the timeout")
	}
	if len(items) != 0 {
		t.Errorf("got %d items from timed-out connector", len(items))
	}
	if !diags[0].Failed {
		t.Errorf("timeout should mark the connector failed: %+v", diags[0])
	}
}

func TestDiagnosticRing(t *testing.T) {
	r := NewDiagnosticRing(3)
	for i := 0; i < 5; i++ {
		r.Add(evidence.ConnectorDiagnostic{Connector: fmt.Sprintf("c%d", i)})
	}

	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}

	snap := r.Snapshot()
	want := []string{"c4", "c3", "c2"}
	for i, name := range want {
		if snap[i].Connector != name {
			t.Errorf("snapshot[%d] = %s, want %s", i, snap[i].Connector, name)
		}
	}
}
