package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reliefwatch/reliefwatch/internal/config"
	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Africa News</title>
<item>
	<title>Madagascar: flooding displaces thousands</title>
	<link>https://news.example/mdg-floods</link>
	<description>&lt;p&gt;Heavy rains left &lt;b&gt;48,000&lt;/b&gt; displaced.&lt;/p&gt;</description>
	<pubDate>Mon, 02 Mar 2026 08:00:00 GMT</pubDate>
</item>
<item>
	<title>Cyclone nears Mozambique coast</title>
	<link>https://news.example/moz-cyclone</link>
	<description>Landfall expected near Beira.</description>
</item>
</channel>
</rss>`

const sampleReliefWeb = `{
	"data": [
		{
			"fields": {
				"title": "Madagascar: Flash Update No. 1",
				"body": "<p>Flooding in Alaotra-Mangoro. 48,000 people displaced.</p>",
				"url": "https://reliefweb.int/report/mdg-1",
				"date": {"created": "2026-03-02T08:00:00+00:00"},
				"primary_country": {"iso3": "MDG"}
			}
		}
	]
}`

func TestRSSFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewRSS("rss:africa", srv.URL, evidence.TierMedia, "")
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	first := items[0]
	if first.Title != "Madagascar: flooding displaces thousands" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Text != "Heavy rains left 48,000 displaced." {
		t.Errorf("HTML not stripped: %q", first.Text)
	}
	if first.URL != "https://news.example/mdg-floods" {
		t.Errorf("url = %q", first.URL)
	}
	if first.PublishedAt == nil {
		t.Error("published time not parsed")
	}
	if items[1].PublishedAt != nil {
		t.Error("missing pubDate should stay nil")
	}
}

func TestRSSFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRSS("rss:africa", srv.URL, evidence.TierMedia, "")
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("want error on HTTP 503")
	}
}

func TestRSSCountryHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	c := NewRSS("rss:mdg", srv.URL, evidence.TierMedia, "MDG")
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if len(item.CountryCandidates) != 1 || item.CountryCandidates[0] != "MDG" {
			t.Errorf("country hint missing: %v", item.CountryCandidates)
		}
	}
}

func TestReliefWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleReliefWeb))
	}))
	defer srv.Close()

	c := NewReliefWeb("reliefweb", srv.URL)
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item := items[0]
	if item.Tier != evidence.TierOfficial {
		t.Errorf("tier = %d, want official", item.Tier)
	}
	if item.Text != "Flooding in Alaotra-Mangoro. 48,000 people displaced." {
		t.Errorf("body not stripped: %q", item.Text)
	}
	if len(item.CountryCandidates) != 1 || item.CountryCandidates[0] != "MDG" {
		t.Errorf("country candidates = %v", item.CountryCandidates)
	}
	if item.PublishedAt == nil {
		t.Error("created date not parsed")
	}
}

func TestFromConfig(t *testing.T) {
	sources := []config.SourceConfig{
		{Type: "rss", Name: "rss:bbc", URL: "https://feeds.example/rss", Tier: 2},
		{Type: "reliefweb", Name: "reliefweb"},
		{Type: "carrier-pigeon", Name: "nope"},
	}

	connectors := FromConfig(sources)
	if len(connectors) != 2 {
		t.Fatalf("got %d connectors, want 2 (unknown type skipped)", len(connectors))
	}
	if connectors[0].Name() != "rss:bbc" || connectors[1].Name() != "reliefweb" {
		t.Errorf("names = %s, %s", connectors[0].Name(), connectors[1].Name())
	}
}
