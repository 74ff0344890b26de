package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

const defaultReliefWebEndpoint = "https://api.reliefweb.int/v1/reports"

// reliefWebLimit caps how many reports one fetch requests.
const reliefWebLimit = 50

// ReliefWebConnector fetches recent disaster reports from the ReliefWeb API.
type ReliefWebConnector struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewReliefWeb creates a ReliefWeb connector. An empty endpoint uses the
// public API; tests point it at a local server.
func NewReliefWeb(name, endpoint string) *ReliefWebConnector {
	if name == "" {
		name = "reliefweb"
	}
	if endpoint == "" {
		endpoint = defaultReliefWebEndpoint
	}
	return &ReliefWebConnector{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ReliefWebConnector) Name() string {
	return c.name
}

func (c *ReliefWebConnector) Tier() evidence.SourceTier {
	return evidence.TierOfficial
}

// reliefWebQuery is the POST body the reports endpoint expects.
type reliefWebQuery struct {
	Limit  int      `json:"limit"`
	Sort   []string `json:"sort"`
	Fields struct {
		Include []string `json:"include"`
	} `json:"fields"`
}

type reliefWebResponse struct {
	Data []struct {
		Fields struct {
			Title string `json:"title"`
			Body  string `json:"body"`
			URL   string `json:"url"`
			Date  struct {
				Created time.Time `json:"created"`
			} `json:"date"`
			PrimaryCountry struct {
				ISO3 string `json:"iso3"`
			} `json:"primary_country"`
		} `json:"fields"`
	} `json:"data"`
}

// Fetch retrieves the most recent reports, newest first.
func (c *ReliefWebConnector) Fetch(ctx context.Context) ([]evidence.Item, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := reliefWebQuery{
		Limit: reliefWebLimit,
		Sort:  []string{"date.created:desc"},
	}
	query.Fields.Include = []string{"title", "body", "url", "date.created", "primary_country.iso3"}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed reliefWebResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	now := time.Now()
	items := make([]evidence.Item, 0, len(parsed.Data))
	for _, report := range parsed.Data {
		fields := report.Fields

		item := evidence.Item{
			Connector: c.name,
			Title:     fields.Title,
			Text:      evidence.StripHTML(fields.Body),
			URL:       fields.URL,
			Tier:      evidence.TierOfficial,
			FetchedAt: now,
		}
		if !fields.Date.Created.IsZero() {
			created := fields.Date.Created
			item.PublishedAt = &created
		}
		if fields.PrimaryCountry.ISO3 != "" {
			item.CountryCandidates = []string{fields.PrimaryCountry.ISO3}
		}
		items = append(items, item)
	}
	return items, nil
}
