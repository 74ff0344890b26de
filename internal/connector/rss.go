// Package connector provides the evidence sources a cycle fetches from:
// RSS/Atom feeds and the ReliefWeb reports API.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

const userAgent = "reliefwatch/1.0 (+https://github.com/reliefwatch/reliefwatch)"

// RSSConnector fetches an RSS or Atom feed.
type RSSConnector struct {
	name    string
	url     string
	tier    evidence.SourceTier
	country string // optional ISO3 hint applied to every item
	client  *http.Client
}

// NewRSS creates an RSS connector. An empty tier defaults to media.
func NewRSS(name, url string, tier evidence.SourceTier, country string) *RSSConnector {
	if tier == 0 {
		tier = evidence.TierMedia
	}
	return &RSSConnector{
		name:    name,
		url:     url,
		tier:    tier,
		country: country,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RSSConnector) Name() string {
	return c.name
}

func (c *RSSConnector) Tier() evidence.SourceTier {
	return c.tier
}

// Fetch retrieves and parses the feed. Does NOT normalize items - the
// caller decides what enters the pipeline.
func (c *RSSConnector) Fetch(ctx context.Context) ([]evidence.Item, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	items := make([]evidence.Item, 0, len(feed.Items))
	for _, feedItem := range feed.Items {
		items = append(items, c.convert(feedItem, now))
	}
	return items, nil
}

func (c *RSSConnector) convert(feedItem *gofeed.Item, fetchTime time.Time) evidence.Item {
	var published *time.Time
	if feedItem.PublishedParsed != nil {
		published = feedItem.PublishedParsed
	} else if feedItem.UpdatedParsed != nil {
		published = feedItem.UpdatedParsed
	}

	text := feedItem.Description
	if feedItem.Content != "" && len(feedItem.Content) > len(text) {
		text = feedItem.Content
	}

	item := evidence.Item{
		Connector:   c.name,
		Title:       feedItem.Title,
		Text:        evidence.StripHTML(text),
		URL:         feedItem.Link,
		Tier:        c.tier,
		PublishedAt: published,
		FetchedAt:   fetchTime,
	}
	if c.country != "" {
		item.CountryCandidates = []string{c.country}
	}
	return item
}
