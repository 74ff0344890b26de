package evidence

import (
	"context"
	"time"
)

// SourceTier ranks how much weight a connector's reporting carries.
// Tier 1 is official/multilateral (UN OCHA, government agencies), tier 2 is
// established media and NGO sitreps, tier 3 is everything else.
type SourceTier int

const (
	TierOfficial SourceTier = 1
	TierMedia    SourceTier = 2
	TierOther    SourceTier = 3
)

// Item is one normalized unit of source evidence.
// This is the unified type that flows through the pipeline; connectors are
// responsible for producing it. Immutable once created within a cycle.
type Item struct {
	ID                string // stable fingerprint, set by Normalize
	Connector         string // "reliefweb", "gdacs", "rss:bbc-africa"
	Title             string
	Text              string
	URL               string
	CountryCandidates []string   // connector hints, may be empty
	PublishedAt       *time.Time // nil when the source carried no date
	Tier              SourceTier
	FetchedAt         time.Time
}

// Traceable reports whether the item carries enough provenance to back a
// citation: a URL and a timestamp.
func (it Item) Traceable() bool {
	return it.URL != "" && it.PublishedAt != nil
}

// Connector is the interface all evidence connectors implement.
type Connector interface {
	// Name returns the connector identifier, e.g. "reliefweb"
	Name() string

	// Tier returns the source tier of this connector
	Tier() SourceTier

	// Fetch retrieves the latest raw items from this connector
	Fetch(ctx context.Context) ([]Item, error)
}

// ConnectorDiagnostic records what happened to one connector in one cycle.
type ConnectorDiagnostic struct {
	Connector string   `json:"connector"`
	Attempted bool     `json:"attempted"`
	Healthy   bool     `json:"healthy"`
	Failed    bool     `json:"failed"`
	Fetched   int      `json:"fetched"`
	Matched   int      `json:"matched"` // items that survived validation
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
