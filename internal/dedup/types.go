// Package dedup fingerprints evidence, tracks event state across monitoring
// cycles, and classifies candidate events as new, updated, or unchanged.
package dedup

import (
	"time"
)

// ChangeState tags what happened to an event in the current cycle.
type ChangeState string

const (
	StateNew       ChangeState = "new"
	StateUpdated   ChangeState = "updated"
	StateUnchanged ChangeState = "unchanged"
)

// Citation binds a claim to an exact quote span in source text.
type Citation struct {
	URL        string `json:"url"`
	Quote      string `json:"quote"`
	QuoteStart int    `json:"quote_start"`
	QuoteEnd   int    `json:"quote_end"`
}

// EventRecord is a deduplicated disaster event. Created on first sighting of
// a fingerprint, mutated on cycles that bring new corroborating evidence,
// never deleted.
type EventRecord struct {
	EventID              string      `json:"event_id"`
	Country              string      `json:"country"`
	CountryISO3          string      `json:"country_iso3"`
	DisasterType         string      `json:"disaster_type"`
	Severity             int         `json:"severity"`   // 1-5
	Confidence           int         `json:"confidence"` // 1-5
	CorroborationSources int         `json:"corroboration_sources"`
	LLMEnriched          bool        `json:"llm_enriched"`
	Citations            []Citation  `json:"citations,omitempty"`
	Title                string      `json:"title"`
	SourceURLs           []string    `json:"source_urls,omitempty"`
	FirstSeenAt          time.Time   `json:"first_seen_at"`
	LastChangedAt        time.Time   `json:"last_changed_at"`
	State                ChangeState `json:"state"`
	Fingerprint          string      `json:"fingerprint"`

	// ItemIDs are the evidence items backing this event in this cycle.
	ItemIDs []string `json:"item_ids,omitempty"`
}

// Emitted reports whether the event belongs in alert/report output for this
// cycle. Unchanged events are suppressed; their metadata still updates.
func (e EventRecord) Emitted() bool {
	return e.State != StateUnchanged
}

// StateEntry is the per-event persistence record used for cross-cycle change
// detection. Lifecycle spans the whole monitoring history: loaded at cycle
// start, rewritten at cycle end.
type StateEntry struct {
	Fingerprint   string    `json:"fingerprint"`
	EventID       string    `json:"event_id"`
	Country       string    `json:"country"`
	CountryISO3   string    `json:"country_iso3"`
	DisasterType  string    `json:"disaster_type"`
	SimHash       uint64    `json:"simhash"`
	ContentDigest string    `json:"content_digest"`
	Sources       []string  `json:"sources"` // distinct connectors seen so far
	Corroboration int       `json:"corroboration"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastChangedAt time.Time `json:"last_changed_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// StateStore is the one piece of mutable shared state across a cycle.
// A store is opened for a cycle, read and written by the single engine
// goroutine that owns it, then committed or rolled back. Implementations do
// not need to be safe for concurrent use; no two cycles may run against the
// same store at once.
type StateStore interface {
	// Lookup returns the entry for a fingerprint.
	Lookup(fingerprint string) (StateEntry, bool)

	// Entries returns all entries, for fuzzy matching against history.
	Entries() []StateEntry

	// Put inserts or replaces an entry.
	Put(entry StateEntry)

	// Commit persists all writes made since open.
	Commit() error

	// Rollback discards all writes made since open.
	Rollback() error
}

// MemoryStateStore is an in-memory StateStore for tests and dry runs.
type MemoryStateStore struct {
	committed map[string]StateEntry
	pending   map[string]StateEntry
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		committed: make(map[string]StateEntry),
		pending:   make(map[string]StateEntry),
	}
}

func (m *MemoryStateStore) Lookup(fingerprint string) (StateEntry, bool) {
	if e, ok := m.pending[fingerprint]; ok {
		return e, true
	}
	e, ok := m.committed[fingerprint]
	return e, ok
}

func (m *MemoryStateStore) Entries() []StateEntry {
	seen := make(map[string]bool, len(m.pending))
	entries := make([]StateEntry, 0, len(m.committed)+len(m.pending))
	for fp, e := range m.pending {
		seen[fp] = true
		entries = append(entries, e)
	}
	for fp, e := range m.committed {
		if !seen[fp] {
			entries = append(entries, e)
		}
	}
	return entries
}

func (m *MemoryStateStore) Put(entry StateEntry) {
	m.pending[entry.Fingerprint] = entry
}

func (m *MemoryStateStore) Commit() error {
	for fp, e := range m.pending {
		m.committed[fp] = e
	}
	m.pending = make(map[string]StateEntry)
	return nil
}

func (m *MemoryStateStore) Rollback() error {
	m.pending = make(map[string]StateEntry)
	return nil
}
