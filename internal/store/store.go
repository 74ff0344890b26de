// Package store provides SQLite persistence for monitoring cycles, events,
// ontology snapshots, and deduplicated figures.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/figures"
	"github.com/reliefwatch/reliefwatch/internal/gates"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
)

// PersistenceError marks a fatal storage failure. The cycle that hits one is
// rolled back and the run aborts; partial writes never survive.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycle (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL DEFAULT 'running',
		items_fetched INTEGER DEFAULT 0,
		items_duplicate INTEGER DEFAULT 0,
		items_traceable INTEGER DEFAULT 0,
		connectors_total INTEGER DEFAULT 0,
		connectors_failed INTEGER DEFAULT 0,
		events_total INTEGER DEFAULT 0,
		events_new INTEGER DEFAULT 0,
		events_updated INTEGER DEFAULT 0,
		events_enriched INTEGER DEFAULT 0,
		events_with_citation INTEGER DEFAULT 0,
		enrichment_enabled INTEGER DEFAULT 0,
		gates_pass INTEGER,
		gates_json TEXT,
		diagnostics_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cycle_started ON cycle(started_at DESC);

	CREATE TABLE IF NOT EXISTS event (
		event_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		country TEXT,
		country_iso3 TEXT,
		disaster_type TEXT,
		severity INTEGER,
		confidence INTEGER,
		corroboration INTEGER,
		llm_enriched INTEGER DEFAULT 0,
		title TEXT,
		summary TEXT,
		state TEXT,
		citations_json TEXT,
		needs_json TEXT,
		source_urls_json TEXT,
		first_seen_at DATETIME,
		last_changed_at DATETIME,
		last_cycle_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_event_fingerprint ON event(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_event_country ON event(country_iso3);

	CREATE TABLE IF NOT EXISTS event_state (
		fingerprint TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		country TEXT,
		country_iso3 TEXT,
		disaster_type TEXT,
		simhash INTEGER,
		content_digest TEXT,
		sources_json TEXT,
		corroboration INTEGER,
		first_seen_at DATETIME,
		last_changed_at DATETIME,
		last_seen_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_event_state_country ON event_state(country_iso3, disaster_type);

	CREATE TABLE IF NOT EXISTS raw_item (
		id TEXT PRIMARY KEY,
		connector TEXT NOT NULL,
		title TEXT,
		text TEXT,
		url TEXT,
		tier INTEGER,
		published_at DATETIME,
		fetched_at DATETIME,
		cycle_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_raw_item_cycle ON raw_item(cycle_id);

	CREATE TABLE IF NOT EXISTS ontology_snapshot (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		graph_json TEXT NOT NULL,
		built_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_cycle ON ontology_snapshot(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_snapshot_country ON ontology_snapshot(country_iso3);

	CREATE TABLE IF NOT EXISTS snapshot_impact (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		impact_type TEXT NOT NULL,
		severity INTEGER,
		area_name TEXT,
		scope TEXT,
		figures_json TEXT,
		source_url TEXT,
		event_date DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_impact ON snapshot_impact(country_iso3, impact_type);

	CREATE TABLE IF NOT EXISTS snapshot_need (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		need_type TEXT NOT NULL,
		severity INTEGER,
		area_name TEXT,
		description TEXT,
		source_url TEXT,
		event_date DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_need ON snapshot_need(country_iso3, need_type);

	CREATE TABLE IF NOT EXISTS snapshot_risk (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		horizon TEXT NOT NULL,
		hazard TEXT,
		description TEXT,
		source_url TEXT,
		event_date DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_risk ON snapshot_risk(country_iso3, horizon);

	CREATE TABLE IF NOT EXISTS snapshot_response (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		actor TEXT,
		actor_type TEXT NOT NULL,
		description TEXT,
		source_url TEXT,
		event_date DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_response ON snapshot_response(country_iso3, actor_type);

	CREATE TABLE IF NOT EXISTS canonical_figure (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL,
		country_iso3 TEXT NOT NULL,
		metric TEXT NOT NULL,
		value INTEGER NOT NULL,
		unit TEXT,
		scope TEXT,
		area_name TEXT,
		source_count INTEGER,
		as_of DATETIME,
		sources_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_figure_cycle ON canonical_figure(cycle_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// EventUpsert is one event plus its enrichment annotations, ready to persist.
type EventUpsert struct {
	Event   dedup.EventRecord
	Summary string
	Needs   []string
}

// CycleTx collects all writes for one monitoring cycle in a single
// transaction. Either Finish commits everything or Rollback discards
// everything; a cycle never half-persists.
type CycleTx struct {
	store     *Store
	tx        *sql.Tx
	cycleID   int64
	startedAt time.Time
	state     *StateStore
	done      bool
}

// BeginCycle opens a cycle transaction and allocates the cycle row.
// The returned CycleTx is owned by a single goroutine; WAL mode keeps
// concurrent readers unblocked while it is open.
func (s *Store) BeginCycle(startedAt time.Time) (*CycleTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, &PersistenceError{Op: "begin cycle", Err: err}
	}

	res, err := tx.Exec("INSERT INTO cycle (started_at) VALUES (?)", startedAt)
	if err != nil {
		tx.Rollback()
		return nil, &PersistenceError{Op: "insert cycle", Err: err}
	}
	cycleID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, &PersistenceError{Op: "cycle id", Err: err}
	}

	return &CycleTx{store: s, tx: tx, cycleID: cycleID, startedAt: startedAt}, nil
}

// CycleID returns the allocated cycle row id.
func (c *CycleTx) CycleID() int64 {
	return c.cycleID
}

// SaveItems persists the cycle's normalized evidence items.
func (c *CycleTx) SaveItems(items []evidence.Item) error {
	stmt, err := c.tx.Prepare(`
		INSERT OR REPLACE INTO raw_item (id, connector, title, text, url, tier, published_at, fetched_at, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare raw_item", Err: err}
	}
	defer stmt.Close()

	for _, item := range items {
		var published any
		if item.PublishedAt != nil {
			published = *item.PublishedAt
		}
		if _, err := stmt.Exec(
			item.ID,
			item.Connector,
			item.Title,
			item.Text,
			item.URL,
			int(item.Tier),
			published,
			item.FetchedAt,
			c.cycleID,
		); err != nil {
			return &PersistenceError{Op: "insert raw_item", Err: err}
		}
	}
	return nil
}

// SaveEvents upserts the cycle's event records. New and updated events are
// replaced in full; unchanged events touch bookkeeping columns only, so
// annotations persisted by earlier cycles survive stable cycles. Events are
// never deleted.
func (c *CycleTx) SaveEvents(upserts []EventUpsert) error {
	stmt, err := c.tx.Prepare(`
		INSERT INTO event (
			event_id, fingerprint, country, country_iso3, disaster_type,
			severity, confidence, corroboration, llm_enriched, title, summary,
			state, citations_json, needs_json, source_urls_json,
			first_seen_at, last_changed_at, last_cycle_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			severity = excluded.severity,
			confidence = excluded.confidence,
			corroboration = excluded.corroboration,
			llm_enriched = excluded.llm_enriched,
			title = excluded.title,
			summary = excluded.summary,
			state = excluded.state,
			citations_json = excluded.citations_json,
			needs_json = excluded.needs_json,
			source_urls_json = excluded.source_urls_json,
			last_changed_at = excluded.last_changed_at,
			last_cycle_id = excluded.last_cycle_id
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare event", Err: err}
	}
	defer stmt.Close()

	metaStmt, err := c.tx.Prepare(`
		UPDATE event SET
			corroboration = ?,
			state = ?,
			last_cycle_id = ?
		WHERE event_id = ?
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare event metadata", Err: err}
	}
	defer metaStmt.Close()

	for _, up := range upserts {
		ev := up.Event
		if ev.State == dedup.StateUnchanged {
			if _, err := metaStmt.Exec(ev.CorroborationSources, string(ev.State), c.cycleID, ev.EventID); err != nil {
				return &PersistenceError{Op: "update event metadata", Err: err}
			}
			continue
		}

		citations, err := json.Marshal(ev.Citations)
		if err != nil {
			return &PersistenceError{Op: "marshal citations", Err: err}
		}
		needs, err := json.Marshal(up.Needs)
		if err != nil {
			return &PersistenceError{Op: "marshal needs", Err: err}
		}
		urls, err := json.Marshal(ev.SourceURLs)
		if err != nil {
			return &PersistenceError{Op: "marshal source urls", Err: err}
		}

		if _, err := stmt.Exec(
			ev.EventID,
			ev.Fingerprint,
			ev.Country,
			ev.CountryISO3,
			ev.DisasterType,
			ev.Severity,
			ev.Confidence,
			ev.CorroborationSources,
			boolToInt(ev.LLMEnriched),
			ev.Title,
			up.Summary,
			string(ev.State),
			string(citations),
			string(needs),
			string(urls),
			ev.FirstSeenAt,
			ev.LastChangedAt,
			c.cycleID,
		); err != nil {
			return &PersistenceError{Op: "upsert event", Err: err}
		}
	}
	return nil
}

// SaveSnapshots persists one ontology graph per country for the cycle: the
// full graph as JSON, plus flattened child rows for trend queries.
func (c *CycleTx) SaveSnapshots(graphs []*ontology.Graph) error {
	stmt, err := c.tx.Prepare(`
		INSERT INTO ontology_snapshot (cycle_id, country_iso3, graph_json, built_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare snapshot", Err: err}
	}
	defer stmt.Close()

	for _, graph := range graphs {
		data, err := json.Marshal(graph)
		if err != nil {
			return &PersistenceError{Op: "marshal graph", Err: err}
		}
		if _, err := stmt.Exec(c.cycleID, graph.CountryISO3, string(data), graph.BuiltAt); err != nil {
			return &PersistenceError{Op: "insert snapshot", Err: err}
		}
		if err := c.saveSnapshotChildren(graph); err != nil {
			return err
		}
	}
	return nil
}

func (c *CycleTx) saveSnapshotChildren(graph *ontology.Graph) error {
	for _, impact := range graph.Impacts {
		figuresJSON, err := json.Marshal(impact.Figures)
		if err != nil {
			return &PersistenceError{Op: "marshal impact figures", Err: err}
		}
		if _, err := c.tx.Exec(`
			INSERT INTO snapshot_impact (cycle_id, country_iso3, impact_type, severity, area_name, scope, figures_json, source_url, event_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.cycleID, graph.CountryISO3, string(impact.ImpactType), impact.Severity,
			impact.AdminArea, string(impact.Scope), string(figuresJSON),
			impact.SourceURL, nullableTime(impact.Temporal.EventDate),
		); err != nil {
			return &PersistenceError{Op: "insert snapshot impact", Err: err}
		}
	}

	for _, need := range graph.Needs {
		if _, err := c.tx.Exec(`
			INSERT INTO snapshot_need (cycle_id, country_iso3, need_type, severity, area_name, description, source_url, event_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.cycleID, graph.CountryISO3, string(need.NeedType), need.Severity,
			need.AdminArea, need.Description, need.SourceURL,
			nullableTime(need.Temporal.EventDate),
		); err != nil {
			return &PersistenceError{Op: "insert snapshot need", Err: err}
		}
	}

	for _, risk := range graph.Risks {
		if _, err := c.tx.Exec(`
			INSERT INTO snapshot_risk (cycle_id, country_iso3, horizon, hazard, description, source_url, event_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.cycleID, graph.CountryISO3, string(risk.Horizon), risk.HazardRef,
			risk.Description, risk.SourceURL, nullableTime(risk.Temporal.EventDate),
		); err != nil {
			return &PersistenceError{Op: "insert snapshot risk", Err: err}
		}
	}

	for _, resp := range graph.Responses {
		if _, err := c.tx.Exec(`
			INSERT INTO snapshot_response (cycle_id, country_iso3, actor, actor_type, description, source_url, event_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.cycleID, graph.CountryISO3, resp.Actor, string(resp.ActorType),
			resp.Description, resp.SourceURL, nullableTime(resp.Temporal.EventDate),
		); err != nil {
			return &PersistenceError{Op: "insert snapshot response", Err: err}
		}
	}
	return nil
}

// nullableTime maps a missing time to SQL NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// SaveFigures persists a country's deduplicated canonical figures.
func (c *CycleTx) SaveFigures(countryISO3 string, figs []figures.Canonical) error {
	stmt, err := c.tx.Prepare(`
		INSERT INTO canonical_figure (cycle_id, country_iso3, metric, value, unit, scope, area_name, source_count, as_of, sources_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare figure", Err: err}
	}
	defer stmt.Close()

	for _, fig := range figs {
		sources, err := json.Marshal(fig.Sources)
		if err != nil {
			return &PersistenceError{Op: "marshal figure sources", Err: err}
		}
		if _, err := stmt.Exec(
			c.cycleID,
			countryISO3,
			fig.Metric,
			fig.Value,
			fig.Unit,
			string(fig.Scope),
			fig.AreaName,
			fig.SourceCount,
			fig.AsOf,
			string(sources),
		); err != nil {
			return &PersistenceError{Op: "insert figure", Err: err}
		}
	}
	return nil
}

// SaveState writes the dedup state entries inside the cycle transaction, so
// event rows and dedup state commit or roll back together. The state's
// pending set clears only once Finish commits.
func (c *CycleTx) SaveState(state *StateStore) error {
	if err := state.flush(c.tx); err != nil {
		return err
	}
	c.state = state
	return nil
}

// Finish records the cycle's final stats and gate report, then commits.
func (c *CycleTx) Finish(status string, stats gates.CycleStats, report gates.Report, diagnostics []evidence.ConnectorDiagnostic) error {
	if c.done {
		return nil
	}
	defer c.release()

	gatesJSON, err := json.Marshal(report)
	if err != nil {
		c.tx.Rollback()
		return &PersistenceError{Op: "marshal gate report", Err: err}
	}
	diagJSON, err := json.Marshal(diagnostics)
	if err != nil {
		c.tx.Rollback()
		return &PersistenceError{Op: "marshal diagnostics", Err: err}
	}

	_, err = c.tx.Exec(`
		UPDATE cycle SET
			finished_at = ?,
			status = ?,
			items_fetched = ?,
			items_duplicate = ?,
			items_traceable = ?,
			connectors_total = ?,
			connectors_failed = ?,
			events_total = ?,
			events_new = ?,
			events_updated = ?,
			events_enriched = ?,
			events_with_citation = ?,
			enrichment_enabled = ?,
			gates_pass = ?,
			gates_json = ?,
			diagnostics_json = ?
		WHERE id = ?
	`,
		time.Now(),
		status,
		stats.ItemsFetched,
		stats.ItemsDuplicate,
		stats.ItemsTraceable,
		stats.ConnectorsTotal,
		stats.ConnectorsFailed,
		stats.EventsTotal,
		stats.EventsNew,
		stats.EventsUpdated,
		stats.EventsEnriched,
		stats.EventsWithCitation,
		boolToInt(stats.EnrichmentEnabled),
		boolToInt(report.Pass),
		string(gatesJSON),
		string(diagJSON),
		c.cycleID,
	)
	if err != nil {
		c.tx.Rollback()
		return &PersistenceError{Op: "finish cycle", Err: err}
	}

	if err := c.tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit cycle", Err: err}
	}
	if c.state != nil {
		c.state.clearPending()
	}
	return nil
}

// Rollback discards every write made under this cycle.
func (c *CycleTx) Rollback() error {
	if c.done {
		return nil
	}
	defer c.release()
	return c.tx.Rollback()
}

func (c *CycleTx) release() {
	c.done = true
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
