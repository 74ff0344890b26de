package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
	"github.com/reliefwatch/reliefwatch/internal/gates"
)

// CycleSummary is one finished cycle's persisted outcome.
type CycleSummary struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Stats      gates.CycleStats
	GatesPass  bool
	Gates      gates.Report
}

// RecentCycles returns up to n finished cycles, newest first. Used for the
// trailing quality-gate history and the status view.
func (s *Store) RecentCycles(n int) ([]CycleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status,
			items_fetched, items_duplicate, items_traceable,
			connectors_total, connectors_failed,
			events_total, events_new, events_updated,
			events_enriched, events_with_citation, enrichment_enabled,
			gates_pass, gates_json
		FROM cycle
		WHERE finished_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, &PersistenceError{Op: "query cycles", Err: err}
	}
	defer rows.Close()

	var summaries []CycleSummary
	for rows.Next() {
		var cs CycleSummary
		var finished sql.NullTime
		var enrichmentEnabled, gatesPass int
		var gatesJSON sql.NullString

		err := rows.Scan(
			&cs.ID,
			&cs.StartedAt,
			&finished,
			&cs.Status,
			&cs.Stats.ItemsFetched,
			&cs.Stats.ItemsDuplicate,
			&cs.Stats.ItemsTraceable,
			&cs.Stats.ConnectorsTotal,
			&cs.Stats.ConnectorsFailed,
			&cs.Stats.EventsTotal,
			&cs.Stats.EventsNew,
			&cs.Stats.EventsUpdated,
			&cs.Stats.EventsEnriched,
			&cs.Stats.EventsWithCitation,
			&enrichmentEnabled,
			&gatesPass,
			&gatesJSON,
		)
		if err != nil {
			return nil, &PersistenceError{Op: "scan cycle", Err: err}
		}

		cs.FinishedAt = finished.Time
		cs.Stats.EnrichmentEnabled = enrichmentEnabled != 0
		cs.GatesPass = gatesPass != 0
		if gatesJSON.Valid && gatesJSON.String != "" {
			if err := json.Unmarshal([]byte(gatesJSON.String), &cs.Gates); err != nil {
				return nil, &PersistenceError{Op: "decode gate report", Err: err}
			}
		}
		summaries = append(summaries, cs)
	}
	return summaries, rows.Err()
}

// RecentEvents returns the latest event records, newest change first.
func (s *Store) RecentEvents(limit int) ([]dedup.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, fingerprint, country, country_iso3, disaster_type,
			severity, confidence, corroboration, llm_enriched, title, state,
			citations_json, source_urls_json, first_seen_at, last_changed_at
		FROM event
		ORDER BY last_changed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "query events", Err: err}
	}
	defer rows.Close()

	var events []dedup.EventRecord
	for rows.Next() {
		var ev dedup.EventRecord
		var enriched int
		var state string
		var citationsJSON, urlsJSON sql.NullString

		err := rows.Scan(
			&ev.EventID,
			&ev.Fingerprint,
			&ev.Country,
			&ev.CountryISO3,
			&ev.DisasterType,
			&ev.Severity,
			&ev.Confidence,
			&ev.CorroborationSources,
			&enriched,
			&ev.Title,
			&state,
			&citationsJSON,
			&urlsJSON,
			&ev.FirstSeenAt,
			&ev.LastChangedAt,
		)
		if err != nil {
			return nil, &PersistenceError{Op: "scan event", Err: err}
		}

		ev.LLMEnriched = enriched != 0
		ev.State = dedup.ChangeState(state)
		if citationsJSON.Valid && citationsJSON.String != "" {
			if err := json.Unmarshal([]byte(citationsJSON.String), &ev.Citations); err != nil {
				return nil, &PersistenceError{Op: "decode citations", Err: err}
			}
		}
		if urlsJSON.Valid && urlsJSON.String != "" {
			if err := json.Unmarshal([]byte(urlsJSON.String), &ev.SourceURLs); err != nil {
				return nil, &PersistenceError{Op: "decode source urls", Err: err}
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventCount returns the total number of tracked events.
func (s *Store) EventCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM event").Scan(&count)
	return count, err
}

// ImpactTrendPoint aggregates one cycle's impact rows for a country.
type ImpactTrendPoint struct {
	CycleID     int64
	ImpactType  string
	Count       int
	MaxSeverity int
}

// ImpactTrend aggregates impact observations per cycle for a country over
// the most recent cycles, newest first.
func (s *Store) ImpactTrend(iso3 string, lastCycles int) ([]ImpactTrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT cycle_id, impact_type, COUNT(*), MAX(severity)
		FROM snapshot_impact
		WHERE country_iso3 = ?
			AND cycle_id IN (SELECT id FROM cycle ORDER BY started_at DESC LIMIT ?)
		GROUP BY cycle_id, impact_type
		ORDER BY cycle_id DESC, impact_type
	`, iso3, lastCycles)
	if err != nil {
		return nil, &PersistenceError{Op: "query impact trend", Err: err}
	}
	defer rows.Close()

	var points []ImpactTrendPoint
	for rows.Next() {
		var p ImpactTrendPoint
		if err := rows.Scan(&p.CycleID, &p.ImpactType, &p.Count, &p.MaxSeverity); err != nil {
			return nil, &PersistenceError{Op: "scan impact trend", Err: err}
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SnapshotForCountry returns the most recent ontology snapshot JSON for a
// country, or empty if none exists.
func (s *Store) SnapshotForCountry(iso3 string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var graphJSON string
	var builtAt time.Time
	err := s.db.QueryRow(`
		SELECT graph_json, built_at
		FROM ontology_snapshot
		WHERE country_iso3 = ?
		ORDER BY built_at DESC
		LIMIT 1
	`, iso3).Scan(&graphJSON, &builtAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, &PersistenceError{Op: "query snapshot", Err: err}
	}
	return graphJSON, builtAt, nil
}
