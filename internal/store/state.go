package store

import (
	"database/sql"
	"encoding/json"

	"github.com/reliefwatch/reliefwatch/internal/dedup"
	"github.com/reliefwatch/reliefwatch/internal/logging"
)

// StateStore is the SQLite-backed dedup state. Reads see committed history;
// writes buffer in memory until they are flushed in one transaction, so a
// failed cycle leaves the state table untouched. Cycle persistence flushes
// through CycleTx.SaveState, which ties the state rows to the cycle commit.
type StateStore struct {
	store   *Store
	pending map[string]dedup.StateEntry
}

var _ dedup.StateStore = (*StateStore)(nil)

// StateStore opens a dedup state view over the store.
func (s *Store) StateStore() *StateStore {
	return &StateStore{
		store:   s,
		pending: make(map[string]dedup.StateEntry),
	}
}

func (st *StateStore) Lookup(fingerprint string) (dedup.StateEntry, bool) {
	if entry, ok := st.pending[fingerprint]; ok {
		return entry, true
	}

	st.store.mu.RLock()
	defer st.store.mu.RUnlock()

	row := st.store.db.QueryRow(`
		SELECT fingerprint, event_id, country, country_iso3, disaster_type,
			simhash, content_digest, sources_json, corroboration,
			first_seen_at, last_changed_at, last_seen_at
		FROM event_state
		WHERE fingerprint = ?
	`, fingerprint)

	entry, err := scanStateEntry(row)
	if err == sql.ErrNoRows {
		return dedup.StateEntry{}, false
	}
	if err != nil {
		logging.Error("state lookup failed", "fingerprint", fingerprint, "error", err)
		return dedup.StateEntry{}, false
	}
	return entry, true
}

func (st *StateStore) Entries() []dedup.StateEntry {
	st.store.mu.RLock()
	rows, err := st.store.db.Query(`
		SELECT fingerprint, event_id, country, country_iso3, disaster_type,
			simhash, content_digest, sources_json, corroboration,
			first_seen_at, last_changed_at, last_seen_at
		FROM event_state
	`)
	st.store.mu.RUnlock()
	if err != nil {
		logging.Error("state scan failed", "error", err)
		return nil
	}
	defer rows.Close()

	seen := make(map[string]bool, len(st.pending))
	entries := make([]dedup.StateEntry, 0, len(st.pending))
	for fp, entry := range st.pending {
		seen[fp] = true
		entries = append(entries, entry)
	}

	for rows.Next() {
		entry, err := scanStateEntry(rows)
		if err != nil {
			logging.Error("state row scan failed", "error", err)
			continue
		}
		if !seen[entry.Fingerprint] {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (st *StateStore) Put(entry dedup.StateEntry) {
	st.pending[entry.Fingerprint] = entry
}

// Commit flushes all pending entries in their own transaction. Used when no
// cycle transaction is open.
func (st *StateStore) Commit() error {
	if len(st.pending) == 0 {
		return nil
	}

	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	tx, err := st.store.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "begin state commit", Err: err}
	}
	defer tx.Rollback()

	if err := st.flush(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit state", Err: err}
	}

	st.clearPending()
	return nil
}

// flush writes the pending entries through tx without clearing them: the
// pending set survives until the transaction is known to have committed.
func (st *StateStore) flush(tx *sql.Tx) error {
	stmt, err := tx.Prepare(`
		INSERT INTO event_state (
			fingerprint, event_id, country, country_iso3, disaster_type,
			simhash, content_digest, sources_json, corroboration,
			first_seen_at, last_changed_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			simhash = excluded.simhash,
			content_digest = excluded.content_digest,
			sources_json = excluded.sources_json,
			corroboration = excluded.corroboration,
			last_changed_at = excluded.last_changed_at,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return &PersistenceError{Op: "prepare state upsert", Err: err}
	}
	defer stmt.Close()

	for _, entry := range st.pending {
		sources, err := json.Marshal(entry.Sources)
		if err != nil {
			return &PersistenceError{Op: "marshal state sources", Err: err}
		}
		if _, err := stmt.Exec(
			entry.Fingerprint,
			entry.EventID,
			entry.Country,
			entry.CountryISO3,
			entry.DisasterType,
			int64(entry.SimHash),
			entry.ContentDigest,
			string(sources),
			entry.Corroboration,
			entry.FirstSeenAt,
			entry.LastChangedAt,
			entry.LastSeenAt,
		); err != nil {
			return &PersistenceError{Op: "upsert state entry", Err: err}
		}
	}
	return nil
}

func (st *StateStore) clearPending() {
	st.pending = make(map[string]dedup.StateEntry)
}

// Rollback discards all pending entries.
func (st *StateStore) Rollback() error {
	st.clearPending()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStateEntry(row rowScanner) (dedup.StateEntry, error) {
	var entry dedup.StateEntry
	var simhash int64
	var sourcesJSON string

	err := row.Scan(
		&entry.Fingerprint,
		&entry.EventID,
		&entry.Country,
		&entry.CountryISO3,
		&entry.DisasterType,
		&simhash,
		&entry.ContentDigest,
		&sourcesJSON,
		&entry.Corroboration,
		&entry.FirstSeenAt,
		&entry.LastChangedAt,
		&entry.LastSeenAt,
	)
	if err != nil {
		return entry, err
	}

	entry.SimHash = uint64(simhash)
	if err := json.Unmarshal([]byte(sourcesJSON), &entry.Sources); err != nil {
		return entry, err
	}
	return entry, nil
}
