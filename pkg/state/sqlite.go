package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	local_id           TEXT PRIMARY KEY,
	remote_id          TEXT NOT NULL UNIQUE,
	local_fingerprint  TEXT NOT NULL DEFAULT '',
	remote_fingerprint TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const metaLastSync = "last_sync"

// SQLiteStore keeps the table in a SQLite database. Each mutation is its
// own transaction, committed before the call returns.
type SQLiteStore struct {
	Path string
	db   *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sync state %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedState, path, err)
	}
	return &SQLiteStore{Path: path, db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) getOne(query string, arg string) (Mapping, bool, error) {
	var m Mapping
	err := s.db.QueryRow(query, arg).Scan(&m.LocalID, &m.RemoteID, &m.LocalFingerprint, &m.RemoteFingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, false, nil
	}
	if err != nil {
		return Mapping{}, false, fmt.Errorf("query mapping: %w", err)
	}
	return m, true, nil
}

func (s *SQLiteStore) GetByLocal(localID string) (Mapping, bool, error) {
	return s.getOne(`SELECT local_id, remote_id, local_fingerprint, remote_fingerprint
		FROM mappings WHERE local_id = ?`, localID)
}

func (s *SQLiteStore) GetByRemote(remoteID string) (Mapping, bool, error) {
	return s.getOne(`SELECT local_id, remote_id, local_fingerprint, remote_fingerprint
		FROM mappings WHERE remote_id = ?`, remoteID)
}

func (s *SQLiteStore) Upsert(m Mapping) error {
	if m.LocalID == "" || m.RemoteID == "" {
		return fmt.Errorf("mapping needs both identifiers, got local=%q remote=%q", m.LocalID, m.RemoteID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mappings WHERE remote_id = ? AND local_id <> ?`, m.RemoteID, m.LocalID); err != nil {
		return fmt.Errorf("evict stale mapping: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO mappings (local_id, remote_id, local_fingerprint, remote_fingerprint)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			local_fingerprint = excluded.local_fingerprint,
			remote_fingerprint = excluded.remote_fingerprint`,
		m.LocalID, m.RemoteID, m.LocalFingerprint, m.RemoteFingerprint)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Remove(localID string) error {
	if _, err := s.db.Exec(`DELETE FROM mappings WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("remove mapping: %w", err)
	}
	return nil
}

func (s *SQLiteStore) All() ([]Mapping, error) {
	rows, err := s.db.Query(`SELECT local_id, remote_id, local_fingerprint, remote_fingerprint FROM mappings`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.LocalID, &m.RemoteID, &m.LocalFingerprint, &m.RemoteFingerprint); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) KnownRemoteIDs() (map[string]struct{}, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(all))
	for _, m := range all {
		ids[m.RemoteID] = struct{}{}
	}
	return ids, nil
}

func (s *SQLiteStore) LastSync() (time.Time, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, metaLastSync).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last sync: %w", err)
	}
	return parseLastSync(v)
}

func (s *SQLiteStore) TouchLastSync(t time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastSync, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write last sync: %w", err)
	}
	return nil
}
