// Package state persists the links between local tasks and remote
// reminders, together with the last-seen modification marker of each
// side.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrMalformedState means the persisted state cannot be read. It is a
// configuration error: the store never falls back to an empty table.
var ErrMalformedState = errors.New("malformed sync state")

// Mapping links one local task to one remote reminder.
type Mapping struct {
	LocalID           string `json:"local_id"`
	RemoteID          string `json:"remote_id"`
	LocalFingerprint  string `json:"local_fingerprint"`
	RemoteFingerprint string `json:"remote_fingerprint"`
}

// UnmarshalJSON also accepts the key names written by the earlier
// tw-reminders scripts (uuid, reminder_id, tw_modified, reminder_modified).
func (m *Mapping) UnmarshalJSON(b []byte) error {
	var raw struct {
		LocalID           string `json:"local_id"`
		RemoteID          string `json:"remote_id"`
		LocalFingerprint  string `json:"local_fingerprint"`
		RemoteFingerprint string `json:"remote_fingerprint"`
		UUID              string `json:"uuid"`
		ReminderID        string `json:"reminder_id"`
		TWModified        string `json:"tw_modified"`
		ReminderModified  string `json:"reminder_modified"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Mapping{
		LocalID:           firstNonEmpty(raw.LocalID, raw.UUID),
		RemoteID:          firstNonEmpty(raw.RemoteID, raw.ReminderID),
		LocalFingerprint:  firstNonEmpty(raw.LocalFingerprint, raw.TWModified),
		RemoteFingerprint: firstNonEmpty(raw.RemoteFingerprint, raw.ReminderModified),
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Store is the mapping table. Implementations keep it a bijection between
// LocalID and RemoteID and persist every mutation before returning.
type Store interface {
	GetByLocal(localID string) (Mapping, bool, error)
	GetByRemote(remoteID string) (Mapping, bool, error)
	// Upsert replaces the mapping with the same LocalID. A different
	// mapping holding the same RemoteID is evicted.
	Upsert(m Mapping) error
	// Remove is a no-op when localID is unknown.
	Remove(localID string) error
	All() ([]Mapping, error)
	KnownRemoteIDs() (map[string]struct{}, error)
	LastSync() (time.Time, error)
	TouchLastSync(t time.Time) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// File names inside the data directory.
const (
	JSONFileName   = "sync_state.json"
	SQLiteFileName = "sync_state.db"
)

// Open returns the store for backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return OpenJSON(filepath.Join(dataDir, JSONFileName))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// Path returns the file a backend persists to.
func Path(backend, dataDir string) string {
	if backend == BackendSQLite {
		return filepath.Join(dataDir, SQLiteFileName)
	}
	return filepath.Join(dataDir, JSONFileName)
}
