package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const jsonVersion = 1

type document struct {
	Version  int                `json:"version"`
	Mappings map[string]Mapping `json:"mappings"`
	LastSync *string            `json:"last_sync"`
}

func emptyDocument() document {
	return document{Version: jsonVersion, Mappings: make(map[string]Mapping)}
}

// JSONStore keeps the table in a single JSON file. Every mutation re-reads
// the file, applies the change and rewrites the whole file through a
// temporary file and rename, so writers in other processes (the hooks)
// are not clobbered by a stale in-memory copy. Reads are served from
// memory until the file changes on disk.
type JSONStore struct {
	Path string

	mu    sync.Mutex
	doc   document
	stamp fileStamp
}

// fileStamp identifies the on-disk version the cached document came from.
type fileStamp struct {
	mod  time.Time
	size int64
}

func statStamp(path string) fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: fi.ModTime(), size: fi.Size()}
}

var _ Store = (*JSONStore)(nil)

// OpenJSON loads path. A missing file is an empty table.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{Path: path}
	s.stamp = statStamp(path)
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

// current returns the cached document, re-reading the file first when
// another process has replaced it since. Callers hold s.mu.
func (s *JSONStore) current() (document, error) {
	stamp := statStamp(s.Path)
	if stamp == s.stamp {
		return s.doc, nil
	}
	doc, err := s.load()
	if err != nil {
		return document{}, err
	}
	s.doc, s.stamp = doc, stamp
	return doc, nil
}

func (s *JSONStore) load() (document, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyDocument(), nil
		}
		return document{}, fmt.Errorf("read sync state %s: %w", s.Path, err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("%w: %s: %v", ErrMalformedState, s.Path, err)
	}
	switch {
	case doc.Version == 0 && len(doc.Mappings) == 0:
		return emptyDocument(), nil
	case doc.Version != jsonVersion:
		return document{}, fmt.Errorf("%w: %s: unsupported version %d", ErrMalformedState, s.Path, doc.Version)
	}
	if doc.Mappings == nil {
		doc.Mappings = make(map[string]Mapping)
	}
	owners := make(map[string]string, len(doc.Mappings))
	for key, m := range doc.Mappings {
		if m.LocalID == "" {
			m.LocalID = key
			doc.Mappings[key] = m
		}
		if m.LocalID != key || m.RemoteID == "" {
			return document{}, fmt.Errorf("%w: %s: bad mapping under key %q", ErrMalformedState, s.Path, key)
		}
		if other, dup := owners[m.RemoteID]; dup {
			return document{}, fmt.Errorf("%w: %s: remote id %q mapped by both %q and %q",
				ErrMalformedState, s.Path, m.RemoteID, other, key)
		}
		owners[m.RemoteID] = key
	}
	return doc, nil
}

func (s *JSONStore) save(doc document) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync_state-*.tmp")
	if err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write sync state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace sync state: %w", err)
	}
	return nil
}

// mutate runs a full read-modify-persist cycle.
func (s *JSONStore) mutate(fn func(doc *document) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if !fn(&doc) {
		s.doc, s.stamp = doc, statStamp(s.Path)
		return nil
	}
	if err := s.save(doc); err != nil {
		return err
	}
	s.doc, s.stamp = doc, statStamp(s.Path)
	return nil
}

func (s *JSONStore) GetByLocal(localID string) (Mapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.current()
	if err != nil {
		return Mapping{}, false, err
	}
	m, ok := doc.Mappings[localID]
	return m, ok, nil
}

func (s *JSONStore) GetByRemote(remoteID string) (Mapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.current()
	if err != nil {
		return Mapping{}, false, err
	}
	for _, m := range doc.Mappings {
		if m.RemoteID == remoteID {
			return m, true, nil
		}
	}
	return Mapping{}, false, nil
}

func (s *JSONStore) Upsert(m Mapping) error {
	if m.LocalID == "" || m.RemoteID == "" {
		return fmt.Errorf("mapping needs both identifiers, got local=%q remote=%q", m.LocalID, m.RemoteID)
	}
	return s.mutate(func(doc *document) bool {
		for key, other := range doc.Mappings {
			if other.RemoteID == m.RemoteID && key != m.LocalID {
				delete(doc.Mappings, key)
			}
		}
		doc.Mappings[m.LocalID] = m
		return true
	})
}

func (s *JSONStore) Remove(localID string) error {
	return s.mutate(func(doc *document) bool {
		if _, ok := doc.Mappings[localID]; !ok {
			return false
		}
		delete(doc.Mappings, localID)
		return true
	})
}

func (s *JSONStore) All() ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(doc.Mappings))
	for _, m := range doc.Mappings {
		out = append(out, m)
	}
	return out, nil
}

func (s *JSONStore) KnownRemoteIDs() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(doc.Mappings))
	for _, m := range doc.Mappings {
		ids[m.RemoteID] = struct{}{}
	}
	return ids, nil
}

func (s *JSONStore) LastSync() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.current()
	if err != nil {
		return time.Time{}, err
	}
	if doc.LastSync == nil || *doc.LastSync == "" {
		return time.Time{}, nil
	}
	return parseLastSync(*doc.LastSync)
}

// parseLastSync accepts RFC 3339 and the zone-less local timestamps the
// earlier scripts wrote.
func parseLastSync(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: last_sync %q: %v", ErrMalformedState, v, err)
	}
	return t, nil
}

func (s *JSONStore) TouchLastSync(t time.Time) error {
	ts := t.UTC().Format(time.RFC3339)
	return s.mutate(func(doc *document) bool {
		doc.LastSync = &ts
		return true
	})
}

func (s *JSONStore) Close() error { return nil }
