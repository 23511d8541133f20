package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/hivehook/internal/models"
)

// FileStore is the shared JSON store the orchestrator also reads and writes.
// Two documents live under its directory: memory/store.json (KV entries) and
// claims/claims.json (the claim store). All mutations take the file's
// advisory lock and rewrite atomically; reads take no lock and may observe a
// stale but internally consistent snapshot.
type FileStore struct {
	dir string
	now func() time.Time
}

// New returns a FileStore rooted at dir. Files are created lazily on first
// write.
func New(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// NewWithClock returns a FileStore with an injected clock, for tests.
func NewWithClock(dir string, now func() time.Time) *FileStore {
	return &FileStore{dir: dir, now: now}
}

func (s *FileStore) kvPath() string {
	return filepath.Join(s.dir, "memory", "store.json")
}

func (s *FileStore) claimsPath() string {
	return filepath.Join(s.dir, "claims", "claims.json")
}

// kvDoc is the on-disk shape of memory/store.json.
type kvDoc struct {
	Entries map[string]models.KVEntry `json:"entries"`
}

// Put stores value under key, replacing any prior entry. The value may be
// any JSON-marshalable Go value or pre-encoded json.RawMessage.
func (s *FileStore) Put(key string, value any, metadata map[string]any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	ts := models.Timestamp(s.now())
	return updateFile(s.kvPath(), func(doc *kvDoc) (bool, error) {
		if doc.Entries == nil {
			doc.Entries = map[string]models.KVEntry{}
		}
		doc.Entries[key] = models.KVEntry{
			Key:          key,
			Value:        raw,
			Metadata:     metadata,
			StoredAt:     ts,
			AccessCount:  0,
			LastAccessed: ts,
		}
		return true, nil
	})
}

// Get retrieves the entry for key and records the access: accessCount is
// incremented and lastAccessed updated, persisted under the same lock.
// Returns models.ErrNotFound when the key is absent.
func (s *FileStore) Get(key string) (models.KVEntry, error) {
	var found models.KVEntry
	err := updateFile(s.kvPath(), func(doc *kvDoc) (bool, error) {
		e, ok := doc.Entries[key]
		if !ok {
			return false, fmt.Errorf("key %s: %w", key, models.ErrNotFound)
		}
		e.AccessCount++
		e.LastAccessed = models.Timestamp(s.now())
		doc.Entries[key] = e
		found = e
		return true, nil
	})
	if err != nil {
		return models.KVEntry{}, err
	}
	return found, nil
}

// Peek retrieves the entry for key without recording an access. Used by
// read-only scans (dashboard, lesson fallback search).
func (s *FileStore) Peek(key string) (models.KVEntry, error) {
	var doc kvDoc
	readJSON(s.kvPath(), &doc)
	e, ok := doc.Entries[key]
	if !ok {
		return models.KVEntry{}, fmt.Errorf("key %s: %w", key, models.ErrNotFound)
	}
	return e, nil
}

// List returns all entries whose key starts with prefix, sorted by key.
// A missing or corrupt store reads as empty.
func (s *FileStore) List(prefix string) []models.KVEntry {
	var doc kvDoc
	readJSON(s.kvPath(), &doc)
	out := make([]models.KVEntry, 0, len(doc.Entries))
	for k, e := range doc.Entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Delete removes the entry for key. Deleting an absent key is a no-op.
func (s *FileStore) Delete(key string) error {
	return updateFile(s.kvPath(), func(doc *kvDoc) (bool, error) {
		if _, ok := doc.Entries[key]; !ok {
			return false, nil
		}
		delete(doc.Entries, key)
		return true, nil
	})
}

// GetJSON retrieves key and unmarshals its value into v.
func (s *FileStore) GetJSON(key string, v any) error {
	e, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return b, nil
}
