package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TokenRecord is the persisted state of one issued token. Records are
// never physically deleted: revocation is a tombstone, which keeps every
// token ever issued auditable.
type TokenRecord struct {
	Group       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	Fingerprint string
	// Extra preserves fields written by other versions of the service so
	// a read-modify-write cycle never drops them.
	Extra map[string]json.RawMessage
}

var tokenFields = map[string]struct{}{
	"group":       {},
	"issued_at":   {},
	"expires_at":  {},
	"revoked":     {},
	"fingerprint": {},
}

func (r TokenRecord) toRaw() map[string]json.RawMessage {
	raw := make(map[string]json.RawMessage, 5+len(r.Extra))
	for k, v := range r.Extra {
		raw[k] = v
	}
	raw["group"], _ = json.Marshal(r.Group)
	raw["issued_at"], _ = json.Marshal(r.IssuedAt.UTC().Format(time.RFC3339))
	raw["expires_at"], _ = json.Marshal(r.ExpiresAt.UTC().Format(time.RFC3339))
	raw["revoked"], _ = json.Marshal(r.Revoked)
	if r.Fingerprint != "" {
		raw["fingerprint"], _ = json.Marshal(r.Fingerprint)
	}
	return raw
}

func recordFromRaw(raw map[string]json.RawMessage) TokenRecord {
	var r TokenRecord
	var s string
	if v, ok := raw["group"]; ok {
		_ = json.Unmarshal(v, &r.Group)
	}
	if v, ok := raw["issued_at"]; ok {
		if json.Unmarshal(v, &s) == nil {
			r.IssuedAt, _ = time.Parse(time.RFC3339, s)
		}
	}
	if v, ok := raw["expires_at"]; ok {
		if json.Unmarshal(v, &s) == nil {
			r.ExpiresAt, _ = time.Parse(time.RFC3339, s)
		}
	}
	if v, ok := raw["revoked"]; ok {
		_ = json.Unmarshal(v, &r.Revoked)
	}
	if v, ok := raw["fingerprint"]; ok {
		_ = json.Unmarshal(v, &r.Fingerprint)
	}
	for k, v := range raw {
		if _, known := tokenFields[k]; known {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return r
}

// TokenStore is the persistence boundary for issued-token state. The file
// implementation below is the deployment default; the interface exists so
// a networked store can replace it without touching the Service contract.
type TokenStore interface {
	// Put appends or replaces a record and persists immediately.
	Put(id string, rec TokenRecord) error
	// Lookup reloads persisted state before reading, so tokens created or
	// revoked by another process sharing the store become visible without
	// a restart.
	Lookup(id string) (TokenRecord, bool, error)
	// Revoke marks a record revoked and persists. Reports whether the
	// record existed.
	Revoke(id string) (bool, error)
	// List returns a snapshot of every record after a reload.
	List() (map[string]TokenRecord, error)
}

// FileTokenStore keeps the token map in a single JSON file. Every write
// is load-mutate-persist under one in-process mutex; every read reloads.
// The filesystem is the cross-process synchronization mechanism.
type FileTokenStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewFileTokenStore(path string, logger *slog.Logger) (*FileTokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating token store directory: %w", err)
	}
	return &FileTokenStore{path: path, logger: logger}, nil
}

// load reads the store file. A missing file is an empty store; malformed
// JSON is logged and treated as empty rather than failing verification
// for every caller.
func (s *FileTokenStore) load() map[string]map[string]json.RawMessage {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read token store", "error", err)
		}
		return map[string]map[string]json.RawMessage{}
	}
	var data map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("token store is malformed, treating as empty", "error", err)
		return map[string]map[string]json.RawMessage{}
	}
	return data
}

func (s *FileTokenStore) persist(data map[string]map[string]json.RawMessage) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing token store: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Put(id string, rec TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	data[id] = rec.toRaw()
	return s.persist(data)
}

func (s *FileTokenStore) Lookup(id string) (TokenRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	raw, ok := data[id]
	if !ok {
		return TokenRecord{}, false, nil
	}
	return recordFromRaw(raw), true, nil
}

func (s *FileTokenStore) Revoke(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	raw, ok := data[id]
	if !ok {
		return false, nil
	}
	rec := recordFromRaw(raw)
	rec.Revoked = true
	data[id] = rec.toRaw()
	return true, s.persist(data)
}

func (s *FileTokenStore) List() (map[string]TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	out := make(map[string]TokenRecord, len(data))
	for id, raw := range data {
		out[id] = recordFromRaw(raw)
	}
	return out, nil
}
