package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ImageMetadata is the structured record kept for every stored artifact.
// Extra carries attributes this version does not model; they survive
// read-modify-write cycles untouched so older and newer deployments can
// share one index file.
type ImageMetadata struct {
	GUID      string
	Format    string
	Size      int
	CreatedAt string // RFC 3339 UTC; parsed lazily, tolerated if malformed
	Group     string
	Extra     map[string]json.RawMessage
}

// metadataFields are the keys this version owns inside an index record.
var metadataFields = map[string]struct{}{
	"format":     {},
	"size":       {},
	"created_at": {},
	"group":      {},
}

func (m *ImageMetadata) toRecord() map[string]json.RawMessage {
	rec := make(map[string]json.RawMessage, 4+len(m.Extra))
	for k, v := range m.Extra {
		rec[k] = v
	}
	rec["format"], _ = json.Marshal(m.Format)
	rec["size"], _ = json.Marshal(m.Size)
	rec["created_at"], _ = json.Marshal(m.CreatedAt)
	if m.Group != "" {
		rec["group"], _ = json.Marshal(m.Group)
	}
	return rec
}

func metadataFromRecord(guid string, rec map[string]json.RawMessage) *ImageMetadata {
	m := &ImageMetadata{GUID: guid, Format: "png"}
	if raw, ok := rec["format"]; ok {
		_ = json.Unmarshal(raw, &m.Format)
	}
	if raw, ok := rec["size"]; ok {
		_ = json.Unmarshal(raw, &m.Size)
	}
	if raw, ok := rec["created_at"]; ok {
		_ = json.Unmarshal(raw, &m.CreatedAt)
	}
	if raw, ok := rec["group"]; ok {
		_ = json.Unmarshal(raw, &m.Group)
	}
	for k, v := range rec {
		if _, known := metadataFields[k]; known {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return m
}

// MetadataRepository persists structured records keyed by GUID and backs
// group filtering and age-based purge.
//
// The group parameter on ListAll and FilterByAge is a filter; the empty
// string means "no filter" rather than "records without a group".
type MetadataRepository interface {
	Save(m *ImageMetadata) error
	Get(guid string) (*ImageMetadata, bool)
	Delete(guid string) (bool, error)
	ListAll(group string) []string
	Exists(guid string) bool
	// FilterByAge returns records whose created_at is older than
	// now - ageDays. ageDays == 0 matches every record regardless of age.
	// Records with a missing or unparseable created_at are always
	// returned; corrupt timestamps must not block cleanup.
	FilterByAge(ageDays int, group string) []*ImageMetadata
}

// JSONMetadataRepository keeps the whole index in memory as one flat JSON
// object mapping guid -> fields, and rewrites the file on every mutation.
// Durability is synchronous-on-write; there is no write-ahead log.
type JSONMetadataRepository struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

func NewJSONMetadataRepository(path string, logger *slog.Logger) *JSONMetadataRepository {
	r := &JSONMetadataRepository{
		path:   path,
		logger: logger,
		data:   make(map[string]map[string]json.RawMessage),
	}
	r.load()
	return r
}

// load reads the index file. Malformed JSON resets the index to empty:
// a corrupt file must never keep the service from starting.
func (r *JSONMetadataRepository) load() {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("failed to load metadata index", "error", err)
		}
		return
	}

	var data map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		r.logger.Warn("metadata index is malformed, resetting to empty", "error", err)
		return
	}
	r.data = data
	r.logger.Debug("metadata index loaded", "count", len(r.data))
}

// persist is called with r.mu held for writing.
func (r *JSONMetadataRepository) persist() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &StorageError{Op: "persist metadata", Err: err}
	}
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return &StorageError{Op: "persist metadata", Err: err}
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		r.logger.Error("failed to save metadata index", "error", err)
		return &StorageError{Op: "persist metadata", Err: err}
	}
	return nil
}

func (r *JSONMetadataRepository) Save(m *ImageMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.data[m.GUID]
	r.data[m.GUID] = m.toRecord()
	if err := r.persist(); err != nil {
		// Roll the in-memory state back so it keeps matching the file.
		if existed {
			r.data[m.GUID] = prev
		} else {
			delete(r.data, m.GUID)
		}
		return err
	}
	return nil
}

func (r *JSONMetadataRepository) Get(guid string) (*ImageMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[guid]
	if !ok {
		return nil, false
	}
	return metadataFromRecord(guid, rec), true
}

func (r *JSONMetadataRepository) Delete(guid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[guid]
	if !ok {
		return false, nil
	}
	delete(r.data, guid)
	if err := r.persist(); err != nil {
		r.data[guid] = rec
		return false, err
	}
	return true, nil
}

func (r *JSONMetadataRepository) ListAll(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	guids := make([]string, 0, len(r.data))
	for guid, rec := range r.data {
		if group != "" && recordGroup(rec) != group {
			continue
		}
		guids = append(guids, guid)
	}
	return guids
}

func (r *JSONMetadataRepository) Exists(guid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data[guid]
	return ok
}

func (r *JSONMetadataRepository) FilterByAge(ageDays int, group string) []*ImageMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cutoff time.Time
	if ageDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -ageDays)
	}

	var results []*ImageMetadata
	for guid, rec := range r.data {
		if group != "" && recordGroup(rec) != group {
			continue
		}
		if ageDays == 0 {
			results = append(results, metadataFromRecord(guid, rec))
			continue
		}
		m := metadataFromRecord(guid, rec)
		createdAt, err := time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil || createdAt.Before(cutoff) {
			results = append(results, m)
		}
	}
	return results
}

func recordGroup(rec map[string]json.RawMessage) string {
	raw, ok := rec["group"]
	if !ok {
		return ""
	}
	var group string
	_ = json.Unmarshal(raw, &group)
	return group
}
