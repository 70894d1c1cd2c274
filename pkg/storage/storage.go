package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const metadataFileName = "metadata.json"

// ImageStorage composes a BlobRepository and a MetadataRepository into one
// access-controlled, GUID-addressed store. It is the unit the rest of the
// service talks to.
//
// Group semantics: operations that take a group enforce that it matches the
// group the artifact was stored under, returning ErrPermissionDenied on
// mismatch. The empty group means ungated internal access and always
// succeeds.
//
// Concurrency: metadata mutations (save, delete, purge) take the write
// lock so concurrent requests never corrupt the on-disk index and a purge
// can never race an in-flight save. Reads take the read lock, so blob
// reads for different GUIDs proceed in parallel.
type ImageStorage struct {
	blobs  BlobRepository
	meta   MetadataRepository
	logger *slog.Logger

	mu sync.RWMutex
}

// NewImageStorage builds a filesystem-backed store rooted at dir, with the
// metadata index at <dir>/metadata.json.
func NewImageStorage(dir string, logger *slog.Logger) (*ImageStorage, error) {
	blobs, err := NewFileBlobRepository(dir, logger.With("component", "blob_repo"))
	if err != nil {
		return nil, err
	}
	meta := NewJSONMetadataRepository(filepath.Join(dir, metadataFileName), logger.With("component", "metadata_repo"))
	return &ImageStorage{blobs: blobs, meta: meta, logger: logger}, nil
}

// NewImageStorageWith composes explicit repositories; used by tests and by
// deployments that swap either side for a different backend.
func NewImageStorageWith(blobs BlobRepository, meta MetadataRepository, logger *slog.Logger) *ImageStorage {
	return &ImageStorage{blobs: blobs, meta: meta, logger: logger}
}

// SaveImage persists data under a fresh GUID tagged with group and returns
// the GUID. The blob is written first, then the metadata record. The two
// writes are not transactional: a metadata failure after a successful blob
// write leaves an orphaned blob behind and returns an error so the caller
// knows persistence did not fully succeed.
func (s *ImageStorage) SaveImage(data []byte, format, group string) (string, error) {
	if !formatSupported(format) {
		return "", ErrUnsupportedFormat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	guid := uuid.NewString()
	if err := s.blobs.Save(guid, data, format); err != nil {
		return "", err
	}

	m := &ImageMetadata{
		GUID:      guid,
		Format:    format,
		Size:      len(data),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Group:     group,
	}
	if err := s.meta.Save(m); err != nil {
		s.logger.Error("metadata write failed after blob write, blob orphaned", "guid", guid, "error", err)
		return "", err
	}

	s.logger.Info("image saved", "guid", guid, "format", format, "size", len(data), "group", group)
	return guid, nil
}

// GetImage returns the bytes and format stored under guid.
func (s *ImageStorage) GetImage(guid, group string) ([]byte, string, error) {
	if err := validateGUID(guid); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meta.Get(guid)
	if !ok {
		return nil, "", ErrNotFound
	}
	if group != "" && m.Group != group {
		return nil, "", ErrPermissionDenied
	}

	data, err := s.blobs.Get(guid, m.Format)
	if err != nil {
		return nil, "", err
	}
	return data, m.Format, nil
}

// DeleteImage removes the blob(s) and metadata for guid together and
// reports whether anything was deleted.
func (s *ImageStorage) DeleteImage(guid, group string) (bool, error) {
	if err := validateGUID(guid); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meta.Get(guid)
	if !ok {
		return false, nil
	}
	if group != "" && m.Group != group {
		return false, ErrPermissionDenied
	}

	blobDeleted, err := s.blobs.Delete(guid, "")
	if err != nil {
		return false, err
	}
	metaDeleted, err := s.meta.Delete(guid)
	if err != nil {
		return blobDeleted, err
	}
	return blobDeleted || metaDeleted, nil
}

// ListImages returns the GUIDs known to the metadata index, optionally
// filtered by group.
func (s *ImageStorage) ListImages(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.ListAll(group)
}

// Exists reports whether an artifact is stored under guid and accessible
// to group.
func (s *ImageStorage) Exists(guid, group string) bool {
	if err := validateGUID(guid); err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta.Get(guid)
	if !ok {
		return false
	}
	if group != "" && m.Group != group {
		return false
	}
	return s.blobs.Exists(guid, "")
}

// purgeUnlinkConcurrency caps parallel blob unlinks during a purge.
const purgeUnlinkConcurrency = 8

// Purge deletes artifacts selected by the age/group filter and returns the
// number of records removed. ageDays == 0 purges unconditionally within
// the optional group filter.
//
// Three-way semantics:
//   - matching records with an existing blob: blob and metadata deleted;
//   - metadata records with no backing blob (orphaned metadata): always
//     deleted when the group filter matches, regardless of age;
//   - blob files with no metadata record are never touched here.
//
// The metadata index file itself is never deleted, only entries in it.
func (s *ImageStorage) Purge(ageDays int, group string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.meta.FilterByAge(ageDays, group)

	// Orphaned metadata is reconciled on every purge, so records younger
	// than the age filter still qualify when their blob is gone.
	if ageDays > 0 {
		seen := make(map[string]struct{}, len(candidates))
		for _, m := range candidates {
			seen[m.GUID] = struct{}{}
		}
		for _, m := range s.meta.FilterByAge(0, group) {
			if _, ok := seen[m.GUID]; ok {
				continue
			}
			if !s.blobs.Exists(m.GUID, "") {
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// Unlink the backing blobs in parallel; candidates without a blob
	// are orphaned metadata and count as deletions too.
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(purgeUnlinkConcurrency)
	for _, m := range candidates {
		m := m
		if !s.blobs.Exists(m.GUID, "") {
			s.logger.Warn("purging orphaned metadata entry", "guid", m.GUID, "group", m.Group)
			continue
		}
		g.Go(func() error {
			_, err := s.blobs.Delete(m.GUID, "")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, m := range candidates {
		ok, err := s.meta.Delete(m.GUID)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	s.logger.Info("purge completed", "deleted", deleted, "age_days", ageDays, "group", group)
	return deleted, nil
}

func validateGUID(guid string) error {
	// uuid.Parse also accepts urn:uuid: prefixes, braces, and bare hex;
	// only the canonical 36-char hyphenated form names a stored artifact.
	if len(guid) != 36 {
		return ErrInvalidGUID
	}
	if _, err := uuid.Parse(guid); err != nil {
		return ErrInvalidGUID
	}
	return nil
}
