package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SupportedFormats lists the blob file extensions the repository manages.
// Files in the storage directory with any other extension are ignored.
var SupportedFormats = []string{"png", "jpg", "jpeg", "svg", "pdf"}

// BlobRepository persists raw artifact bytes keyed by (guid, format).
type BlobRepository interface {
	Save(guid string, data []byte, format string) error
	// Get returns ErrNotFound when no blob exists for the pair.
	Get(guid, format string) ([]byte, error)
	// Delete removes the blob for the given format, or every known format
	// when format is empty. Reports whether anything was removed.
	Delete(guid, format string) (bool, error)
	// Exists reports whether a blob exists for the format, or for any
	// supported format when format is empty.
	Exists(guid, format string) bool
	// Format returns the stored format for a GUID, if any.
	Format(guid string) (string, bool)
	// ListAll returns the GUIDs of all stored blobs, sorted.
	ListAll() []string
}

// FileBlobRepository stores one file per (guid, format) pair as
// <dir>/<guid>.<format>.
type FileBlobRepository struct {
	dir    string
	logger *slog.Logger
}

func NewFileBlobRepository(dir string, logger *slog.Logger) (*FileBlobRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	logger.Info("blob storage initialized", "directory", dir)
	return &FileBlobRepository{dir: dir, logger: logger}, nil
}

func (r *FileBlobRepository) path(guid, format string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s.%s", guid, strings.ToLower(format)))
}

func (r *FileBlobRepository) Save(guid string, data []byte, format string) error {
	if err := os.WriteFile(r.path(guid, format), data, 0o644); err != nil {
		r.logger.Error("failed to save blob", "guid", guid, "error", err)
		return &StorageError{Op: "save", GUID: guid, Err: err}
	}
	r.logger.Debug("blob saved", "guid", guid, "format", format, "size", len(data))
	return nil
}

func (r *FileBlobRepository) Get(guid, format string) ([]byte, error) {
	data, err := os.ReadFile(r.path(guid, format))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to read blob", "guid", guid, "error", err)
		return nil, &StorageError{Op: "get", GUID: guid, Err: err}
	}
	return data, nil
}

func (r *FileBlobRepository) Delete(guid, format string) (bool, error) {
	formats := SupportedFormats
	if format != "" {
		formats = []string{format}
	}

	deleted := false
	var firstErr error
	for _, f := range formats {
		err := os.Remove(r.path(guid, f))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			r.logger.Error("failed to delete blob", "guid", guid, "format", f, "error", err)
			if firstErr == nil {
				firstErr = &StorageError{Op: "delete", GUID: guid, Err: err}
			}
			continue
		}
		deleted = true
	}
	return deleted, firstErr
}

func (r *FileBlobRepository) Exists(guid, format string) bool {
	if format != "" {
		_, err := os.Stat(r.path(guid, format))
		return err == nil
	}
	for _, f := range SupportedFormats {
		if _, err := os.Stat(r.path(guid, f)); err == nil {
			return true
		}
	}
	return false
}

func (r *FileBlobRepository) Format(guid string) (string, bool) {
	for _, f := range SupportedFormats {
		if _, err := os.Stat(r.path(guid, f)); err == nil {
			return f, true
		}
	}
	return "", false
}

// ListAll scans the storage directory. Filenames that do not parse as
// <uuid>.<supported format> are skipped; the directory may contain
// foreign files we must not touch.
func (r *FileBlobRepository) ListAll() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Error("failed to list blobs", "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(entry.Name()), ".")
		if !formatSupported(ext) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), "."+ext)
		if _, err := uuid.Parse(stem); err != nil {
			continue
		}
		seen[stem] = struct{}{}
	}

	guids := make([]string, 0, len(seen))
	for guid := range seen {
		guids = append(guids, guid)
	}
	sort.Strings(guids)
	return guids
}

func formatSupported(format string) bool {
	format = strings.ToLower(format)
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
