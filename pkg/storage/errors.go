package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no artifact exists for a GUID.
	ErrNotFound = errors.New("image not found")

	// ErrPermissionDenied is returned when the requesting group does not
	// match the group the artifact was stored under. Kept distinct from
	// ErrNotFound so the boundary can map 403 vs 404.
	ErrPermissionDenied = errors.New("access to image denied")

	// ErrInvalidGUID is returned for identifiers that are not canonical
	// UUID strings. Rejected before any filesystem access.
	ErrInvalidGUID = errors.New("invalid image identifier")

	// ErrUnsupportedFormat is returned for formats outside the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// StorageError wraps an OS-level failure (disk full, permission denied,
// short write) so raw filesystem errors never escape the repository layer.
type StorageError struct {
	Op   string
	GUID string
	Err  error
}

func (e *StorageError) Error() string {
	if e.GUID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.GUID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
