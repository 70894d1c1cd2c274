package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStorage(t *testing.T) (*ImageStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewImageStorage(dir, testLogger())
	require.NoError(t, err)
	return s, dir
}

func TestImageStorage_SaveAndGet(t *testing.T) {
	s, _ := newTestStorage(t)

	data := []byte("fake png bytes")
	guid, err := s.SaveImage(data, "png", "analytics")
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(guid))

	got, format, err := s.GetImage(guid, "analytics")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "png", format)

	// Ungated access reads any group's artifacts.
	got, _, err = s.GetImage(guid, "")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestImageStorage_SaveRejectsUnknownFormat(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.SaveImage([]byte("x"), "exe", "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImageStorage_GroupMismatch(t *testing.T) {
	s, _ := newTestStorage(t)

	guid, err := s.SaveImage([]byte("x"), "png", "team-a")
	require.NoError(t, err)

	_, _, err = s.GetImage(guid, "team-b")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	deleted, err := s.DeleteImage(guid, "team-b")
	assert.False(t, deleted)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.False(t, s.Exists(guid, "team-b"))
	assert.True(t, s.Exists(guid, "team-a"))
	assert.True(t, s.Exists(guid, ""))
}

func TestImageStorage_InvalidGUID(t *testing.T) {
	s, _ := newTestStorage(t)

	_, _, err := s.GetImage("../../etc/passwd", "")
	assert.ErrorIs(t, err, ErrInvalidGUID)

	_, err = s.DeleteImage("not-a-uuid", "")
	assert.ErrorIs(t, err, ErrInvalidGUID)

	assert.False(t, s.Exists("not-a-uuid", ""))

	// Only the canonical hyphenated form is accepted, not the other
	// encodings uuid.Parse understands.
	id := uuid.NewString()
	for _, alias := range []string{
		"urn:uuid:" + id,
		"{" + id + "}",
		strings.ReplaceAll(id, "-", ""),
	} {
		_, _, err = s.GetImage(alias, "")
		assert.ErrorIs(t, err, ErrInvalidGUID, alias)
	}
}

func TestImageStorage_GetMissing(t *testing.T) {
	s, _ := newTestStorage(t)

	_, _, err := s.GetImage(uuid.NewString(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageStorage_Delete(t *testing.T) {
	s, dir := newTestStorage(t)

	guid, err := s.SaveImage([]byte("x"), "svg", "grp")
	require.NoError(t, err)

	deleted, err := s.DeleteImage(guid, "grp")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, err = s.GetImage(guid, "grp")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op, not an error.
	deleted, err = s.DeleteImage(guid, "grp")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = os.Stat(filepath.Join(dir, guid+".svg"))
	assert.True(t, os.IsNotExist(err))
}

func TestImageStorage_ListByGroup(t *testing.T) {
	s, _ := newTestStorage(t)

	a1, _ := s.SaveImage([]byte("1"), "png", "team-a")
	a2, _ := s.SaveImage([]byte("2"), "png", "team-a")
	b1, _ := s.SaveImage([]byte("3"), "png", "team-b")

	assert.ElementsMatch(t, []string{a1, a2}, s.ListImages("team-a"))
	assert.ElementsMatch(t, []string{b1}, s.ListImages("team-b"))
	assert.ElementsMatch(t, []string{a1, a2, b1}, s.ListImages(""))
}

func TestImageStorage_PurgeAll(t *testing.T) {
	s, dir := newTestStorage(t)

	s.SaveImage([]byte("1"), "png", "team-a")
	s.SaveImage([]byte("2"), "jpg", "team-b")

	deleted, err := s.Purge(0, "")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Empty(t, s.ListImages(""))

	// The index file survives a purge; only entries are removed.
	_, err = os.Stat(filepath.Join(dir, metadataFileName))
	assert.NoError(t, err)

	// Purging an empty store is fine.
	deleted, err = s.Purge(0, "")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestImageStorage_PurgeByGroup(t *testing.T) {
	s, _ := newTestStorage(t)

	s.SaveImage([]byte("1"), "png", "team-a")
	keep, _ := s.SaveImage([]byte("2"), "png", "team-b")

	deleted, err := s.Purge(0, "team-a")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.ElementsMatch(t, []string{keep}, s.ListImages(""))
}

func TestImageStorage_PurgeByAge(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFileBlobRepository(dir, testLogger())
	require.NoError(t, err)
	meta := NewJSONMetadataRepository(filepath.Join(dir, metadataFileName), testLogger())
	s := NewImageStorageWith(blobs, meta, testLogger())

	fresh, err := s.SaveImage([]byte("new"), "png", "")
	require.NoError(t, err)

	// Backdate a record well past the cutoff.
	old := uuid.NewString()
	require.NoError(t, blobs.Save(old, []byte("old"), "png"))
	require.NoError(t, meta.Save(&ImageMetadata{
		GUID:      old,
		Format:    "png",
		Size:      3,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339),
	}))

	deleted, err := s.Purge(30, "")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.False(t, s.Exists(old, ""))
	assert.True(t, s.Exists(fresh, ""))
}

func TestImageStorage_PurgeOrphanedMetadata(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFileBlobRepository(dir, testLogger())
	require.NoError(t, err)
	meta := NewJSONMetadataRepository(filepath.Join(dir, metadataFileName), testLogger())
	s := NewImageStorageWith(blobs, meta, testLogger())

	// A record whose blob vanished still gets cleaned up.
	orphan := uuid.NewString()
	require.NoError(t, meta.Save(&ImageMetadata{
		GUID:      orphan,
		Format:    "png",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}))

	deleted, err := s.Purge(0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.False(t, meta.Exists(orphan))
}

func TestImageStorage_PurgeOrphanedMetadataIgnoresAge(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFileBlobRepository(dir, testLogger())
	require.NoError(t, err)
	meta := NewJSONMetadataRepository(filepath.Join(dir, metadataFileName), testLogger())
	s := NewImageStorageWith(blobs, meta, testLogger())

	// A fresh orphan is younger than the cutoff but still reconciled.
	orphan := uuid.NewString()
	require.NoError(t, meta.Save(&ImageMetadata{
		GUID:      orphan,
		Format:    "png",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Group:     "team-a",
	}))
	fresh, err := s.SaveImage([]byte("keep"), "png", "team-a")
	require.NoError(t, err)

	deleted, err := s.Purge(30, "")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.False(t, meta.Exists(orphan))
	assert.True(t, s.Exists(fresh, ""))

	// The group filter still applies to orphans.
	other := uuid.NewString()
	require.NoError(t, meta.Save(&ImageMetadata{
		GUID:      other,
		Format:    "png",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Group:     "team-b",
	}))
	deleted, err = s.Purge(30, "team-a")
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.True(t, meta.Exists(other))
}

func TestImageStorage_PurgeIgnoresForeignBlobs(t *testing.T) {
	s, dir := newTestStorage(t)

	// A blob with no metadata record is not ours to delete.
	stray := uuid.NewString()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stray+".png"), []byte("stray"), 0o644))

	deleted, err := s.Purge(0, "")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = os.Stat(filepath.Join(dir, stray+".png"))
	assert.NoError(t, err)
}

func TestImageStorage_ConcurrentSaves(t *testing.T) {
	s, _ := newTestStorage(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveImage([]byte("data"), "png", "grp")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, s.ListImages("grp"), 20)
}

func TestImageStorage_ConcurrentPurgeAndSave(t *testing.T) {
	s, _ := newTestStorage(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.SaveImage([]byte("data"), "png", "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.Purge(0, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whatever survived must be intact: every listed image is readable.
	for _, guid := range s.ListImages("") {
		_, _, err := s.GetImage(guid, "")
		assert.NoError(t, err)
	}
}
