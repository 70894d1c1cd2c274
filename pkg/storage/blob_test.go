package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobRepository_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileBlobRepository(dir, testLogger())
	require.NoError(t, err)

	guid := uuid.NewString()
	require.NoError(t, repo.Save(guid, []byte("bytes"), "png"))

	got, err := repo.Get(guid, "png")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), got)

	format, ok := repo.Format(guid)
	require.True(t, ok)
	assert.Equal(t, "png", format)
}

func TestFileBlobRepository_GetMissing(t *testing.T) {
	repo, err := NewFileBlobRepository(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = repo.Get(uuid.NewString(), "png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBlobRepository_DeleteAllFormats(t *testing.T) {
	repo, err := NewFileBlobRepository(t.TempDir(), testLogger())
	require.NoError(t, err)

	guid := uuid.NewString()
	require.NoError(t, repo.Save(guid, []byte("a"), "png"))
	require.NoError(t, repo.Save(guid, []byte("b"), "svg"))

	deleted, err := repo.Delete(guid, "")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, repo.Exists(guid, ""))

	deleted, err = repo.Delete(guid, "")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFileBlobRepository_ListAllSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileBlobRepository(dir, testLogger())
	require.NoError(t, err)

	guid := uuid.NewString()
	require.NoError(t, repo.Save(guid, []byte("x"), "png"))

	// Files that are not <uuid>.<supported format> must be ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "random.png"), []byte("x"), 0o644))

	assert.Equal(t, []string{guid}, repo.ListAll())
}
