package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "photos"), 0o700))
	return New(root)
}

func TestSaveLoadDeleteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := Record{
		ContentType:   "text/plain",
		ContentLength: 6,
		ETag:          `"b1946ac92492d2347c6235b4d2611184"`,
		LastModified:  time.Now().UTC().Truncate(time.Second),
		UserMetadata:  map[string]string{"author": "cat"},
		Encrypted:     false,
	}
	require.NoError(t, s.Save("photos", "cat.txt", rec))

	got, err := s.Load("photos", "cat.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ContentType, got.ContentType)
	assert.Equal(t, rec.ETag, got.ETag)
	assert.Equal(t, rec.UserMetadata, got.UserMetadata)

	require.NoError(t, s.Delete("photos", "cat.txt"))
	got, err = s.Load("photos", "cat.txt")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Idempotent delete.
	require.NoError(t, s.Delete("photos", "cat.txt"))
}

func TestLoadAbsentReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load("photos", "never-written.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadMalformedJSONIsInternalError(t *testing.T) {
	s := newTestStore(t)
	path, err := s.sidecarPath("photos", "broken.txt")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = s.Load("photos", "broken.txt")
	require.Error(t, err)
}

func TestIsEmptyOrTombstones(t *testing.T) {
	s := newTestStore(t)
	empty, err := s.IsEmptyOrTombstones("photos")
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, s.Save("photos", "cat.txt", Record{}))
	empty, err = s.IsEmptyOrTombstones("photos")
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestGuessContentType(t *testing.T) {
	assert.Equal(t, "text/plain", GuessContentType("", "cat.txt", nil))
	assert.Equal(t, "image/png", GuessContentType("", "pic.png", nil))
	assert.Equal(t, "application/json", GuessContentType("application/json", "pic.png", nil))
	assert.Equal(t, "application/octet-stream", GuessContentType("", "noext", nil))
}

func TestComputeETag(t *testing.T) {
	assert.Equal(t, `"b1946ac92492d2347c6235b4d2611184"`, ComputeETag([]byte("hello\n")))
}
