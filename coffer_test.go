package littlewebserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCofferGetCachesAcrossDiskChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	c := newCoffer(1024*1024, nil)

	b, err := c.get(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o600))
	b2, err := c.get(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b2), "a cache hit must not re-read the file")
}

func TestCofferForgetEvictsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	c := newCoffer(1024*1024, nil)
	_, err := c.get(path)
	require.NoError(t, err)

	c.forget(path)
	_, ok := c.entries.Load(path)
	assert.False(t, ok)
}

func TestCofferSweepOrphansEvictsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	c := newCoffer(1024*1024, nil)
	_, err := c.get(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	c.sweepOrphans()

	_, ok := c.entries.Load(path)
	assert.False(t, ok)
}

func TestCofferSweepOrphansKeepsLiveEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	c := newCoffer(1024*1024, nil)
	_, err := c.get(path)
	require.NoError(t, err)

	c.sweepOrphans()

	_, ok := c.entries.Load(path)
	assert.True(t, ok)
}
