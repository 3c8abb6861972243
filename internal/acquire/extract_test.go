package acquire

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_picksDeepestCandidate(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ruby-3.3.0-x64/README":     "ignore me",
		"ruby-3.3.0-x64/ruby":       "shallow decoy",
		"ruby-3.3.0-x64/bin/ruby":   "the real interpreter",
	})

	dir := t.TempDir()
	path, err := Extract(data, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bin", "ruby"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "the real interpreter", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtract_missingEntry(t *testing.T) {
	data := buildZip(t, map[string]string{"ruby-3.3.0-x64/README": "nothing here"})
	_, err := Extract(data, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractFailure)
}

func TestExtract_notAZip(t *testing.T) {
	_, err := Extract([]byte("not a zip file"), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractFailure)
}
