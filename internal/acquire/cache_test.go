package acquire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentKey_stableAndArchSensitive(t *testing.T) {
	a := ContentKey("3.3.0", ArchX64)
	b := ContentKey("3.3.0", ArchX64)
	c := ContentKey("3.3.0", ArchAarch64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLocalCache_storeAndLookup(t *testing.T) {
	extractedDir := t.TempDir()
	extractedPath := filepath.Join(extractedDir, "ruby")
	require.NoError(t, os.WriteFile(extractedPath, []byte("interpreter bytes"), 0o755))

	cache, err := NewLocalCache(t.TempDir())
	require.NoError(t, err)

	key := ContentKey("3.3.0", ArchX64)
	_, hit := cache.Lookup(key)
	assert.False(t, hit, "must miss before Store")

	stored, err := cache.Store(key, extractedPath)
	require.NoError(t, err)

	found, hit := cache.Lookup(key)
	require.True(t, hit)
	assert.Equal(t, stored, found)

	data, err := os.ReadFile(found)
	require.NoError(t, err)
	assert.Equal(t, "interpreter bytes", string(data))
}
