package sequence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
)

func TestSaveLoadMI_RoundTripsMatrix(t *testing.T) {
	mi := MIMatrix{
		analyzer.NewEventPair(fuse.NewEvent("cycles"), fuse.NewEvent("instructions")): 0.73,
		analyzer.NewEventPair(fuse.NewEvent("cache_misses"), fuse.NewEvent("branches")): 0.12,
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "mi_cache.csv")
	require.NoError(t, SaveMI(path, mi))

	loaded, err := LoadMI(path)
	require.NoError(t, err)
	assert.Len(t, loaded, len(mi))
	for pair, v := range mi {
		got, ok := loaded[pair]
		require.True(t, ok)
		assert.InDelta(t, v, got, 1e-9)
	}
}

func TestLoadMI_MissingFile_ReturnsEmptyMatrix(t *testing.T) {
	dir := t.TempDir()
	mi, err := LoadMI(filepath.Join(dir, "nope.csv"))
	require.NoError(t, err)
	assert.Empty(t, mi)
}
