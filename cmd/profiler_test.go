package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse"
)

func TestSubprocessProfiler_CompatibilityCheck_MissingFileIsPermissive(t *testing.T) {
	dir := t.TempDir()
	p := newSubprocessProfiler()
	ok, err := p.CompatibilityCheck([]fuse.Event{"cycles", "instructions"}, dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubprocessProfiler_CompatibilityCheck_RejectsTooManyEvents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_counters"), []byte("2\n"), 0o644))

	p := newSubprocessProfiler()
	ok, err := p.CompatibilityCheck([]fuse.Event{"a", "b", "c"}, dir)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.CompatibilityCheck([]fuse.Event{"a", "b"}, dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJoinEvents(t *testing.T) {
	assert.Equal(t, "cycles,instructions", joinEvents([]fuse.Event{"cycles", "instructions"}))
	assert.Equal(t, "", joinEvents(nil))
}
