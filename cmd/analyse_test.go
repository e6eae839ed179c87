package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/target"
)

func TestCombinedRepeatUnion_DeduplicatesAcrossStrategies(t *testing.T) {
	b := &engineBundle{
		target: &target.Target{
			CombinedIndexes: map[combine.Strategy][]int{
				combine.CTC: {0, 1},
				combine.LGL: {1, 2},
			},
		},
	}
	got := combinedRepeatUnion(b, []combine.Strategy{combine.CTC, combine.LGL})
	assert.ElementsMatch(t, []int{0, 1, 2}, got)
}

func TestAnalysisOutput_EmptyPathUsesStdout(t *testing.T) {
	w, closeFn, err := analysisOutput("")
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, os.Stdout, w)
}

func TestAnalysisOutput_PathCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	w, closeFn, err := analysisOutput(path)
	require.NoError(t, err)
	defer closeFn()
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
