package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse/combine"
)

func TestParseStrategies_EmptyDefaultsToFullSet(t *testing.T) {
	got, err := parseStrategies("", false)
	require.NoError(t, err)
	assert.Equal(t, allStrategies, got)
}

func TestParseStrategies_RestrictsToNamedSubset(t *testing.T) {
	got, err := parseStrategies("ctc, lgl", false)
	require.NoError(t, err)
	assert.Equal(t, []combine.Strategy{combine.CTC, combine.LGL}, got)
}

func TestParseStrategies_UnknownName_IsError(t *testing.T) {
	_, err := parseStrategies("nonsense", false)
	assert.Error(t, err)
}

func TestParseStrategies_Minimal_MapsExceptBCAndHEM(t *testing.T) {
	got, err := parseStrategies("ctc,bc,hem", true)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, combine.CTC.Minimal(), got[0])
	assert.Equal(t, combine.BC, got[1])
	assert.Equal(t, combine.HEM, got[2])
}

func TestIncludesHEM(t *testing.T) {
	assert.True(t, includesHEM([]combine.Strategy{combine.CTC, combine.HEM}))
	assert.False(t, includesHEM([]combine.Strategy{combine.CTC, combine.LGL}))
}
