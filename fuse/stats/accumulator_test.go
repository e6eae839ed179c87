package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_SingleSample_MeanEqualsMinStdZero(t *testing.T) {
	a := New()
	a.Add("cycles", 42, "foo")

	stats := a.Finalize()
	got := stats["foo"]["cycles"]
	assert.Equal(t, float64(42), got.Min)
	assert.Equal(t, float64(42), got.Max)
	assert.Equal(t, float64(42), got.Mean)
	assert.Equal(t, float64(0), got.Std)
}

func TestAccumulator_Add_UpdatesAllSymbolsInParallel(t *testing.T) {
	a := New()
	a.Add("cycles", 10, "taskA")
	a.Add("cycles", 20, "taskB")

	mean, err := a.Mean("cycles", fuse.SymbolAllSymbols)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, mean, 1e-9)
}

func TestAccumulator_KnownSeries_MatchesClosedFormStats(t *testing.T) {
	values := []int64{2, 4, 4, 4, 5, 5, 7, 9}
	a := New()
	for _, v := range values {
		a.Add("e1", v, "s1")
	}

	mean, err := a.Mean("e1", "s1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mean, 1e-9)

	std, err := a.Std("e1", "s1")
	require.NoError(t, err)
	assert.InDelta(t, 2.138089935, std, 1e-6)

	min, max, err := a.Bounds("e1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, min)
	assert.Equal(t, 9.0, max)
}

func TestAccumulator_QueryMissing_ReturnsDataNotFound(t *testing.T) {
	a := New()
	_, err := a.Mean("nope", "nobody")
	assert.ErrorIs(t, err, fuse.ErrDataNotFound)
}

func TestAccumulator_SaveLoad_RoundTripsQueries(t *testing.T) {
	a := New()
	for i := int64(1); i <= 100; i++ {
		a.Add("instructions", i*i, "compute")
	}
	wantMean, _ := a.Mean("instructions", "compute")
	wantStd, _ := a.Std("instructions", "compute")
	wantMin, wantMax, _ := a.Bounds("instructions", "compute")

	dir := t.TempDir()
	path := filepath.Join(dir, "stats.csv")
	require.NoError(t, a.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	gotMean, err := loaded.Mean("instructions", "compute")
	require.NoError(t, err)
	gotStd, err := loaded.Std("instructions", "compute")
	require.NoError(t, err)
	gotMin, gotMax, err := loaded.Bounds("instructions", "compute")
	require.NoError(t, err)

	assert.InDelta(t, wantMean, gotMean, 1e-6)
	assert.InDelta(t, wantStd, gotStd, 1e-6)
	assert.Equal(t, wantMin, gotMin)
	assert.Equal(t, wantMax, gotMax)
}

func TestAccumulator_LoadThenAdd_ExtendsSequence(t *testing.T) {
	a := New()
	for i := int64(1); i <= 5; i++ {
		a.Add("e", i, "s")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.csv")
	require.NoError(t, a.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	for i := int64(6); i <= 10; i++ {
		loaded.Add("e", i, "s")
	}

	fresh := New()
	for i := int64(1); i <= 10; i++ {
		fresh.Add("e", i, "s")
	}

	gotMean, _ := loaded.Mean("e", "s")
	wantMean, _ := fresh.Mean("e", "s")
	assert.InDelta(t, wantMean, gotMean, 1e-9)
}

func TestLoad_DuplicateSymbolEvent_IsHardError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.csv")
	content := "symbol,event,minimum,maximum,mean,std,n,old_m,new_m,old_s,new_s\n" +
		"s,e,1,1,1,0,1,1,1,0,0\n" +
		"s,e,2,2,2,0,1,2,2,0,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWelfordRecurrence_MatchesNaiveVariance(t *testing.T) {
	values := []int64{1000000, 1000001, 999998, 1000005, 999990}
	a := New()
	for _, v := range values {
		a.Add("e", v, "s")
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		d := float64(v) - mean
		ss += d * d
	}
	wantStd := math.Sqrt(ss / float64(len(values)-1))

	gotStd, err := a.Std("e", "s")
	require.NoError(t, err)
	assert.InDelta(t, wantStd, gotStd, 1e-6)
}
