package combine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/profile"
	"github.com/pepperpots/fusehpm/fuse/stats"
)

func inst(symbol fuse.Symbol, label fuse.Label, start, end uint64, values map[fuse.Event]int64) *fuse.Instance {
	return &fuse.Instance{
		Symbol:      symbol,
		Label:       label,
		Start:       start,
		End:         end,
		EventValues: values,
	}
}

func profileOf(name string, instances ...*fuse.Instance) *profile.Profile {
	p := profile.New(name)
	for _, in := range instances {
		p.AddInstance(in)
	}
	return p
}

const symA fuse.Symbol = "work"

func TestCombineInstances_FirstObservedValueWins(t *testing.T) {
	e1, e2 := fuse.NewEvent("instructions"), fuse.NewEvent("cycles")
	a := inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e1: 100})
	b := inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e1: 999, e2: 50})

	out := CombineInstances(Match{a, b})
	assert.Equal(t, int64(100), out.EventValues[e1])
	assert.Equal(t, int64(50), out.EventValues[e2])
}

func TestCombineInstances_InheritsFromFirst(t *testing.T) {
	a := inst(symA, fuse.Label{1, 2}, 5, 15, map[fuse.Event]int64{})
	a.CPU = 3
	a.IsGPUEligible = true
	b := inst(symA, fuse.Label{9}, 100, 200, map[fuse.Event]int64{})

	out := CombineInstances(Match{a, b})
	assert.Equal(t, fuse.Label{1, 2}, out.Label)
	assert.Equal(t, 3, out.CPU)
	assert.True(t, out.IsGPUEligible)
	assert.Equal(t, uint64(5), out.Start)
	assert.Equal(t, uint64(15), out.End)
}

// TestCombineProfiles_RandomNoShuffleIsIdentityPermutation covers the
// deterministic-ordering scenario: with NoShuffle set, the Random
// strategy reduces to positional zipping in input order.
func TestCombineProfiles_RandomNoShuffleIsIdentityPermutation(t *testing.T) {
	e := fuse.NewEvent("instructions")
	p1 := profileOf("p1",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 2}),
		inst(symA, fuse.Label{2}, 20, 30, map[fuse.Event]int64{e: 3}),
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 10}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 20}),
		inst(symA, fuse.Label{2}, 20, 30, map[fuse.Event]int64{e: 30}),
	)

	out, err := CombineProfiles([]*profile.Profile{p1, p2}, Random, Options{
		TargetFilename: "combined",
		NoShuffle:      true,
	})
	require.NoError(t, err)

	combined := out.GetInstances(false, symA)
	require.Len(t, combined, 3)
	assert.Equal(t, int64(1), combined[0].EventValues[e])
	assert.Equal(t, int64(2), combined[1].EventValues[e])
	assert.Equal(t, int64(3), combined[2].EventValues[e])
}

// TestCombineProfiles_ChronologicalReordersByStart covers CTC: inputs
// given out of start order are matched after being sorted chronologically.
func TestCombineProfiles_ChronologicalReordersByStart(t *testing.T) {
	e := fuse.NewEvent("instructions")
	p1 := profileOf("p1",
		inst(symA, fuse.Label{2}, 20, 30, map[fuse.Event]int64{e: 3}),
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 2}),
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 100}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 200}),
		inst(symA, fuse.Label{2}, 20, 30, map[fuse.Event]int64{e: 300}),
	)

	out, err := CombineProfiles([]*profile.Profile{p1, p2}, CTC, Options{TargetFilename: "combined"})
	require.NoError(t, err)

	combined := out.GetInstances(false, symA)
	require.Len(t, combined, 3)
	// p1 sorted chronologically becomes [1,2,3]; zipped against p2's
	// already-sorted [100,200,300], the first-wins value at each position
	// should be the smaller (p1) side.
	assert.Equal(t, int64(1), combined[0].EventValues[e])
	assert.Equal(t, int64(2), combined[1].EventValues[e])
	assert.Equal(t, int64(3), combined[2].EventValues[e])
}

// TestCombineProfiles_BCRequiresStatisticsAndOverlap covers the
// precondition violations BC enforces before clustering.
func TestCombineProfiles_BCRequiresStatisticsAndOverlap(t *testing.T) {
	e := fuse.NewEvent("instructions")
	p1 := profileOf("p1", inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}))
	p2 := profileOf("p2", inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}))

	_, err := CombineProfiles([]*profile.Profile{p1, p2}, BC, Options{TargetFilename: "combined"})
	assert.ErrorIs(t, err, fuse.ErrPreconditionViolated)
}

// TestCombineProfiles_BCSingleOverlappingEventClustersByProximity covers a
// minimal BC scenario: one overlapping event, instances close in value
// space cluster and match even though their labels differ.
func TestCombineProfiles_BCSingleOverlappingEventClustersByProximity(t *testing.T) {
	e := fuse.NewEvent("instructions")
	acc := stats.New()
	for _, v := range []int64{0, 1, 99, 100} {
		acc.Add(e, v, symA)
	}

	p1 := profileOf("p1",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 0}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 100}),
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{5}, 0, 10, map[fuse.Event]int64{e: 1}),
		inst(symA, fuse.Label{6}, 10, 20, map[fuse.Event]int64{e: 99}),
	)

	out, err := CombineProfiles([]*profile.Profile{p1, p2}, BC, Options{
		TargetFilename:        "combined",
		Statistics:            acc,
		OverlappingPerProfile: [][]fuse.Event{{e}},
	})
	require.NoError(t, err)

	combined := out.GetInstances(false, symA)
	assert.LessOrEqual(t, len(combined), 2)
	for _, in := range combined {
		v := in.EventValues[e]
		assert.True(t, v == 0 || v == 100, "expected a first-wins value from the near cluster, got %d", v)
	}
}

type warnRecorder struct {
	msgs []string
}

func (w *warnRecorder) Warnf(format string, args ...interface{}) {
	w.msgs = append(w.msgs, fmt.Sprintf(format, args...))
}

// TestCombineProfiles_BCUnequalCellPopulationKeepsExcessAsResidual covers
// a single grid cell holding 3 instances from one profile but only 2 from
// the other: only the label-zipped pairs are consumed, and the leftover
// instance surfaces in the residual-discard warning instead of vanishing
// silently.
func TestCombineProfiles_BCUnequalCellPopulationKeepsExcessAsResidual(t *testing.T) {
	e := fuse.NewEvent("instructions")
	acc := stats.New()
	acc.Add(e, 5, symA)
	acc.Add(e, 5, symA)

	// Identical overlapping values force d_min = 0, so g0 = 1 and every
	// instance lands in the same cell.
	p1 := profileOf("p1",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 5}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 5}),
		inst(symA, fuse.Label{2}, 20, 30, map[fuse.Event]int64{e: 5}),
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 5}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 5}),
	)

	rec := &warnRecorder{}
	out, err := CombineProfiles([]*profile.Profile{p1, p2}, BC, Options{
		TargetFilename:        "combined",
		Statistics:            acc,
		OverlappingPerProfile: [][]fuse.Event{{e}},
		Log:                   rec,
	})
	require.NoError(t, err)

	combined := out.GetInstances(false, symA)
	require.Len(t, combined, 2)
	assert.Equal(t, fuse.Label{0}, combined[0].Label)
	assert.Equal(t, fuse.Label{1}, combined[1].Label)

	var sawResidual bool
	for _, msg := range rec.msgs {
		if strings.Contains(msg, "1+0 unmatched residual") {
			sawResidual = true
		}
	}
	assert.True(t, sawResidual, "expected the excess instance to be reported as residual, got %v", rec.msgs)
}

func TestCombineProfiles_HEMIsRejected(t *testing.T) {
	p1 := profileOf("p1")
	p2 := profileOf("p2")
	_, err := CombineProfiles([]*profile.Profile{p1, p2}, HEM, Options{TargetFilename: "combined"})
	assert.ErrorIs(t, err, fuse.ErrPreconditionViolated)
}

func TestCombineProfiles_RequiresAtLeastTwoProfiles(t *testing.T) {
	p1 := profileOf("p1")
	_, err := CombineProfiles([]*profile.Profile{p1}, CTC, Options{TargetFilename: "combined"})
	assert.ErrorIs(t, err, fuse.ErrPreconditionViolated)
}

// TestCombineProfiles_ResultInstanceCountNeverExceedsSmallestInput checks
// the R.num_instances <= min(|Pi|) invariant across strategies that zip
// positionally.
func TestCombineProfiles_ResultInstanceCountNeverExceedsSmallestInput(t *testing.T) {
	e := fuse.NewEvent("instructions")
	p1 := profileOf("p1",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
		inst(symA, fuse.Label{1}, 10, 20, map[fuse.Event]int64{e: 2}),
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
	)

	for _, strat := range []Strategy{Random, CTC, LGL} {
		out, err := CombineProfiles([]*profile.Profile{p1, p2}, strat, Options{TargetFilename: "combined", NoShuffle: true})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out.GetInstances(false, symA)), 1)
	}
}

func TestCombineProfiles_CopiesRuntimeInstancesFromFirstInput(t *testing.T) {
	e := fuse.NewEvent("instructions")
	runtimeInst := inst(fuse.SymbolRuntime, fuse.Label{-1}, 0, 10, map[fuse.Event]int64{e: 7})
	p1 := profileOf("p1",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
		runtimeInst,
	)
	p2 := profileOf("p2",
		inst(symA, fuse.Label{0}, 0, 10, map[fuse.Event]int64{e: 1}),
	)

	out, err := CombineProfiles([]*profile.Profile{p1, p2}, CTC, Options{TargetFilename: "combined"})
	require.NoError(t, err)

	runtime := out.GetInstances(true, fuse.SymbolRuntime)
	require.Len(t, runtime, 1)
	assert.Equal(t, int64(7), runtime[0].EventValues[e])
}

func TestStrategy_MinimalAndBase(t *testing.T) {
	s := Strategy("random_minimal")
	assert.True(t, s.IsMinimal())
	assert.Equal(t, Random, s.Base())
	assert.Equal(t, Strategy("ctc_minimal"), CTC.Minimal())
}
