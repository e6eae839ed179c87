package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkInstance(symbol fuse.Symbol, label fuse.Label, values map[fuse.Event]int64) *fuse.Instance {
	return &fuse.Instance{
		Symbol:      symbol,
		Label:       label,
		Start:       1,
		End:         2,
		EventValues: values,
	}
}

func TestProfile_AddInstance_GroupsBySymbol(t *testing.T) {
	p := New("trace.bin")
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 1}))
	p.AddInstance(mkInstance("taskB", fuse.Label{0}, map[fuse.Event]int64{"e1": 2}))
	p.AddInstance(mkInstance("taskA", fuse.Label{1}, map[fuse.Event]int64{"e1": 3}))

	all := p.GetInstances(true)
	assert.Len(t, all, 3)

	onlyA := p.GetInstances(true, "taskA")
	assert.Len(t, onlyA, 2)
}

func TestProfile_GetInstances_ExcludesRuntimeWhenRequested(t *testing.T) {
	p := New("trace.bin")
	p.AddInstance(mkInstance(fuse.SymbolRuntime, fuse.Label{-1}, map[fuse.Event]int64{"e1": 1}))
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 2}))

	assert.Len(t, p.GetInstances(true), 2)
	assert.Len(t, p.GetInstances(false), 1)
}

func TestProfile_GetValueDistribution_FailsOnMissingEvent(t *testing.T) {
	p := New("trace.bin")
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 1}))

	_, err := p.GetValueDistribution([]fuse.Event{"e1", "e2"}, true)
	assert.Error(t, err)
}

func TestProfile_GetValueDistribution_MatchesColumnOrder(t *testing.T) {
	p := New("trace.bin")
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 1, "e2": 10}))
	p.AddInstance(mkInstance("taskA", fuse.Label{1}, map[fuse.Event]int64{"e1": 2, "e2": 20}))

	rows, err := p.GetValueDistribution([]fuse.Event{"e2", "e1"}, true)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{10, 1}, {20, 2}}, rows)
}

func TestProfile_AddDependencyEdge_RejectsOutOfOrderTimes(t *testing.T) {
	p := New("trace.bin")
	producer := mkInstance("taskA", fuse.Label{0}, nil)
	producer.Start, producer.End = 10, 20
	consumer := mkInstance("taskB", fuse.Label{1}, nil)
	consumer.Start, consumer.End = 5, 6
	p.AddInstance(producer)
	p.AddInstance(consumer)

	assert.Panics(t, func() { p.AddDependencyEdge(producer, consumer) })
}

func TestProfile_AddDependencyEdge_RecordsBothSides(t *testing.T) {
	p := New("trace.bin")
	producer := mkInstance("taskA", fuse.Label{0}, nil)
	producer.Start, producer.End = 1, 2
	consumer := mkInstance("taskB", fuse.Label{1}, nil)
	consumer.Start, consumer.End = 3, 4
	p.AddInstance(producer)
	p.AddInstance(consumer)
	p.AddDependencyEdge(producer, consumer)

	pd, ok := p.DependenciesFor(producer)
	require.True(t, ok)
	assert.Equal(t, []*fuse.Instance{consumer}, pd.Consumers)

	cd, ok := p.DependenciesFor(consumer)
	require.True(t, ok)
	assert.Equal(t, []*fuse.Instance{producer}, cd.Producers)
}

func TestProfile_PrintToFile_EmitsUnknownForMissingEvents(t *testing.T) {
	p := New("trace.bin")
	p.AddEvent("e2")
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 1}))

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.csv")
	require.NoError(t, p.PrintToFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "unknown")
}

func TestProfile_PrintToFile_FilterEventsSuppressGPUColumn(t *testing.T) {
	p := New("trace.bin")
	p.SetFilterEvents([]fuse.Event{"e1"})
	p.AddInstance(mkInstance("taskA", fuse.Label{0}, map[fuse.Event]int64{"e1": 1}))

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.csv")
	require.NoError(t, p.PrintToFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "gpu_eligible")
	assert.Contains(t, string(content), "cpu,symbol,label,e1")
}

func TestLabelCompare_RuntimeSortsBeforeNonRuntime(t *testing.T) {
	runtime := fuse.Label{-1}
	normal := fuse.Label{0}
	assert.True(t, runtime.Less(normal))
	assert.False(t, normal.Less(runtime))
}

func TestLabelCompare_ShorterIsLessWhenPrefixEqual(t *testing.T) {
	short := fuse.Label{0, 1}
	long := fuse.Label{0, 1, 2}
	assert.True(t, short.Less(long))
}

func TestLabelCompare_IsStrictWeakOrder(t *testing.T) {
	a := fuse.Label{0, 1}
	b := fuse.Label{0, 2}
	c := fuse.Label{1, 0}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.True(t, a.Less(c))
	assert.False(t, a.Less(a))
}
