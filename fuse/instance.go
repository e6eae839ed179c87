package fuse

// InstanceID identifies an Instance within its owning profile. The
// profile's AddInstance assigns ids in insertion order, and the
// chronological combination strategy uses them to break start-time ties.
// Dependency edges and BC clustering refer to instances by pointer or
// slice index, not by id.
type InstanceID uint32

// Label encodes an instance's position in the creation tree: top-level
// rank, child rank, and so on. A single-element, strictly negative label
// (e.g. {-(cpu+1)}) identifies a synthetic runtime instance on that CPU.
type Label []int64

// IsRuntimeLabel reports whether l identifies a runtime instance.
func (l Label) IsRuntimeLabel() bool {
	return len(l) == 1 && l[0] < 0
}

// Compare implements the depth-first label comparator from spec §4.2:
// compare position-by-position as signed integers; the shorter vector is
// "less" once all compared positions are equal. Runtime labels (negative
// leading component) sort before every non-runtime label, ordered among
// themselves by ascending magnitude (i.e. ascending CPU id).
//
// Compare is a strict weak order: irreflexive, transitive, and its
// induced equivalence ("neither a<b nor b<a") is transitive too.
func (l Label) Compare(other Label) int {
	lRuntime, oRuntime := l.IsRuntimeLabel(), other.IsRuntimeLabel()
	switch {
	case lRuntime && !oRuntime:
		return -1
	case !lRuntime && oRuntime:
		return 1
	case lRuntime && oRuntime:
		return compareInt64(other[0], l[0])
	}

	n := len(l)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if l[i] != other[i] {
			return compareInt64(l[i], other[i])
		}
	}
	return compareInt(len(l), len(other))
}

// Less reports whether l sorts strictly before other under Compare.
func (l Label) Less(other Label) bool { return l.Compare(other) < 0 }

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Instance is a single recorded execution of a code region.
type Instance struct {
	ID InstanceID

	Symbol Symbol
	Label  Label
	CPU    int

	// Start and End are monotonic timestamps; the engine's invariant is
	// End >= Start for every Instance it produces.
	Start uint64
	End   uint64

	IsGPUEligible bool

	// EventValues maps each recorded Event to its counter delta over
	// [Start,End] (or a cumulative discrete count). Keys are a subset of
	// the owning profile's declared event set.
	EventValues map[Event]int64
}

// Value returns the recorded value for e and whether it was present.
// The engine never substitutes zero for a missing event silently; callers
// that need a default must check the ok return explicitly.
func (in *Instance) Value(e Event) (value int64, ok bool) {
	v, ok := in.EventValues[e]
	return v, ok
}

// Events returns the set of events this instance carries values for.
func (in *Instance) Events() EventSet {
	s := make(EventSet, len(in.EventValues))
	for e := range in.EventValues {
		s.Add(e)
	}
	return s
}

// Clone returns a shallow copy of in with its own EventValues map, so that
// callers (e.g. the combination engine) can build a new Instance that
// shares no mutable state with its sources.
func (in *Instance) Clone() *Instance {
	values := make(map[Event]int64, len(in.EventValues))
	for e, v := range in.EventValues {
		values[e] = v
	}
	return &Instance{
		ID:            in.ID,
		Symbol:        in.Symbol,
		Label:         append(Label(nil), in.Label...),
		CPU:           in.CPU,
		Start:         in.Start,
		End:           in.End,
		IsGPUEligible: in.IsGPUEligible,
		EventValues:   values,
	}
}
