// Package target holds the Target aggregate: the user-visible bundle of
// configuration, combination sequences, reference sets, combined-repeat
// bookkeeping, and the running Statistics accumulator, persisted as a
// fuse.json descriptor in a case folder (spec §3, §6).
package target

import (
	"fmt"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/ports"
	"github.com/pepperpots/fusehpm/fuse/stats"
)

// SequencePart is one part of a Combination sequence: the events linking
// it to earlier parts (overlapping) and the events it newly introduces
// (unique).
type SequencePart struct {
	PartIndex   uint32
	Overlapping []fuse.Event
	Unique      []fuse.Event
}

// Sequence is an ordered list of sequence parts.
type Sequence []SequencePart

// Events returns every event the sequence's parts introduce, in part
// order. Overlapping events are not repeated: by the BC invariant each
// already appears in an earlier part's unique list.
func (s Sequence) Events() []fuse.Event {
	var out []fuse.Event
	for _, part := range s {
		out = append(out, part.Unique...)
	}
	return out
}

// Target aggregates everything a case folder describes: what binary to
// profile and under which runtime, the target event set, where traces,
// references, and combined profiles live on disk, the chosen combination
// sequences and repeat counts, and which repeats have already been
// combined per strategy. The Target owns the Statistics accumulator; all
// other holders access it by pointer and never outlive the Target.
type Target struct {
	Binary          string
	BinaryDirectory string
	Args            string
	Runtime         ports.Runtime

	TargetEvents []fuse.Event

	ReferencesDirectory   string
	TracefilesDirectory   string
	CombinationsDirectory string
	PAPIDirectory         string

	ShouldClearCache bool

	NumReferenceRepeats       uint
	NumBCSequenceRepeats      uint
	NumMinimalSequenceRepeats uint

	ReferenceSets [][]fuse.Event

	BCSequence      Sequence
	MinimalSequence Sequence

	CombinedIndexes map[combine.Strategy][]int

	Statistics *stats.Accumulator
}

// New returns an empty Target with a fresh Statistics accumulator and
// initialized bookkeeping maps.
func New() *Target {
	return &Target{
		CombinedIndexes: make(map[combine.Strategy][]int),
		Statistics:      stats.New(),
	}
}

// ReferencePairs returns every unordered pair of target events that is
// subsumed by at least one reference set (spec §3's "Reference pair"),
// in target-event order.
func (t *Target) ReferencePairs() []analyzer.EventPair {
	var out []analyzer.EventPair
	for i := 0; i < len(t.TargetEvents); i++ {
		for j := i + 1; j < len(t.TargetEvents); j++ {
			if t.subsumed(t.TargetEvents[i], t.TargetEvents[j]) {
				out = append(out, analyzer.NewEventPair(t.TargetEvents[i], t.TargetEvents[j]))
			}
		}
	}
	return out
}

func (t *Target) subsumed(a, b fuse.Event) bool {
	for _, set := range t.ReferenceSets {
		foundA, foundB := false, false
		for _, e := range set {
			if e == a {
				foundA = true
			}
			if e == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}

// validate enforces the spec §3 invariants a descriptor must satisfy
// before a Target is handed to the engine.
func (t *Target) validate() error {
	required := []struct {
		name, value string
	}{
		{"binary", t.Binary},
		{"binary_directory", t.BinaryDirectory},
		{"references_directory", t.ReferencesDirectory},
		{"tracefiles_directory", t.TracefilesDirectory},
		{"combinations_directory", t.CombinationsDirectory},
		{"papi_directory", t.PAPIDirectory},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: missing required key %q", fuse.ErrInvalidConfig, r.name)
		}
	}

	switch t.Runtime {
	case ports.RuntimeOpenStream, ports.RuntimeOpenMP:
	default:
		return fmt.Errorf("%w: invalid runtime %q", fuse.ErrInvalidConfig, t.Runtime)
	}

	if len(t.TargetEvents) == 0 {
		return fmt.Errorf("%w: missing required key %q", fuse.ErrInvalidConfig, "target_events")
	}

	if err := validateBCSequence(t.BCSequence); err != nil {
		return err
	}
	if err := validateMinimalSequence(t.MinimalSequence); err != nil {
		return err
	}

	for strategy := range t.CombinedIndexes {
		if !knownStrategy(strategy) {
			return fmt.Errorf("%w: combined_indexes names unknown strategy %q", fuse.ErrInvalidConfig, strategy)
		}
	}
	return nil
}

// validateBCSequence checks the BC variant's invariants: every event in
// overlapping[i] must have appeared in some earlier part's unique list,
// and unique sets are pairwise disjoint across parts.
func validateBCSequence(seq Sequence) error {
	seen := make(fuse.EventSet)
	for i, part := range seq {
		for _, e := range part.Overlapping {
			if !seen.Has(e) {
				return fmt.Errorf("%w: bc_sequence part %d overlap event %q never introduced by an earlier part", fuse.ErrInvalidConfig, i, e)
			}
		}
		for _, e := range part.Unique {
			if seen.Has(e) {
				return fmt.Errorf("%w: bc_sequence part %d unique event %q already introduced by an earlier part", fuse.ErrInvalidConfig, i, e)
			}
			seen.Add(e)
		}
	}
	return nil
}

// validateMinimalSequence checks the minimal variant's invariants: no
// overlapping events anywhere, unique sets pairwise disjoint.
func validateMinimalSequence(seq Sequence) error {
	seen := make(fuse.EventSet)
	for i, part := range seq {
		if len(part.Overlapping) > 0 {
			return fmt.Errorf("%w: minimal_sequence part %d carries overlapping events", fuse.ErrInvalidConfig, i)
		}
		for _, e := range part.Unique {
			if seen.Has(e) {
				return fmt.Errorf("%w: minimal_sequence part %d unique event %q already introduced by an earlier part", fuse.ErrInvalidConfig, i, e)
			}
			seen.Add(e)
		}
	}
	return nil
}

func knownStrategy(s combine.Strategy) bool {
	switch s.Base() {
	case combine.Random, combine.RandomTT, combine.CTC, combine.LGL, combine.BC, combine.HEM:
		return true
	default:
		return false
	}
}
