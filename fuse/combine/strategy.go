// Package combine implements the instance-combination engine (spec §4.3):
// the five strategies that match instances across profiles and fuse each
// match into a single Instance carrying every input's events.
package combine

import "fmt"

// Strategy is one of the closed set of combination strategies spec.md §3
// names. HEM is accepted as a value (it appears in Target bookkeeping) but
// is rejected by CombineProfiles: it is a profiler-level output, not a
// combination operation.
type Strategy string

const (
	Random      Strategy = "random"
	RandomTT    Strategy = "random_tt"
	CTC         Strategy = "ctc"
	LGL         Strategy = "lgl"
	BC          Strategy = "bc"
	HEM         Strategy = "hem"
)

// minimalSuffix marks the "_minimal" variant of a strategy: it operates on
// a minimal (no-overlap) Combination sequence rather than a BC sequence.
// Only Random, RandomTT, CTC, and LGL support a minimal variant; BC and
// HEM do not (spec §3: "Strategy ... with optional _minimal variants for
// strategies that operate on minimal sequences").
const minimalSuffix = "_minimal"

// Minimal returns the minimal-sequence variant of s.
func (s Strategy) Minimal() Strategy { return s + minimalSuffix }

// IsMinimal reports whether s names a minimal-sequence variant.
func (s Strategy) IsMinimal() bool {
	return len(s) > len(minimalSuffix) && s[len(s)-len(minimalSuffix):] == minimalSuffix
}

// Base strips a "_minimal" suffix, returning the underlying strategy.
func (s Strategy) Base() Strategy {
	if s.IsMinimal() {
		return s[:len(s)-len(minimalSuffix)]
	}
	return s
}

// PerSymbol reports whether a strategy matches instances within each
// symbol separately (spec §4.3's strategy table), as opposed to treating
// every instance as one "all" bucket.
func (s Strategy) PerSymbol() bool {
	switch s.Base() {
	case RandomTT, CTC, BC:
		return true
	default:
		return false
	}
}

func (s Strategy) validate() error {
	switch s.Base() {
	case Random, RandomTT, CTC, LGL, BC:
		return nil
	case HEM:
		return fmt.Errorf("combine: HEM is not a combination operation")
	default:
		return fmt.Errorf("combine: unknown strategy %q", s)
	}
}
