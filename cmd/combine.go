package cmd

import (
	"github.com/pepperpots/fusehpm/fuse/combine"
)

// runCombineSequence implements --combine_sequence: for every requested
// strategy, fuses every profiled repeat not yet recorded in the Target's
// combined_indexes bookkeeping (spec §6). The number of profiled repeats
// is the Target's configured repeat count for whichever sequence variant
// is selected.
func runCombineSequence(b *engineBundle, strategies []combine.Strategy, minimal bool) error {
	total := int(b.target.NumBCSequenceRepeats)
	if minimal {
		total = int(b.target.NumMinimalSequenceRepeats)
	}

	for _, strategy := range strategies {
		if strategy.Base() == combine.HEM {
			continue
		}
		pending := pendingRepeats(b, strategy, total)
		if len(pending) == 0 {
			continue
		}
		if err := b.engine.CombineSequenceRepeats([]combine.Strategy{strategy}, pending, minimal); err != nil {
			return err
		}
	}
	return nil
}

// pendingRepeats returns every repeat index in [0,total) not yet recorded
// as combined for strategy.
func pendingRepeats(b *engineBundle, strategy combine.Strategy, total int) []int {
	done := make(map[int]bool, len(b.target.CombinedIndexes[strategy]))
	for _, r := range b.target.CombinedIndexes[strategy] {
		done[r] = true
	}
	var out []int
	for r := 0; r < total; r++ {
		if !done[r] {
			out = append(out, r)
		}
	}
	return out
}
