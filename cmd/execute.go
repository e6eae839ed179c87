package cmd

import (
	"fmt"

	"github.com/pepperpots/fusehpm/fuse/combine"
)

// runExecuteSequence implements --execute_sequence N: profiles the chosen
// sequence n times. For the BC sequence, if the Target has none loaded
// from fuse.json yet, generate_bc_sequence (spec §4.7) runs first so the
// search's branch-and-bound output is what gets profiled — the CLI
// surface spec.md §6 fixes has no separate flag for sequence generation,
// so execute_sequence is its trigger (spec §9's "Treat §4.8 as
// authoritative" note on the ambiguous CLI/orchestrator boundary applies
// here too). If strategies includes HEM, ground-truth HEM repeats are
// profiled alongside the sequence (HEM is never itself a Combination
// sequence; it profiles the full target event set directly, spec §4.3.8).
func runExecuteSequence(b *engineBundle, n int, minimal bool, strategies []combine.Strategy) error {
	if !minimal && len(b.target.BCSequence) == 0 {
		if err := b.engine.GenerateBCSequence(b.cache, b.table); err != nil {
			return fmt.Errorf("cmd: generating bc sequence: %w", err)
		}
	}

	if err := b.engine.ExecuteSequenceRepeats(n, minimal); err != nil {
		return err
	}

	if includesHEM(strategies) {
		if err := b.engine.ExecuteHEMRepeats(n); err != nil {
			return err
		}
	}
	return nil
}

func includesHEM(strategies []combine.Strategy) bool {
	for _, s := range strategies {
		if s.Base() == combine.HEM {
			return true
		}
	}
	return false
}
