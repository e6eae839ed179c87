package orchestrator

import (
	"fmt"
	"path/filepath"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/profile"
	"github.com/pepperpots/fusehpm/fuse/target"
)

func (e *Engine) sequence(minimal bool) target.Sequence {
	if minimal {
		return e.Target.MinimalSequence
	}
	return e.Target.BCSequence
}

func (e *Engine) tracefilePath(minimal bool, part target.SequencePart, repeat int) string {
	events := append(append([]fuse.Event(nil), part.Overlapping...), part.Unique...)
	return filepath.Join(e.Target.TracefilesDirectory, sequenceTracefileName(minimal, events, repeat))
}

// ExecuteSequenceRepeats implements execute_sequence_repeats(n, minimal):
// profiles every part of the chosen Combination sequence n times, folding
// each run's observed event values into the Target's Statistics
// accumulator as it goes.
func (e *Engine) ExecuteSequenceRepeats(n int, minimal bool) error {
	seq := e.sequence(minimal)
	if len(seq) == 0 {
		return fmt.Errorf("orchestrator: execute_sequence_repeats: sequence is empty (minimal=%v)", minimal)
	}

	for repeat := 0; repeat < n; repeat++ {
		for _, part := range seq {
			events := append(append([]fuse.Event(nil), part.Overlapping...), part.Unique...)
			tracefile := e.tracefilePath(minimal, part, repeat)
			if err := e.executeWithRetry(e.binaryPath(), tracefile, events, false); err != nil {
				return fmt.Errorf("orchestrator: execute_sequence_repeats part %d repeat %d: %w", part.PartIndex, repeat, err)
			}

			prof, err := e.Parser.ParseTrace(tracefile, e.Target.Runtime, false)
			if err != nil {
				return fmt.Errorf("orchestrator: parse sequence trace part %d repeat %d: %w", part.PartIndex, repeat, err)
			}
			addProfileStatistics(e.Target.Statistics, prof)
		}
	}
	return nil
}

// ExecuteHEMRepeats implements execute_hem_repeats(n): profiles the full
// target event set n times using hardware event multiplexing rather than
// a partitioned sequence (spec §4.3.8). HEM profiles are ground truth for
// accuracy comparison; they are never combined (combine.CombineProfiles
// rejects the HEM strategy).
func (e *Engine) ExecuteHEMRepeats(n int) error {
	for repeat := 0; repeat < n; repeat++ {
		tracefile := filepath.Join(e.Target.TracefilesDirectory, hemTracefileName(repeat))
		if err := e.executeWithRetry(e.binaryPath(), tracefile, e.Target.TargetEvents, true); err != nil {
			return fmt.Errorf("orchestrator: execute_hem_repeats repeat %d: %w", repeat, err)
		}

		prof, err := e.Parser.ParseTrace(tracefile, e.Target.Runtime, false)
		if err != nil {
			return fmt.Errorf("orchestrator: parse hem trace repeat %d: %w", repeat, err)
		}
		addProfileStatistics(e.Target.Statistics, prof)

		dumpPath := combinationDumpPath(e.Target.CombinationsDirectory, string(combine.HEM), repeat)
		if err := prof.PrintToFile(dumpPath); err != nil {
			return fmt.Errorf("orchestrator: dumping hem profile repeat %d: %w", repeat, err)
		}
	}
	return nil
}

// combineRepeat parses every part's tracefile for repeat and folds them
// into a single fused profile under strategy, per spec §4.3's fold
// over adjacent (accumulator, next part) pairs, each matched against the
// next part's declared overlapping events.
func (e *Engine) combineRepeat(seq target.Sequence, minimal bool, strategy combine.Strategy, repeat int) (*profile.Profile, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("orchestrator: combine: sequence is empty")
	}

	profiles := make([]*profile.Profile, len(seq))
	for i, part := range seq {
		tracefile := e.tracefilePath(minimal, part, repeat)
		prof, err := e.Parser.ParseTrace(tracefile, e.Target.Runtime, false)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: combine: parsing part %d repeat %d: %w", part.PartIndex, repeat, err)
		}
		profiles[i] = prof
	}

	acc := profiles[0]
	for i := 1; i < len(profiles); i++ {
		opts := combine.Options{
			TargetFilename:        combinationDumpPath(e.Target.CombinationsDirectory, string(strategy), repeat),
			OverlappingPerProfile: [][]fuse.Event{seq[i].Overlapping},
			Statistics:            e.Target.Statistics,
			Log:                   e.Config.Log,
		}
		combined, err := combine.CombineProfiles([]*profile.Profile{acc, profiles[i]}, strategy, opts)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: combining part %d repeat %d via %s: %w", seq[i].PartIndex, repeat, strategy, err)
		}
		acc = combined
	}
	return acc, nil
}

// CombineSequenceRepeats implements combine_sequence_repeats(strategies,
// repeat_indexes, minimal): for each requested strategy and repeat index,
// fuses the sequence's per-part profiles, dumps the result, and records
// the repeat as combined in the Target's CombinedIndexes bookkeeping.
func (e *Engine) CombineSequenceRepeats(strategies []combine.Strategy, repeatIndexes []int, minimal bool) error {
	seq := e.sequence(minimal)
	for _, strategy := range strategies {
		if strategy.Base() == combine.HEM {
			continue
		}
		for _, repeat := range repeatIndexes {
			combined, err := e.combineRepeat(seq, minimal, strategy, repeat)
			if err != nil {
				return err
			}
			dumpPath := combinationDumpPath(e.Target.CombinationsDirectory, string(strategy), repeat)
			if err := combined.PrintToFile(dumpPath); err != nil {
				return fmt.Errorf("orchestrator: dumping combined profile (%s repeat %d): %w", strategy, repeat, err)
			}
			e.recordCombinedIndex(strategy, repeat)
		}
	}
	return nil
}

func (e *Engine) recordCombinedIndex(strategy combine.Strategy, repeat int) {
	for _, r := range e.Target.CombinedIndexes[strategy] {
		if r == repeat {
			return
		}
	}
	e.Target.CombinedIndexes[strategy] = append(e.Target.CombinedIndexes[strategy], repeat)
}
