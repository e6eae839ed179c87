package combine

import (
	"fmt"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/profile"
	"github.com/pepperpots/fusehpm/fuse/stats"
)

// Match is one set of instances, one per input profile, that the matcher
// decided correspond to the same execution.
type Match []*fuse.Instance

// CombineInstances reduces one Match into a single fused Instance. The
// output inherits label, cpu, symbol, start, and end from the first
// input; for every event seen across inputs the first-observed value
// wins (spec §4.3: "for every event seen across the inputs the first
// observed value wins").
func CombineInstances(match Match) *fuse.Instance {
	first := match[0]
	out := &fuse.Instance{
		Symbol:        first.Symbol,
		Label:         append(fuse.Label(nil), first.Label...),
		CPU:           first.CPU,
		Start:         first.Start,
		End:           first.End,
		IsGPUEligible: first.IsGPUEligible,
		EventValues:   make(map[fuse.Event]int64),
	}
	for _, in := range match {
		for e, v := range in.EventValues {
			if _, already := out.EventValues[e]; !already {
				out.EventValues[e] = v
			}
		}
	}
	return out
}

// Options carries the inputs CombineProfiles needs beyond the profile
// list and strategy: BC's overlapping events (one list per adjacent
// profile pair, spec §4.3.4) and the statistics accumulator BC clusters
// against.
type Options struct {
	TargetFilename        string
	BinaryName            string
	OverlappingPerProfile [][]fuse.Event
	Statistics            *stats.Accumulator
	Log                   logger

	// Seed, when non-nil, seeds the Random/RandomTT matcher
	// deterministically (one derived sub-seed per input list) instead of
	// the engine's default content-derived seed.
	Seed *int64

	// NoShuffle disables the Random matcher's permutation step entirely,
	// matching positionally in input order. Used by callers that have
	// already validated a fixed seed reduces to the identity permutation
	// (spec §8 scenario S1) without coupling tests to math/rand's
	// internal algorithm.
	NoShuffle bool
}

// logger is the minimal surface combine needs from *logrus.Entry, kept
// small so tests don't need a real logrus dependency to exercise warnings.
type logger interface {
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...interface{}) {}

// CombineProfiles is the engine's public entry point (spec §4.3):
// combine_profiles_via_strategy. Precondition: len(profiles) >= 2.
// Returns fuse.ErrPreconditionViolated for fewer than two inputs, for BC
// without statistics/overlap, and for HEM (a profiler-level output, not a
// combination operation).
func CombineProfiles(profiles []*profile.Profile, strategy Strategy, opts Options) (*profile.Profile, error) {
	if len(profiles) < 2 {
		return nil, fmt.Errorf("%w: combine requires at least 2 profiles, got %d", fuse.ErrPreconditionViolated, len(profiles))
	}
	if err := strategy.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", fuse.ErrPreconditionViolated, err)
	}
	if opts.Log == nil {
		opts.Log = noopLogger{}
	}

	out := profile.New(opts.TargetFilename)
	for _, p := range profiles {
		for _, e := range p.GetUniqueEvents() {
			out.AddEvent(e)
		}
	}

	symbols := []fuse.Symbol{""}
	if strategy.PerSymbol() {
		symbols = unionSymbols(profiles)
	}

	for _, symbol := range symbols {
		var lists [][]*fuse.Instance
		for _, p := range profiles {
			if symbol == "" {
				lists = append(lists, p.GetInstances(false))
			} else {
				lists = append(lists, p.GetInstances(false, symbol))
			}
		}

		var matches []Match
		var err error
		switch strategy.Base() {
		case Random, RandomTT:
			matches = matchRandom(lists, opts.Log, opts.Seed, opts.NoShuffle)
		case CTC:
			matches = matchChronological(lists, opts.Log)
		case LGL:
			matches = matchLabel(lists, opts.Log)
		case BC:
			matches, err = matchBC(lists, opts, opts.Log)
		}
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out.AddInstance(CombineInstances(m))
		}
	}

	// Copy the source's runtime instances unchanged from the first input
	// profile (spec §4.3).
	for _, in := range profiles[0].GetInstances(true, fuse.SymbolRuntime) {
		out.AddInstance(in.Clone())
	}

	return out, nil
}

func unionSymbols(profiles []*profile.Profile) []fuse.Symbol {
	seen := make(map[fuse.Symbol]struct{})
	var out []fuse.Symbol
	for _, p := range profiles {
		for _, s := range p.GetUniqueSymbols() {
			if s == fuse.SymbolRuntime {
				continue
			}
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}

// minLen returns the smallest length among lists.
func minLen(lists [][]*fuse.Instance) int {
	if len(lists) == 0 {
		return 0
	}
	m := len(lists[0])
	for _, l := range lists[1:] {
		if len(l) < m {
			m = len(l)
		}
	}
	return m
}

func zip(lists [][]*fuse.Instance, n int) []Match {
	matches := make([]Match, n)
	for i := 0; i < n; i++ {
		m := make(Match, len(lists))
		for j, l := range lists {
			m[j] = l[i]
		}
		matches[i] = m
	}
	return matches
}
