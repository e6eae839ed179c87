package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/profile"
	"github.com/pepperpots/fusehpm/fuse/reference"
	"github.com/pepperpots/fusehpm/fuse/sequence"
	"github.com/pepperpots/fusehpm/fuse/target"
)

// GenerateBCSequence implements generate_bc_sequence(): runs the
// branch-and-bound search over BC-style combination sequences (spec
// §4.7), sourcing and fusing real profiles through the evaluator below,
// and installs the winning sequence into the Target's BCSequence field.
func (e *Engine) GenerateBCSequence(cache *reference.Cache, table *analyzer.Table) error {
	mi, err := e.computeMIMatrix(cache)
	if err != nil {
		return fmt.Errorf("orchestrator: generate_bc_sequence: building MI matrix: %w", err)
	}

	metric, err := sequence.ParseMetric(e.Config.SequenceMetric)
	if err != nil {
		return fmt.Errorf("orchestrator: generate_bc_sequence: %w", err)
	}

	gen := &sequence.Generator{
		TargetEvents: e.Target.TargetEvents,
		MI:           mi,
		K:            e.Config.HardwareCounters,
		Lmax:         e.Config.SequenceLmax,
		Compatible:   e.hardwareCompatible,
		Concurrency:  e.Config.SequenceConcurrency,
		MaxNodes:     e.Config.MaxSequenceNodes,
	}

	root, err := gen.Root()
	if err != nil {
		return fmt.Errorf("orchestrator: generate_bc_sequence: root selection: %w", err)
	}

	evaluator := newSequenceEvaluator(e, cache, table)
	rootProfiles, err := evaluator.profilesFor(root.CombinedEvents)
	if err != nil {
		return fmt.Errorf("orchestrator: generate_bc_sequence: profiling root %v: %w", root.CombinedEvents, err)
	}
	evaluator.fused[sequenceKey(root.Sequence)] = rootProfiles

	best, err := gen.Run(root, evaluator, metric)
	if err != nil {
		return fmt.Errorf("orchestrator: generate_bc_sequence: %w", err)
	}

	e.Target.BCSequence = best.Sequence
	return nil
}

// miCachePath is the on-disk MI cache SPEC_FULL §6 adds, stored alongside
// the reference distributions.
func (e *Engine) miCachePath() string {
	return filepath.Join(e.Target.ReferencesDirectory, "mi_cache.csv")
}

// computeMIMatrix loads the cached mutual-information matrix from
// ReferencesDirectory, computes any reference pair missing from it using
// the reference cache's repeat-0 distribution, and persists the result
// back (SPEC_FULL §6: "loaded from disk or computed from reference
// distributions... recomputed lazily the first time root selection needs
// a pair not yet present").
func (e *Engine) computeMIMatrix(cache *reference.Cache) (sequence.MIMatrix, error) {
	path := e.miCachePath()
	mi, err := sequence.LoadMI(path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading MI cache: %w", err)
	}

	dirty := false
	for _, pair := range e.Target.ReferencePairs() {
		if _, ok := mi[pair]; ok {
			continue
		}
		events := []fuse.Event{pair.A, pair.B}
		projection, err := cache.GetOrLoadReferenceDistribution(events, 0, nil)
		if err != nil {
			e.Config.Log.Warnf("orchestrator: no reference data for %s, MI left at zero", pair)
			continue
		}
		mi[pair] = sequence.ComputeMI(projection, e.Config.TMDBinCount)
		dirty = true
	}

	if dirty {
		if err := sequence.SaveMI(path, mi); err != nil {
			return nil, fmt.Errorf("orchestrator: saving MI cache: %w", err)
		}
	}
	return mi, nil
}

// sequenceEvaluator implements sequence.Evaluator: it sources raw
// per-repeat profiles for a candidate's event set, fuses them against the
// parent's combined-profile repeats via BC, computes calibrated TMDs for
// every newly observed reference pair, and builds the resulting Node
// (spec §4.7's "Profile sourcing", "Combination", "Evaluation").
type sequenceEvaluator struct {
	engine *Engine
	cache  *reference.Cache
	table  *analyzer.Table

	numRepeats int

	// raw caches per-repeat profiles for a raw (unfused) event set, keyed
	// by its canonical eventsKey, reused across candidates that request
	// the same set (spec §4.7's "Profile sourcing").
	raw map[string][]*profile.Profile

	// fused caches per-repeat fused profiles for a full combination
	// sequence reached so far, keyed by its canonical string form (spec
	// §4.7's "Combination": "canonical string form of the node's full
	// combination sequence").
	fused map[string][]*profile.Profile
}

func newSequenceEvaluator(e *Engine, cache *reference.Cache, table *analyzer.Table) *sequenceEvaluator {
	n := int(e.Target.NumBCSequenceRepeats)
	if n < 1 {
		n = 1
	}
	return &sequenceEvaluator{
		engine:     e,
		cache:      cache,
		table:      table,
		numRepeats: n,
		raw:        make(map[string][]*profile.Profile),
		fused:      make(map[string][]*profile.Profile),
	}
}

// sequenceKey renders the canonical string form of seq: each part's
// overlapping and unique events, in part order, joined so that two
// sequences differing in partitioning never collide.
func sequenceKey(seq target.Sequence) string {
	parts := make([]string, len(seq))
	for i, part := range seq {
		parts[i] = eventsKey(part.Overlapping) + ">" + eventsKey(part.Unique)
	}
	return strings.Join(parts, "|")
}

// profilesFor returns numRepeats profiles of events, reusing a previously
// profiled set when one was already sourced for this exact event set,
// else driving the external Profiler through the engine.
func (s *sequenceEvaluator) profilesFor(events []fuse.Event) ([]*profile.Profile, error) {
	key := eventsKey(events)
	if cached, ok := s.raw[key]; ok {
		return cached, nil
	}

	e := s.engine
	profiles := make([]*profile.Profile, s.numRepeats)
	for repeat := 0; repeat < s.numRepeats; repeat++ {
		tracefile := filepath.Join(e.Target.TracefilesDirectory, generatorTracefileName(events, repeat))
		if err := e.executeWithRetry(e.binaryPath(), tracefile, events, false); err != nil {
			return nil, fmt.Errorf("profiling %v repeat %d: %w", events, repeat, err)
		}
		prof, err := e.Parser.ParseTrace(tracefile, e.Target.Runtime, false)
		if err != nil {
			return nil, fmt.Errorf("parsing %v repeat %d: %w", events, repeat, err)
		}
		addProfileStatistics(e.Target.Statistics, prof)
		profiles[repeat] = prof
	}

	s.raw[key] = profiles
	return profiles, nil
}

func generatorTracefileName(events []fuse.Event, repeat int) string {
	return fmt.Sprintf("generate_%s_repeat_%d.trace", eventsKey(events), repeat)
}

// fusedFor returns the per-repeat fused profiles representing parent's
// combined state so far, building and caching them on first use.
func (s *sequenceEvaluator) fusedFor(parent *sequence.Node) ([]*profile.Profile, error) {
	key := sequenceKey(parent.Sequence)
	if cached, ok := s.fused[key]; ok {
		return cached, nil
	}
	// Fallback for a parent with no cached fused profiles: GenerateBCSequence
	// pre-seeds the root and fuse caches every evaluated child.
	return s.profilesFor(parent.CombinedEvents)
}

// Evaluate implements sequence.Evaluator.
func (s *sequenceEvaluator) Evaluate(parent *sequence.Node, candidate sequence.Candidate) (*sequence.Node, error) {
	required := append(append([]fuse.Event(nil), candidate.Lset...), candidate.Uset...)
	rawProfiles, err := s.profilesFor(required)
	if err != nil {
		return nil, fmt.Errorf("sequence evaluator: %w", err)
	}

	parentProfiles, err := s.fusedFor(parent)
	if err != nil {
		return nil, fmt.Errorf("sequence evaluator: %w", err)
	}

	newSeq := append(append(target.Sequence(nil), parent.Sequence...), target.SequencePart{
		PartIndex:   uint32(len(parent.Sequence)),
		Overlapping: append([]fuse.Event(nil), candidate.Lset...),
		Unique:      append([]fuse.Event(nil), candidate.Uset...),
	})
	seqKey := sequenceKey(newSeq)

	fusedProfiles, err := s.fuse(seqKey, parentProfiles, rawProfiles, candidate.Lset)
	if err != nil {
		return nil, fmt.Errorf("sequence evaluator: %w", err)
	}

	combinedEvents := append(append([]fuse.Event(nil), parent.CombinedEvents...), candidate.Uset...)

	tmds := make(map[analyzer.EventPair]float64, len(parent.TMDs))
	for p, v := range parent.TMDs {
		tmds[p] = v
	}
	meanInstanceCount := make(map[analyzer.EventPair]float64)

	nonLinking := subtractEvents(parent.CombinedEvents, candidate.Lset)
	newWithin := pairsWithin(candidate.Uset)
	newCross := pairsCross(candidate.Uset, nonLinking)

	for _, pair := range append(append([]analyzer.EventPair(nil), newWithin...), newCross...) {
		value, meanCount, err := s.calibratedPair(fusedProfiles, pair)
		if err != nil {
			return nil, fmt.Errorf("sequence evaluator: calibrated TMD for %s: %w", pair, err)
		}
		tmds[pair] = value
		meanInstanceCount[pair] = meanCount
	}

	return sequence.NewEvaluatedNode(combinedEvents, newSeq, tmds, newWithin, newCross, meanInstanceCount)
}

// fuse folds each repeat of next against the matching repeat of parent via
// BC, dumping the result and caching it under seqKey (spec §4.7's
// "Combination": "fuse each execution-profile repeat against the parent
// node's per-repeat profile via BC, save combined outputs to disk").
func (s *sequenceEvaluator) fuse(seqKey string, parent, next []*profile.Profile, overlapping []fuse.Event) ([]*profile.Profile, error) {
	if cached, ok := s.fused[seqKey]; ok {
		return cached, nil
	}

	e := s.engine
	out := make([]*profile.Profile, len(parent))
	for repeat := range parent {
		opts := combine.Options{
			TargetFilename:        filepath.Join(e.Target.CombinationsDirectory, fmt.Sprintf("generate_%x_repeat_%d.csv", hashKey(seqKey), repeat)),
			OverlappingPerProfile: [][]fuse.Event{overlapping},
			Statistics:            e.Target.Statistics,
			Log:                   e.Config.Log,
		}
		combined, err := combine.CombineProfiles([]*profile.Profile{parent[repeat], next[repeat]}, combine.BC, opts)
		if err != nil {
			return nil, fmt.Errorf("combining repeat %d: %w", repeat, err)
		}
		if err := combined.PrintToFile(opts.TargetFilename); err != nil {
			return nil, fmt.Errorf("dumping combined repeat %d: %w", repeat, err)
		}
		out[repeat] = combined
	}

	s.fused[seqKey] = out
	return out, nil
}

// calibratedPair computes pair's calibrated TMD against one reference
// repeat, averaged over fusedProfiles' repeats (spec §4.7's "Evaluation":
// "compute calibrated TMDs on one reference repeat, average over the
// node's combined-profile repeats").
func (s *sequenceEvaluator) calibratedPair(fusedProfiles []*profile.Profile, pair analyzer.EventPair) (value float64, meanInstanceCount float64, err error) {
	events := []fuse.Event{pair.A, pair.B}

	key := analyzer.Key{Symbol: fuse.SymbolAllSymbols, Pair: pair}
	entry, err := s.table.Get(key)
	if err != nil {
		return 0, 0, fmt.Errorf("no calibration entry: %w", err)
	}

	referenceProjection, err := s.cache.GetOrLoadReferenceDistribution(events, 0, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("reference repeat 0: %w", err)
	}

	bounds, err := s.engine.pairBounds(pair, fuse.SymbolAllSymbols)
	if err != nil {
		return 0, 0, err
	}

	var sum float64
	var count float64
	for _, prof := range fusedProfiles {
		projection, err := prof.GetValueDistribution(events, false)
		if err != nil {
			return 0, 0, fmt.Errorf("combined projection: %w", err)
		}
		calibrated, err := analyzer.CalibratedPairTMD(projection, [][][]int64{referenceProjection}, bounds, s.engine.Config.TMDBinCount, entry.Median)
		if err != nil {
			return 0, 0, err
		}
		sum += calibrated
		count += float64(len(projection))
	}
	return sum / float64(len(fusedProfiles)), count / float64(len(fusedProfiles)), nil
}

func subtractEvents(all, remove []fuse.Event) []fuse.Event {
	removeSet := fuse.NewEventSet(eventStrings(remove)...)
	var out []fuse.Event
	for _, e := range all {
		if !removeSet.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

func pairsWithin(events []fuse.Event) []analyzer.EventPair {
	var out []analyzer.EventPair
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			out = append(out, analyzer.NewEventPair(events[i], events[j]))
		}
	}
	return out
}

func pairsCross(a, b []fuse.Event) []analyzer.EventPair {
	var out []analyzer.EventPair
	for _, x := range a {
		for _, y := range b {
			out = append(out, analyzer.NewEventPair(x, y))
		}
	}
	return out
}

func hashKey(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}
