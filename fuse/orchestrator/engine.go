// Package orchestrator implements the seven top-level operations spec
// §4.8 names on a Target: execute_references, execute_sequence_repeats,
// execute_hem_repeats, combine_sequence_repeats, analyse_sequence_combinations,
// calculate_calibration_tmds, and generate_bc_sequence. Each is a thin
// orchestration of §4.1-§4.7's packages, calling out to the external
// Profiler/TraceParser collaborators declared in fuse/ports.
package orchestrator

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/ports"
	"github.com/pepperpots/fusehpm/fuse/profile"
	"github.com/pepperpots/fusehpm/fuse/target"
)

// Engine bundles a Target with the external collaborators and the
// numeric config every orchestrator operation needs.
type Engine struct {
	Target   *target.Target
	Config   fuse.EngineConfig
	Profiler ports.Profiler
	Parser   ports.TraceParser
}

// New returns an Engine wired to run operations on t.
func New(t *target.Target, cfg fuse.EngineConfig, profiler ports.Profiler, parser ports.TraceParser) *Engine {
	return &Engine{Target: t, Config: cfg, Profiler: profiler, Parser: parser}
}

// executeWithRetry runs the profiler up to Config.MaxExecutionAttempts
// times, applying a 1-second back-off and the Target's configured cache
// clearer between attempts, per spec §5's cancellation/timeout model.
func (e *Engine) executeWithRetry(binary string, tracefile string, events []fuse.Event, multiplex bool) error {
	args := splitArgs(e.Target.Args)
	var lastErr error
	for attempt := 0; attempt < e.Config.MaxExecutionAttempts; attempt++ {
		if attempt > 0 {
			if e.Target.ShouldClearCache {
				if err := e.Config.ClearCache(); err != nil {
					e.Config.Log.Warnf("orchestrator: cache clear before retry failed: %v", err)
				}
			}
			time.Sleep(time.Second)
		}
		err := e.Profiler.Execute(e.Target.Runtime, binary, args, tracefile, events, e.Target.ShouldClearCache, multiplex)
		if err == nil {
			return nil
		}
		lastErr = err
		e.Config.Log.Warnf("orchestrator: profiler execution attempt %d/%d failed: %v", attempt+1, e.Config.MaxExecutionAttempts, err)
	}
	return fmt.Errorf("orchestrator: execution failed after %d attempts: %w", e.Config.MaxExecutionAttempts, lastErr)
}

func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	return strings.Fields(args)
}

func (e *Engine) binaryPath() string {
	return filepath.Join(e.Target.BinaryDirectory, e.Target.Binary)
}

// hardwareCompatible delegates to the external Profiler's static PAPI
// event-chooser vetting (spec §6's CompatibilityCheck), the sequence
// generator's sole source of hardware-compatibility decisions (spec §4.7's
// "Check hardware compatibility of Lset ∪ Uset").
func (e *Engine) hardwareCompatible(events []fuse.Event) (bool, error) {
	return e.Profiler.CompatibilityCheck(events, e.Target.PAPIDirectory)
}

func eventStrings(events []fuse.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = string(ev)
	}
	return out
}

// eventsKey renders a sorted, "-"-joined event set for deterministic
// filenames, mirroring the delimiter spec §6 uses for the calibration CSV
// events column.
func eventsKey(events []fuse.Event) string {
	sorted := append([]fuse.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = string(e)
	}
	return strings.Join(parts, "-")
}

func referenceTracefileName(setIdx int, repeat int) string {
	return fmt.Sprintf("reference_set_%d_repeat_%d.trace", setIdx, repeat)
}

func sequenceTracefileName(minimal bool, events []fuse.Event, repeat int) string {
	kind := "bc"
	if minimal {
		kind = "minimal"
	}
	return fmt.Sprintf("sequence_%s_%s_repeat_%d.trace", kind, eventsKey(events), repeat)
}

func hemTracefileName(repeat int) string {
	return fmt.Sprintf("hem_repeat_%d.trace", repeat)
}

func combinationDumpPath(dir string, strategy string, repeat int) string {
	return filepath.Join(dir, fmt.Sprintf("combined_%s_repeat_%d.csv", strategy, repeat))
}

// addProfileStatistics folds every instance's observed event values from
// prof into the Target's Statistics accumulator (spec §5: "the Statistics
// accumulator is appended to only from the orchestration thread").
func addProfileStatistics(acc statsAdder, prof *profile.Profile) {
	for _, in := range prof.GetInstances(true) {
		for e, v := range in.EventValues {
			acc.Add(e, v, in.Symbol)
		}
	}
}

// statsAdder is the minimal surface addProfileStatistics needs from
// *stats.Accumulator, kept small to avoid an import cycle concern and to
// make the helper trivially testable with a fake.
type statsAdder interface {
	Add(event fuse.Event, value int64, symbol fuse.Symbol)
}
