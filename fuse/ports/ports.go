// Package ports declares the external collaborator interfaces spec.md §6
// names but explicitly places out of this module's scope: trace-file
// parsing and profiling execution. The orchestrator depends only on these
// interfaces; concrete implementations (platform tracefile parsers,
// subprocess profiler launchers) are supplied by the embedding
// application.
package ports

import (
	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/profile"
)

// Runtime identifies the instrumented runtime a tracefile was captured
// under.
type Runtime string

const (
	RuntimeOpenStream Runtime = "openstream"
	RuntimeOpenMP     Runtime = "openmp"
)

// Profiler launches the target binary with a chosen event subset and
// reports whether the run succeeded. On success the engine assumes
// tracefile will exist and be parseable.
type Profiler interface {
	// Execute runs binary under runtime with args, recording events into
	// tracefile. clearCache requests a page-cache flush before the run
	// (spec §6); multiplex requests HEM-style hardware event
	// multiplexing rather than a single fixed event subset.
	Execute(runtime Runtime, binary string, args []string, tracefile string, events []fuse.Event, clearCache, multiplex bool) error

	// CompatibilityCheck performs static vetting of events against the
	// PAPI event chooser at papiDirectory, rejecting event sets larger
	// than the CPU can monitor simultaneously.
	CompatibilityCheck(events []fuse.Event, papiDirectory string) (bool, error)
}

// TraceParser populates an Execution profile from a captured tracefile.
type TraceParser interface {
	// ParseTrace reads tracefile (captured under runtime) into a fresh
	// Execution profile, synthesizing one runtime Instance per CPU.
	// Dependency edges are populated only when loadCommMatrix is true.
	ParseTrace(tracefile string, runtime Runtime, loadCommMatrix bool) (*profile.Profile, error)
}
