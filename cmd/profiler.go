package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/ports"
)

// subprocessProfiler is the CLI's concrete ports.Profiler: it launches
// the target binary as a subprocess, passing the chosen event subset and
// tracefile destination via environment variables. Programming the
// hardware counters themselves and writing the tracefile is the target
// binary's own responsibility (spec.md's "no hardware counter access"
// Non-goal places that instrumentation out of this module's scope; this
// type only launches the process, which spec §6's Profiler interface
// says is all the engine requires of it).
type subprocessProfiler struct{}

func newSubprocessProfiler() *subprocessProfiler { return &subprocessProfiler{} }

// Execute runs binary under runtime with args, asking it to record
// events into tracefile via FUSEHPM_* environment variables.
func (subprocessProfiler) Execute(runtime ports.Runtime, binary string, args []string, tracefile string, events []fuse.Event, clearCache, multiplex bool) error {
	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(),
		"FUSEHPM_TRACEFILE="+tracefile,
		"FUSEHPM_EVENTS="+joinEvents(events),
		"FUSEHPM_RUNTIME="+string(runtime),
		"FUSEHPM_MULTIPLEX="+strconv.FormatBool(multiplex),
		"FUSEHPM_CLEAR_CACHE="+strconv.FormatBool(clearCache),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cmd: executing %s: %w (output: %s)", binary, err, truncate(out, 2048))
	}
	return nil
}

// CompatibilityCheck performs a minimal static vetting of events against
// papiDirectory/max_counters, a single-integer file naming how many
// simultaneous hardware counters the target CPU exposes. A missing file
// means no static information is available (no PAPI event chooser
// integration is in scope, per spec.md's Non-goals) and the check
// passes permissively.
func (subprocessProfiler) CompatibilityCheck(events []fuse.Event, papiDirectory string) (bool, error) {
	data, err := os.ReadFile(papiDirectory + "/max_counters")
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("cmd: reading papi max_counters: %w", err)
	}
	max, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, fmt.Errorf("cmd: parsing papi max_counters: %w", err)
	}
	return len(events) <= max, nil
}

func joinEvents(events []fuse.Event) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = string(e)
	}
	return strings.Join(names, ",")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
