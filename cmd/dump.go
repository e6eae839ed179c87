package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/pepperpots/fusehpm/fuse/ports"
	"github.com/pepperpots/fusehpm/fuse/target"
)

// runDump implements the --dump_instances / --dump_dependency_matrix
// utilities (spec §6): parse --tracefile and write the requested dump
// next to it, <tracefile>.instances.csv (PrintToFile's CSV) and/or
// <tracefile>.dependencies.dot (a GraphViz DOT graph). When
// --case_folder is also given, the Target's
// declared runtime is used; otherwise openmp is assumed, since the
// utilities' CLI surface carries no separate --runtime flag.
func runDump() error {
	if tracefileFlag == "" {
		return fmt.Errorf("cmd: --tracefile is required with --dump_instances/--dump_dependency_matrix")
	}

	runtime := ports.RuntimeOpenMP
	if caseFolder != "" {
		tgt, err := target.Load(caseFolder)
		if err != nil {
			return fmt.Errorf("cmd: loading target for dump: %w", err)
		}
		runtime = tgt.Runtime
	}

	parser := newLineTraceParser()
	prof, err := parser.ParseTrace(tracefileFlag, runtime, dumpDependencyMatrix)
	if err != nil {
		return fmt.Errorf("cmd: parsing tracefile for dump: %w", err)
	}

	dir := filepath.Dir(tracefileFlag)
	base := filepath.Base(tracefileFlag)

	if dumpInstancesFlag {
		out := filepath.Join(dir, base+".instances.csv")
		if err := prof.PrintToFile(out); err != nil {
			return fmt.Errorf("cmd: dumping instances: %w", err)
		}
	}
	if dumpDependencyMatrix {
		out := filepath.Join(dir, base+".dependencies.dot")
		if err := prof.DumpInstanceDependenciesDot(out); err != nil {
			return fmt.Errorf("cmd: dumping dependency graph: %w", err)
		}
	}
	return nil
}
