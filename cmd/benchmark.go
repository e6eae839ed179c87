package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pepperpots/fusehpm/fuse/combine"
)

type benchmarkStage struct {
	name     string
	duration time.Duration
}

// runBenchmark implements --benchmark (SPEC_FULL §10.4, grounded on
// original_source/'s benchmark mode): runs a full
// references -> sequence -> combine -> analyse pipeline back to back and
// prints a stage-by-stage wall-time table.
func runBenchmark(b *engineBundle, outputFile string) error {
	var stages []benchmarkStage

	run := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		stages = append(stages, benchmarkStage{name: name, duration: time.Since(start)})
		return err
	}

	referenceRepeats := int(b.target.NumReferenceRepeats)
	if referenceRepeats == 0 {
		referenceRepeats = 1
	}
	sequenceRepeats := int(b.target.NumBCSequenceRepeats)
	if sequenceRepeats == 0 {
		sequenceRepeats = 1
	}
	strategies, err := parseStrategies(strategiesFlag, minimalFlag)
	if err != nil {
		return err
	}

	if err := run("execute_references", func() error {
		return b.engine.ExecuteReferences(referenceRepeats)
	}); err != nil {
		return err
	}
	if err := run("run_calibration", func() error {
		return runCalibration(b)
	}); err != nil {
		return err
	}
	if err := run("execute_sequence", func() error {
		return runExecuteSequence(b, sequenceRepeats, minimalFlag, strategies)
	}); err != nil {
		return err
	}
	if err := run("combine_sequence", func() error {
		return runCombineSequence(b, strategies, minimalFlag)
	}); err != nil {
		return err
	}
	if err := run("analyse_accuracy", func() error {
		return runAnalyseAccuracy(b, combineOnly(strategies), minimalFlag, "")
	}); err != nil {
		return err
	}

	w, closeFn, err := analysisOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeFn()

	printStages(w, stages)
	if err := saveEngineState(b); err != nil {
		return err
	}
	return nil
}

func combineOnly(strategies []combine.Strategy) []combine.Strategy {
	var out []combine.Strategy
	for _, s := range strategies {
		if s.Base() != combine.HEM {
			out = append(out, s)
		}
	}
	return out
}

func printStages(w io.Writer, stages []benchmarkStage) {
	for _, s := range stages {
		fmt.Fprintf(w, "%-20s %v\n", s.name, s.duration)
	}
	logrus.Infof("benchmark: %d stages completed", len(stages))
}
