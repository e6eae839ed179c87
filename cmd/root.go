// cmd/root.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/orchestrator"
	"github.com/pepperpots/fusehpm/fuse/reference"
	"github.com/pepperpots/fusehpm/fuse/stats"
	"github.com/pepperpots/fusehpm/fuse/target"
)

var (
	caseFolder           string
	executeSequenceN     int
	combineSequenceFlag  bool
	analyseAccuracyFlag  bool
	executeReferencesN   int
	runCalibrationFlag   bool
	strategiesFlag       string
	minimalFlag          bool
	debugFlag            bool
	dumpInstancesFlag    bool
	dumpDependencyMatrix bool
	tracefileFlag        string
	benchmarkFlag        bool
	outputFileFlag       string
)

var rootCmd = &cobra.Command{
	Use:   "fusehpm",
	Short: "Hardware-performance-monitoring data fusion research tool",
	RunE:  runRoot,
}

// Execute runs the root command, exiting non-zero on any raised error
// (spec §6's "Exit codes: 0 on success, non-zero on any raised error").
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&caseFolder, "case_folder", "", "directory holding the target's fuse.json")
	rootCmd.Flags().IntVar(&executeSequenceN, "execute_sequence", -1, "profile the chosen combination sequence this many repeats")
	rootCmd.Flags().BoolVar(&combineSequenceFlag, "combine_sequence", false, "fuse the chosen sequence's profiled repeats")
	rootCmd.Flags().BoolVar(&analyseAccuracyFlag, "analyse_accuracy", false, "compute calibrated accuracy for combined repeats")
	rootCmd.Flags().IntVar(&executeReferencesN, "execute_references", -1, "profile every reference event set this many repeats")
	rootCmd.Flags().BoolVar(&runCalibrationFlag, "run_calibration", false, "compute calibration TMDs from reference distributions")
	rootCmd.Flags().StringVar(&strategiesFlag, "strategies", "", "comma-separated subset of the closed strategy set (default: all)")
	rootCmd.Flags().BoolVar(&minimalFlag, "minimal", false, "operate on the minimal sequence instead of the BC sequence")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "raise log verbosity to debug")
	rootCmd.Flags().BoolVar(&dumpInstancesFlag, "dump_instances", false, "dump a tracefile's instances to CSV (requires --tracefile)")
	rootCmd.Flags().BoolVar(&dumpDependencyMatrix, "dump_dependency_matrix", false, "dump a tracefile's instance dependency graph (requires --tracefile)")
	rootCmd.Flags().StringVar(&tracefileFlag, "tracefile", "", "tracefile path for the dump utilities")
	rootCmd.Flags().BoolVar(&benchmarkFlag, "benchmark", false, "time a full references->sequence->combine->analyse pipeline")
	rootCmd.Flags().StringVar(&outputFileFlag, "output_file", "", "write --analyse_accuracy/--benchmark results here instead of stdout")
}

func runRoot(cmd *cobra.Command, args []string) error {
	level := logrus.InfoLevel
	if debugFlag {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if dumpInstancesFlag || dumpDependencyMatrix {
		return runDump()
	}

	if caseFolder == "" {
		return fmt.Errorf("cmd: --case_folder is required")
	}

	b, err := loadEngine(caseFolder)
	if err != nil {
		return err
	}

	if benchmarkFlag {
		return runBenchmark(b, outputFileFlag)
	}

	strategies, err := parseStrategies(strategiesFlag, minimalFlag)
	if err != nil {
		return err
	}

	ran := false

	if executeReferencesN >= 0 {
		if err := b.engine.ExecuteReferences(executeReferencesN); err != nil {
			return err
		}
		ran = true
	}
	if executeSequenceN >= 0 {
		if err := runExecuteSequence(b, executeSequenceN, minimalFlag, strategies); err != nil {
			return err
		}
		ran = true
	}
	if runCalibrationFlag {
		if err := runCalibration(b); err != nil {
			return err
		}
		ran = true
	}
	if combineSequenceFlag {
		if err := runCombineSequence(b, strategies, minimalFlag); err != nil {
			return err
		}
		ran = true
	}
	if analyseAccuracyFlag {
		if err := runAnalyseAccuracy(b, strategies, minimalFlag, outputFileFlag); err != nil {
			return err
		}
		ran = true
	}

	if !ran {
		return fmt.Errorf("cmd: no action flag given (see --help)")
	}

	return saveEngineState(b)
}

// engineBundle carries everything a CLI action needs: the loaded Target
// and its persisted side-state (reference cache, calibration table), and
// the Engine wired to drive them.
type engineBundle struct {
	dir    string
	target *target.Target
	config fuse.EngineConfig
	engine *orchestrator.Engine
	cache  *reference.Cache
	table  *analyzer.Table
}

func statisticsPath(dir string) string { return filepath.Join(dir, "statistics.csv") }
func calibrationPath(dir string) string { return filepath.Join(dir, "calibration.csv") }
func engineConfigPath(dir string) string { return filepath.Join(dir, "fuse.engine.yaml") }

// loadEngine reads a case folder's fuse.json descriptor, its optional
// fuse.engine.yaml, any previously persisted statistics.csv/calibration.csv,
// and opens the reference cache, wiring them all into a fresh Engine
// (SPEC_FULL §10.1/§6's on-disk layout).
func loadEngine(dir string) (*engineBundle, error) {
	tgt, err := target.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("cmd: loading target: %w", err)
	}

	cfg, err := fuse.LoadEngineConfig(engineConfigPath(dir))
	if err != nil {
		return nil, fmt.Errorf("cmd: loading engine config: %w", err)
	}
	cfg.ClientManagedLogging = true
	if debugFlag {
		logrus.SetLevel(logrus.DebugLevel)
	}

	loadedStats, err := statsLoad(statisticsPath(dir))
	if err != nil {
		return nil, fmt.Errorf("cmd: loading statistics: %w", err)
	}
	if loadedStats != nil {
		tgt.Statistics = loadedStats
	}

	cache, err := reference.Open(tgt.ReferencesDirectory, cfg.LazyLoadReferences)
	if err != nil {
		return nil, fmt.Errorf("cmd: opening reference cache: %w", err)
	}

	table, err := analyzer.LoadTable(calibrationPath(dir))
	if err != nil {
		return nil, fmt.Errorf("cmd: loading calibration table: %w", err)
	}

	eng := orchestrator.New(tgt, cfg, newSubprocessProfiler(), newLineTraceParser())

	return &engineBundle{dir: dir, target: tgt, config: cfg, engine: eng, cache: cache, table: table}, nil
}

// saveEngineState persists every mutation an action may have made: the
// Target descriptor (sequences, reference sets, combined-index
// bookkeeping), the Statistics accumulator, and the calibration table.
func saveEngineState(b *engineBundle) error {
	if err := target.Save(b.dir, b.target); err != nil {
		return fmt.Errorf("cmd: saving target: %w", err)
	}
	if err := b.target.Statistics.Save(statisticsPath(b.dir)); err != nil {
		return fmt.Errorf("cmd: saving statistics: %w", err)
	}
	if err := b.table.Save(calibrationPath(b.dir)); err != nil {
		return fmt.Errorf("cmd: saving calibration table: %w", err)
	}
	return nil
}

// allStrategies is the closed strategy set spec.md §3 names.
var allStrategies = []combine.Strategy{combine.Random, combine.RandomTT, combine.CTC, combine.LGL, combine.BC, combine.HEM}

// parseStrategies resolves --strategies into the closed set, defaulting
// to every strategy when unset, and mapping each to its minimal-sequence
// variant when minimal is set (BC and HEM have no minimal variant and
// pass through unchanged, spec §3).
func parseStrategies(raw string, minimal bool) ([]combine.Strategy, error) {
	var chosen []combine.Strategy
	if strings.TrimSpace(raw) == "" {
		chosen = append(chosen, allStrategies...)
	} else {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			s := combine.Strategy(name)
			if !isKnownStrategy(s) {
				return nil, fmt.Errorf("cmd: unknown strategy %q", name)
			}
			chosen = append(chosen, s)
		}
	}
	if !minimal {
		return chosen, nil
	}
	out := make([]combine.Strategy, len(chosen))
	for i, s := range chosen {
		if s == combine.BC || s == combine.HEM {
			out[i] = s
			continue
		}
		out[i] = s.Minimal()
	}
	return out, nil
}

func isKnownStrategy(s combine.Strategy) bool {
	for _, a := range allStrategies {
		if a == s {
			return true
		}
	}
	return false
}

// statsLoad loads a previously saved statistics.csv, returning (nil, nil)
// when the case folder has none yet (the Target already carries a fresh
// accumulator from target.Load).
func statsLoad(path string) (*stats.Accumulator, error) {
	loaded, err := stats.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return loaded, nil
}
