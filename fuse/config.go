package fuse

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// CacheClearer flushes the OS page cache between profiler retries. The
// default EngineConfig carries a no-op: dropping the page cache needs
// root and platform-specific syscalls, which are out of this module's
// scope (spec.md's "no hardware counter access" Non-goal). Callers that
// run on a box where they can drop caches may supply their own.
type CacheClearer func() error

// NoopCacheClearer never fails and does nothing.
func NoopCacheClearer() error { return nil }

// EngineConfig is the process-wide numeric-config block named in spec.md
// §9's design notes, re-architected as an immutable record passed through
// constructors rather than package-level mutable state. Logging policy is
// carried as a capability (a *logrus.Entry) rather than a global level.
type EngineConfig struct {
	// MaxExecutionAttempts bounds profiler subprocess retries (spec §5).
	MaxExecutionAttempts int `yaml:"max_execution_attempts"`

	// TMDBinCount is num_bins for earth-mover signature construction
	// (spec §4.4) and for the mutual-information histograms (spec §4.7).
	TMDBinCount int `yaml:"tmd_bin_count"`

	// LazyLoadReferences selects lazy (true) vs eager (false) reference
	// distribution loading (spec §4.6).
	LazyLoadReferences bool `yaml:"lazy_load_references"`

	// WeightedTMD selects an instance-count-weighted geometric mean over
	// a plain geometric mean when aggregating calibrated TMDs across
	// symbols or event pairs (spec §4.4, supplemented per SPEC_FULL §10.4).
	WeightedTMD bool `yaml:"weighted_tmd"`

	// CalculatePerWorkfunctionTMDs additionally reports calibrated TMD
	// broken down per symbol (SPEC_FULL §10.4).
	CalculatePerWorkfunctionTMDs bool `yaml:"calculate_per_workfunction_tmds"`

	// HardwareCounters is K, the number of physical hardware counters the
	// sequence generator may combine per profiling run (spec §4.7).
	HardwareCounters int `yaml:"hardware_counters"`

	// SequenceLmax bounds the linking-set size the sequence generator's
	// child expansion considers (spec §4.7's Lmax).
	SequenceLmax int `yaml:"sequence_lmax"`

	// SequenceConcurrency bounds the bounded work pool evaluating a node's
	// children in parallel (spec §5).
	SequenceConcurrency int `yaml:"sequence_concurrency"`

	// MaxSequenceNodes is the implementation-chosen search budget spec
	// §4.7 allows in place of exhausting the priority list. Zero means
	// unbounded (search until the priority list empties).
	MaxSequenceNodes int `yaml:"max_sequence_nodes"`

	// SequenceMetric names the priority metric generate_bc_sequence pops
	// leaves by (spec §4.7's four priority metrics; default
	// cross_profile_tmd_mse).
	SequenceMetric string `yaml:"sequence_metric"`

	// ClientManagedLogging, when true, means the engine never configures
	// logrus's global level itself; the embedding CLI already did.
	ClientManagedLogging bool `yaml:"client_managed_logging"`

	// FuseLogLevel is the logrus level name applied at startup when
	// ClientManagedLogging is false.
	FuseLogLevel string `yaml:"fuse_log_level"`

	// Log is the logging capability threaded through every subsystem.
	// Never nil after DefaultEngineConfig/LoadEngineConfig.
	Log *logrus.Entry `yaml:"-"`

	// ClearCache is invoked between profiler retries when the Target's
	// ShouldClearCache flag is set.
	ClearCache CacheClearer `yaml:"-"`
}

// DefaultEngineConfig returns the engine's zero-configuration defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxExecutionAttempts:         3,
		TMDBinCount:                  10,
		LazyLoadReferences:           true,
		WeightedTMD:                  false,
		CalculatePerWorkfunctionTMDs: false,
		HardwareCounters:             4,
		SequenceLmax:                 2,
		SequenceConcurrency:          4,
		MaxSequenceNodes:             0,
		SequenceMetric:               "cross_profile_tmd_mse",
		ClientManagedLogging:         false,
		FuseLogLevel:                 "info",
		Log:                          logrus.NewEntry(logrus.StandardLogger()),
		ClearCache:                   NoopCacheClearer,
	}
}

// LoadEngineConfig reads an optional YAML engine-config file (SPEC_FULL
// §6, fuse.engine.yaml). A missing file is not an error: DefaultEngineConfig
// is returned unchanged. Uses strict decoding (unknown keys rejected), the
// same defensive posture the teacher's sim.LoadPolicyBundle uses for its
// own YAML config.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading engine config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing engine config: %w", err)
	}

	if cfg.MaxExecutionAttempts <= 0 {
		cfg.MaxExecutionAttempts = 1
	}
	if cfg.TMDBinCount <= 0 {
		return cfg, fmt.Errorf("%w: tmd_bin_count must be positive, got %d", ErrInvalidConfig, cfg.TMDBinCount)
	}
	if cfg.HardwareCounters <= 0 {
		cfg.HardwareCounters = 4
	}
	if cfg.SequenceLmax <= 0 {
		cfg.SequenceLmax = 2
	}
	if cfg.SequenceConcurrency <= 0 {
		cfg.SequenceConcurrency = 4
	}

	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if !cfg.ClientManagedLogging {
		level, err := logrus.ParseLevel(cfg.FuseLogLevel)
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid fuse_log_level %q: %v", ErrInvalidConfig, cfg.FuseLogLevel, err)
		}
		logrus.SetLevel(level)
	}
	if cfg.ClearCache == nil {
		cfg.ClearCache = NoopCacheClearer
	}
	return cfg, nil
}
