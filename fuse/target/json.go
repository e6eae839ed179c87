package target

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/ports"
)

// DescriptorName is the descriptor filename inside a case folder.
const DescriptorName = "fuse.json"

// descriptor mirrors the fuse.json layout spec.md §6 fixes. Event names
// are raw strings here and normalized to lowercase on load.
type descriptor struct {
	Binary          string `json:"binary"`
	BinaryDirectory string `json:"binary_directory"`
	Args            string `json:"args,omitempty"`
	Runtime         string `json:"runtime"`

	TargetEvents []string `json:"target_events"`

	ReferencesDirectory   string `json:"references_directory"`
	TracefilesDirectory   string `json:"tracefiles_directory"`
	CombinationsDirectory string `json:"combinations_directory"`
	PAPIDirectory         string `json:"papi_directory"`

	ShouldClearCache bool `json:"should_clear_cache,omitempty"`

	NumReferenceRepeats       uint `json:"num_reference_repeats,omitempty"`
	NumBCSequenceRepeats      uint `json:"num_bc_sequence_repeats,omitempty"`
	NumMinimalSequenceRepeats uint `json:"num_minimal_sequence_repeats,omitempty"`

	ReferenceSets [][]string `json:"reference_sets,omitempty"`

	CombinedIndexes []map[string][]int `json:"combined_indexes,omitempty"`

	BCSequence      []descriptorPart `json:"bc_sequence,omitempty"`
	MinimalSequence []descriptorPart `json:"minimal_sequence,omitempty"`
}

type descriptorPart struct {
	Overlapping []string `json:"overlapping,omitempty"`
	Unique      []string `json:"unique"`
}

// Load reads and validates dir's fuse.json into a Target with a fresh
// Statistics accumulator. Violations of the spec §3 invariants surface
// as fuse.ErrInvalidConfig.
func Load(dir string) (*Target, error) {
	path := filepath.Join(dir, DescriptorName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("target: reading %s: %w", path, err)
	}

	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", fuse.ErrInvalidConfig, path, err)
	}

	t := New()
	t.Binary = d.Binary
	t.BinaryDirectory = d.BinaryDirectory
	t.Args = d.Args
	t.Runtime = ports.Runtime(d.Runtime)
	t.TargetEvents = normalizeEvents(d.TargetEvents)
	t.ReferencesDirectory = d.ReferencesDirectory
	t.TracefilesDirectory = d.TracefilesDirectory
	t.CombinationsDirectory = d.CombinationsDirectory
	t.PAPIDirectory = d.PAPIDirectory
	t.ShouldClearCache = d.ShouldClearCache
	t.NumReferenceRepeats = d.NumReferenceRepeats
	t.NumBCSequenceRepeats = d.NumBCSequenceRepeats
	t.NumMinimalSequenceRepeats = d.NumMinimalSequenceRepeats

	for _, set := range d.ReferenceSets {
		t.ReferenceSets = append(t.ReferenceSets, normalizeEvents(set))
	}

	for _, entry := range d.CombinedIndexes {
		for strategy, repeats := range entry {
			t.CombinedIndexes[combine.Strategy(strategy)] = append(t.CombinedIndexes[combine.Strategy(strategy)], repeats...)
		}
	}

	t.BCSequence = loadSequence(d.BCSequence)
	t.MinimalSequence = loadSequence(d.MinimalSequence)

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Save writes t back to dir's fuse.json, preserving everything Load
// reads so a load/save cycle round-trips the descriptor.
func Save(dir string, t *Target) error {
	d := descriptor{
		Binary:                    t.Binary,
		BinaryDirectory:           t.BinaryDirectory,
		Args:                      t.Args,
		Runtime:                   string(t.Runtime),
		TargetEvents:              eventNames(t.TargetEvents),
		ReferencesDirectory:       t.ReferencesDirectory,
		TracefilesDirectory:       t.TracefilesDirectory,
		CombinationsDirectory:     t.CombinationsDirectory,
		PAPIDirectory:             t.PAPIDirectory,
		ShouldClearCache:          t.ShouldClearCache,
		NumReferenceRepeats:       t.NumReferenceRepeats,
		NumBCSequenceRepeats:      t.NumBCSequenceRepeats,
		NumMinimalSequenceRepeats: t.NumMinimalSequenceRepeats,
		BCSequence:                saveSequence(t.BCSequence),
		MinimalSequence:           saveSequence(t.MinimalSequence),
	}
	for _, set := range t.ReferenceSets {
		d.ReferenceSets = append(d.ReferenceSets, eventNames(set))
	}

	strategies := make([]combine.Strategy, 0, len(t.CombinedIndexes))
	for strategy := range t.CombinedIndexes {
		strategies = append(strategies, strategy)
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })
	for _, strategy := range strategies {
		if len(t.CombinedIndexes[strategy]) == 0 {
			continue
		}
		d.CombinedIndexes = append(d.CombinedIndexes, map[string][]int{
			string(strategy): t.CombinedIndexes[strategy],
		})
	}

	data, err := json.MarshalIndent(&d, "", "  ")
	if err != nil {
		return fmt.Errorf("target: encoding descriptor: %w", err)
	}
	path := filepath.Join(dir, DescriptorName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("target: writing %s: %w", path, err)
	}
	return nil
}

func loadSequence(parts []descriptorPart) Sequence {
	if len(parts) == 0 {
		return nil
	}
	seq := make(Sequence, len(parts))
	for i, part := range parts {
		seq[i] = SequencePart{
			PartIndex:   uint32(i),
			Overlapping: normalizeEvents(part.Overlapping),
			Unique:      normalizeEvents(part.Unique),
		}
	}
	return seq
}

func saveSequence(seq Sequence) []descriptorPart {
	if len(seq) == 0 {
		return nil
	}
	parts := make([]descriptorPart, len(seq))
	for i, part := range seq {
		parts[i] = descriptorPart{
			Overlapping: eventNames(part.Overlapping),
			Unique:      eventNames(part.Unique),
		}
	}
	return parts
}

func normalizeEvents(names []string) []fuse.Event {
	if len(names) == 0 {
		return nil
	}
	out := make([]fuse.Event, len(names))
	for i, n := range names {
		out[i] = fuse.NewEvent(n)
	}
	return out
}

func eventNames(events []fuse.Event) []string {
	if len(events) == 0 {
		return nil
	}
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}
