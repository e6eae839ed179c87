package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/reference"
)

// ExecuteReferences implements execute_references(n): profiles each of
// the Target's declared reference event sets n times, parses each
// resulting trace, and persists one reference distribution binary per
// (set, repeat) under ReferencesDirectory (spec §4.6).
func (e *Engine) ExecuteReferences(n int) error {
	for setIdx, events := range e.Target.ReferenceSets {
		for repeat := 0; repeat < n; repeat++ {
			tracefile := filepath.Join(e.Target.TracefilesDirectory, referenceTracefileName(setIdx, repeat))
			if err := e.executeWithRetry(e.binaryPath(), tracefile, events, false); err != nil {
				return fmt.Errorf("orchestrator: execute_references set %d repeat %d: %w", setIdx, repeat, err)
			}

			prof, err := e.Parser.ParseTrace(tracefile, e.Target.Runtime, false)
			if err != nil {
				return fmt.Errorf("orchestrator: parse reference trace set %d repeat %d: %w", setIdx, repeat, err)
			}
			addProfileStatistics(e.Target.Statistics, prof)

			bySymbol := make(map[fuse.Symbol][][]int64)
			for _, symbol := range prof.GetUniqueSymbols() {
				rows, err := prof.GetValueDistribution(events, false, symbol)
				if err != nil {
					return fmt.Errorf("orchestrator: reference projection set %d repeat %d symbol %s: %w", setIdx, repeat, symbol, err)
				}
				bySymbol[symbol] = rows
			}
			allRows, err := prof.GetValueDistribution(events, false)
			if err != nil {
				return fmt.Errorf("orchestrator: reference projection set %d repeat %d all_symbols: %w", setIdx, repeat, err)
			}
			bySymbol[fuse.SymbolAllSymbols] = allRows
			dist, err := reference.NewDistribution(events, bySymbol)
			if err != nil {
				return fmt.Errorf("orchestrator: building reference distribution set %d repeat %d: %w", setIdx, repeat, err)
			}

			path := reference.FilePath(e.Target.ReferencesDirectory, reference.SetID(setIdx), repeat)
			if err := writeReferenceFile(path, dist); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeReferenceFile(path string, dist *reference.Distribution) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("orchestrator: creating reference file %s: %w", path, err)
	}
	defer f.Close()
	if err := reference.Encode(f, dist); err != nil {
		return fmt.Errorf("orchestrator: encoding reference file %s: %w", path, err)
	}
	return nil
}

// CalculateCalibrationTMDs implements calculate_calibration_tmds(): for
// every reference pair of the Target's events, and every symbol the
// subsuming reference set declares (plus the all_symbols aggregate),
// computes a calibration Entry from every 2-combination of reference
// repeats and installs it in table (spec §4.5). Entries already present
// are left untouched ("not recomputed").
func (e *Engine) CalculateCalibrationTMDs(cache *reference.Cache, table *analyzer.Table) error {
	for _, pair := range e.Target.ReferencePairs() {
		events := []fuse.Event{pair.A, pair.B}

		repeats, err := cache.RepeatsFor(events)
		if err != nil {
			return fmt.Errorf("orchestrator: calibration repeats for %s: %w", pair, err)
		}
		if len(repeats) < 2 {
			e.Config.Log.Warnf("orchestrator: calibration for %s skipped: only %d reference repeat(s)", pair, len(repeats))
			continue
		}

		symbols, err := cache.Symbols(events)
		if err != nil {
			return fmt.Errorf("orchestrator: calibration symbols for %s: %w", pair, err)
		}
		if !containsSymbol(symbols, fuse.SymbolAllSymbols) {
			symbols = append(append([]fuse.Symbol(nil), symbols...), fuse.SymbolAllSymbols)
		}

		for _, symbol := range symbols {
			key := analyzer.Key{Symbol: symbol, Pair: pair}
			if table.Has(key) {
				continue
			}

			var projections [][][]int64
			for _, repeat := range repeats {
				proj, err := cache.GetOrLoadReferenceDistribution(events, repeat, []fuse.Symbol{symbol})
				if err != nil {
					return fmt.Errorf("orchestrator: calibration projection for %s/%s repeat %d: %w", pair, symbol, repeat, err)
				}
				projections = append(projections, proj)
			}

			bounds, err := e.pairBounds(pair, symbol)
			if err != nil {
				return err
			}

			entry, err := analyzer.ComputeEntry(projections, bounds, e.Config.TMDBinCount)
			if err != nil {
				return fmt.Errorf("orchestrator: computing calibration entry for %s/%s: %w", pair, symbol, err)
			}
			table.Set(key, entry)
		}
	}
	return nil
}

func containsSymbol(symbols []fuse.Symbol, want fuse.Symbol) bool {
	for _, s := range symbols {
		if s == want {
			return true
		}
	}
	return false
}

// pairBounds looks up the per-event (min,max) bounds the signature
// builder needs for pair, under symbol, from the Target's Statistics.
func (e *Engine) pairBounds(pair analyzer.EventPair, symbol fuse.Symbol) ([]analyzer.Bound, error) {
	minA, maxA, err := e.Target.Statistics.Bounds(pair.A, symbol)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: bounds for %s/%s: %w", pair.A, symbol, err)
	}
	minB, maxB, err := e.Target.Statistics.Bounds(pair.B, symbol)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: bounds for %s/%s: %w", pair.B, symbol, err)
	}
	return []analyzer.Bound{{Min: minA, Max: maxA}, {Min: minB, Max: maxB}}, nil
}
