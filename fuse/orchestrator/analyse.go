package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/combine"
	"github.com/pepperpots/fusehpm/fuse/reference"
)

// Result is one strategy/repeat's calibrated accuracy result (spec §4.4's
// aggregate EPD/TMD-MSE, plus an optional per-symbol breakdown when
// Config.CalculatePerWorkfunctionTMDs is set, SPEC_FULL §10.4).
type Result struct {
	Strategy  combine.Strategy
	Repeat    int
	EPD       float64
	TMDMSE    float64
	PerSymbol map[fuse.Symbol]Result
}

// combinedProfile is the minimal surface analyse needs from a combined
// *profile.Profile.
type combinedProfile interface {
	GetValueDistribution(events []fuse.Event, includeRuntime bool, symbols ...fuse.Symbol) ([][]int64, error)
}

// AnalyseSequenceCombinations implements analyse_sequence_combinations
// (strategies, repeat_indexes, metric): for each requested strategy and
// repeat, re-fuses the sequence's per-part profiles, computes calibrated
// TMD (under the all_symbols aggregate) for every reference pair the
// fused profile covers, aggregates to EPD and TMD-MSE, and returns
// results sorted ascending by the requested metric ("epd" or "tmd_mse").
func (e *Engine) AnalyseSequenceCombinations(cache *reference.Cache, table *analyzer.Table, strategies []combine.Strategy, repeatIndexes []int, minimal bool, metric string) ([]Result, error) {
	seq := e.sequence(minimal)

	var results []Result
	for _, strategy := range strategies {
		if strategy.Base() == combine.HEM {
			continue
		}
		for _, repeat := range repeatIndexes {
			combined, err := e.combineRepeat(seq, minimal, strategy, repeat)
			if err != nil {
				return nil, err
			}

			result, err := e.analyseCombined(combined, cache, table, strategy, repeat)
			if err != nil {
				return nil, err
			}
			if result == nil {
				e.Config.Log.Warnf("orchestrator: analyse %s repeat %d covers no calibrated reference pairs", strategy, repeat)
				continue
			}
			results = append(results, *result)
		}
	}

	sortResultsByMetric(results, metric)
	return results, nil
}

func (e *Engine) analyseCombined(combined combinedProfile, cache *reference.Cache, table *analyzer.Table, strategy combine.Strategy, repeat int) (*Result, error) {
	epd, tmdMSE, ok, err := e.symbolAggregate(combined, cache, table, fuse.SymbolAllSymbols)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: analyse %s repeat %d: %w", strategy, repeat, err)
	}
	if !ok {
		return nil, nil
	}

	result := &Result{Strategy: strategy, Repeat: repeat, EPD: epd, TMDMSE: tmdMSE}

	if e.Config.CalculatePerWorkfunctionTMDs {
		result.PerSymbol = make(map[fuse.Symbol]Result)
		for _, symbol := range e.Target.Statistics.Symbols() {
			if symbol == fuse.SymbolAllSymbols {
				continue
			}
			sEPD, sMSE, ok, err := e.symbolAggregate(combined, cache, table, symbol)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: analyse %s repeat %d symbol %s: %w", strategy, repeat, symbol, err)
			}
			if !ok {
				continue
			}
			result.PerSymbol[symbol] = Result{Strategy: strategy, Repeat: repeat, EPD: sEPD, TMDMSE: sMSE}
		}
	}

	return result, nil
}

// symbolAggregate computes the calibrated TMD, under symbol, for every
// reference pair combined covers a calibration entry for, then aggregates
// to EPD and TMD-MSE. ok is false when no pair could be evaluated (e.g.
// combined's event set doesn't reach any reference pair for this symbol).
func (e *Engine) symbolAggregate(combined combinedProfile, cache *reference.Cache, table *analyzer.Table, symbol fuse.Symbol) (epd float64, tmdMSE float64, ok bool, err error) {
	var values, weights []float64

	for _, pair := range e.Target.ReferencePairs() {
		events := []fuse.Event{pair.A, pair.B}

		key := analyzer.Key{Symbol: symbol, Pair: pair}
		entry, err := table.Get(key)
		if errors.Is(err, fuse.ErrDataNotFound) {
			continue
		}
		if err != nil {
			return 0, 0, false, err
		}

		var projSymbols []fuse.Symbol
		if symbol != fuse.SymbolAllSymbols {
			projSymbols = []fuse.Symbol{symbol}
		}
		projection, err := combined.GetValueDistribution(events, false, projSymbols...)
		if err != nil {
			continue // this strategy/repeat's event set doesn't cover the pair
		}

		repeats, err := cache.RepeatsFor(events)
		if err != nil {
			return 0, 0, false, fmt.Errorf("reference repeats for %s: %w", pair, err)
		}
		var referenceRepeats [][][]int64
		for _, r := range repeats {
			rows, err := cache.GetOrLoadReferenceDistribution(events, r, projSymbols)
			if err != nil {
				return 0, 0, false, fmt.Errorf("loading reference repeat %d for %s: %w", r, pair, err)
			}
			referenceRepeats = append(referenceRepeats, rows)
		}

		bounds, err := e.pairBounds(pair, symbol)
		if err != nil {
			return 0, 0, false, err
		}

		calibrated, err := analyzer.CalibratedPairTMD(projection, referenceRepeats, bounds, e.Config.TMDBinCount, entry.Median)
		if err != nil {
			return 0, 0, false, fmt.Errorf("calibrated TMD for %s: %w", pair, err)
		}

		values = append(values, calibrated)
		if e.Config.WeightedTMD {
			weights = append(weights, entry.MeanInstanceCount)
		} else {
			weights = append(weights, 1)
		}
	}

	if len(values) == 0 {
		return 0, 0, false, nil
	}

	epd, err = analyzer.EPD(values, weights)
	if err != nil {
		return 0, 0, false, err
	}
	return epd, analyzer.TMDMSE(values), true, nil
}

func sortResultsByMetric(results []Result, metric string) {
	sort.SliceStable(results, func(i, j int) bool {
		if metric == "tmd_mse" {
			return results[i].TMDMSE < results[j].TMDMSE
		}
		return results[i].EPD < results[j].EPD
	})
}
