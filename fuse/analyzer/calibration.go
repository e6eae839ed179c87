package analyzer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pepperpots/fusehpm/fuse"
)

// EventPair is an unordered pair of target events, canonicalized so
// {a,b} and {b,a} compare equal and hash identically.
type EventPair struct{ A, B fuse.Event }

// NewEventPair canonicalizes a and b into an EventPair with A <= B.
func NewEventPair(a, b fuse.Event) EventPair {
	if a > b {
		a, b = b, a
	}
	return EventPair{A: a, B: b}
}

// String renders the pair using "-" as delimiter (spec §6's calibration
// CSV "Events column uses - as delimiter within an event set").
func (p EventPair) String() string { return string(p.A) + "-" + string(p.B) }

// Entry is a calibration table row (spec §4.5): the self-distance TMD
// baseline between repeats of the same reference profile, for one
// (reference pair, symbol).
type Entry struct {
	Min, Max, Mean, Std, Median float64
	MeanInstanceCount           float64
}

// Key identifies one calibration table row.
type Key struct {
	Symbol fuse.Symbol
	Pair   EventPair
}

// Table is the calibration table: self-distance baselines keyed by
// (reference pair, symbol).
type Table struct {
	entries map[Key]Entry
}

// NewTable returns an empty calibration table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]Entry)}
}

// Has reports whether a calibration entry for k has already been
// computed. Spec §4.5: "If a row for a given pair already exists, it is
// not recomputed."
func (t *Table) Has(k Key) bool {
	_, ok := t.entries[k]
	return ok
}

// Get returns the calibration entry for k, or fuse.ErrDataNotFound if it
// was never computed.
func (t *Table) Get(k Key) (Entry, error) {
	e, ok := t.entries[k]
	if !ok {
		return Entry{}, fmt.Errorf("%w: calibration(%s,%s)", fuse.ErrDataNotFound, k.Symbol, k.Pair)
	}
	return e, nil
}

// Set installs (or overwrites) the calibration entry for k.
func (t *Table) Set(k Key, e Entry) {
	t.entries[k] = e
}

// Keys returns every key currently in the table, sorted for deterministic
// CSV output.
func (t *Table) Keys() []Key {
	out := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Pair.String() < out[j].Pair.String()
	})
	return out
}

// ComputeEntry builds a calibration Entry for one (pair, symbol): the
// uncalibrated TMD between every 2-combination of reference repeats'
// projections onto the pair, aggregated to {min,max,mean,std,median}, plus
// the mean instance count across repeats (spec §4.5).
func ComputeEntry(repeatProjections [][][]int64, bounds []Bound, numBins int) (Entry, error) {
	if len(repeatProjections) < 2 {
		return Entry{}, fmt.Errorf("analyzer: calibration needs at least 2 reference repeats, got %d", len(repeatProjections))
	}

	var tmds []float64
	for i := 0; i < len(repeatProjections); i++ {
		for j := i + 1; j < len(repeatProjections); j++ {
			d, err := UncalibratedTMD(repeatProjections[i], repeatProjections[j], bounds, numBins)
			if err != nil {
				return Entry{}, err
			}
			tmds = append(tmds, d)
		}
	}

	var instanceCounts []float64
	for _, r := range repeatProjections {
		instanceCounts = append(instanceCounts, float64(len(r)))
	}

	sorted := append([]float64(nil), tmds...)
	sort.Float64s(sorted)

	return Entry{
		Min:               sorted[0],
		Max:               sorted[len(sorted)-1],
		Mean:              stat.Mean(tmds, nil),
		Std:               stat.StdDev(tmds, nil),
		Median:            stat.Quantile(0.5, stat.Empirical, sorted, nil),
		MeanInstanceCount: stat.Mean(instanceCounts, nil),
	}, nil
}

// CalibratedPairTMD implements spec §4.4's "Calibrated TMD for a pair"
// for a single symbol: average the uncalibrated TMD between the combined
// profile's projection and each reference repeat's projection, then
// divide by the pair's calibration median for that symbol.
func CalibratedPairTMD(combined [][]int64, referenceRepeats [][][]int64, bounds []Bound, numBins int, calibrationMedian float64) (float64, error) {
	if calibrationMedian <= 0 {
		return 0, fmt.Errorf("analyzer: calibration median must be positive, got %v", calibrationMedian)
	}
	var sum float64
	for _, ref := range referenceRepeats {
		d, err := UncalibratedTMD(combined, ref, bounds, numBins)
		if err != nil {
			return 0, err
		}
		sum += d
	}
	avg := sum / float64(len(referenceRepeats))
	return avg / calibrationMedian, nil
}

// WeightedGeometricMean computes a geometric mean weighted by weights,
// reducing to a plain geometric mean when weights are nil/uniform. Used
// to aggregate calibrated TMDs across symbols into a pair value (spec
// §4.4) and across pairs into an EPD, and disabled (plain mean of logs)
// when EngineConfig.WeightedTMD is false.
func WeightedGeometricMean(values, weights []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("analyzer: weighted geometric mean of empty input")
	}
	logs := make([]float64, len(values))
	for i, v := range values {
		if v <= 0 {
			return 0, fmt.Errorf("analyzer: weighted geometric mean requires strictly positive values, got %v", v)
		}
		logs[i] = math.Log(v)
	}
	return math.Exp(stat.Mean(logs, weights)), nil
}

// EPD computes the expected pair distance: the weighted geometric mean of
// calibrated TMDs across every reference pair of the target (spec §4.4).
func EPD(pairValues, weights []float64) (float64, error) {
	return WeightedGeometricMean(pairValues, weights)
}

// TMDMSE computes the mean squared calibrated TMD across pairs, the
// alternative aggregate the sequence generator prunes on (spec §4.7).
func TMDMSE(pairValues []float64) float64 {
	var sum float64
	for _, v := range pairValues {
		sum += v * v
	}
	return sum / float64(len(pairValues))
}
