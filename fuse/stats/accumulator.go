// Package stats implements the running-statistics accumulator (spec §4.1):
// a numerically stable running mean/variance/bounds per (symbol, event),
// using Welford's algorithm in arbitrary precision so that catastrophic
// cancellation does not creep in across billions of samples with large
// magnitudes (spec §9's design note on the source's GMP-backed accumulator).
package stats

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// precisionBits is the big.Float precision used for the Welford
// recurrence. 200 bits comfortably exceeds float64's 53-bit mantissa and
// keeps additions of billions of counter deltas from losing low-order bits.
const precisionBits = 200

// key identifies one running-statistics series.
type key struct {
	symbol fuse.Symbol
	event  fuse.Event
}

// welford holds one (symbol,event) series' raw accumulator state. OldM/OldS
// are the values used as the *input* to the next Add; NewM/NewS are the
// result of the most recent Add. They are equal after Add returns, which is
// exactly the invariant load/save needs to extend rather than restart.
type welford struct {
	n     int64
	oldM  *big.Float
	newM  *big.Float
	oldS  *big.Float
	newS  *big.Float
	min   float64
	max   float64
}

func newWelford() *welford {
	return &welford{
		oldM: newFloat(), newM: newFloat(),
		oldS: newFloat(), newS: newFloat(),
		min: math.Inf(1), max: math.Inf(-1),
	}
}

func newFloat() *big.Float {
	return new(big.Float).SetPrec(precisionBits)
}

// Stats is the closed-form result of finalize().
type Stats struct {
	Min, Max, Mean, Std float64
}

// Accumulator is the running-statistics accumulator. It is safe to append
// to only from a single goroutine (spec §5: "appended to only from the
// orchestration thread"); queries are safe for concurrent readers once
// appends have stopped, matching the fan-out read-only usage in the
// sequence generator.
type Accumulator struct {
	series map[key]*welford
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{series: make(map[key]*welford)}
}

// Add appends value to the running stats for both (symbol,event) and
// (all_symbols,event).
func (a *Accumulator) Add(event fuse.Event, value int64, symbol fuse.Symbol) {
	a.addOne(key{symbol, event}, value)
	if symbol != fuse.SymbolAllSymbols {
		a.addOne(key{fuse.SymbolAllSymbols, event}, value)
	}
}

func (a *Accumulator) addOne(k key, value int64) {
	w, ok := a.series[k]
	if !ok {
		w = newWelford()
		a.series[k] = w
	}
	fv := float64(value)
	if fv < w.min {
		w.min = fv
	}
	if fv > w.max {
		w.max = fv
	}

	w.n++
	x := new(big.Float).SetPrec(precisionBits).SetInt64(value)
	if w.n == 1 {
		w.newM.Set(x)
		w.newS.SetInt64(0)
	} else {
		nf := new(big.Float).SetPrec(precisionBits).SetInt64(w.n)
		diff := new(big.Float).SetPrec(precisionBits).Sub(x, w.oldM)
		w.newM.Add(w.oldM, new(big.Float).SetPrec(precisionBits).Quo(diff, nf))
		diff2 := new(big.Float).SetPrec(precisionBits).Sub(x, w.newM)
		w.newS.Add(w.oldS, new(big.Float).SetPrec(precisionBits).Mul(diff, diff2))
	}
	w.oldM.Set(w.newM)
	w.oldS.Set(w.newS)
}

// Finalize computes {min,max,mean,std} for every (symbol,event) currently
// tracked. For n<2, std=0 and mean=min (spec §4.1).
func (a *Accumulator) Finalize() map[fuse.Symbol]map[fuse.Event]Stats {
	out := make(map[fuse.Symbol]map[fuse.Event]Stats)
	for k, w := range a.series {
		if out[k.symbol] == nil {
			out[k.symbol] = make(map[fuse.Event]Stats)
		}
		out[k.symbol][k.event] = w.finalize()
	}
	return out
}

func (w *welford) finalize() Stats {
	if w.n < 2 {
		return Stats{Min: w.min, Max: w.max, Mean: w.min, Std: 0}
	}
	mean, _ := w.newM.Float64()
	s, _ := w.newS.Float64()
	variance := s / float64(w.n-1)
	if variance < 0 {
		variance = 0
	}
	return Stats{Min: w.min, Max: w.max, Mean: mean, Std: math.Sqrt(variance)}
}

// Bounds returns (min,max) for (symbol,event), defaulting symbol to
// all_symbols. Fails with fuse.ErrDataNotFound if absent.
func (a *Accumulator) Bounds(event fuse.Event, symbol fuse.Symbol) (min, max float64, err error) {
	w, ok := a.lookup(event, symbol)
	if !ok {
		return 0, 0, fmt.Errorf("%w: bounds(%s,%s)", fuse.ErrDataNotFound, symbol, event)
	}
	return w.min, w.max, nil
}

// Mean returns the finalized mean for (symbol,event).
func (a *Accumulator) Mean(event fuse.Event, symbol fuse.Symbol) (float64, error) {
	w, ok := a.lookup(event, symbol)
	if !ok {
		return 0, fmt.Errorf("%w: mean(%s,%s)", fuse.ErrDataNotFound, symbol, event)
	}
	return w.finalize().Mean, nil
}

// Std returns the finalized standard deviation for (symbol,event).
func (a *Accumulator) Std(event fuse.Event, symbol fuse.Symbol) (float64, error) {
	w, ok := a.lookup(event, symbol)
	if !ok {
		return 0, fmt.Errorf("%w: std(%s,%s)", fuse.ErrDataNotFound, symbol, event)
	}
	return w.finalize().Std, nil
}

func (a *Accumulator) lookup(event fuse.Event, symbol fuse.Symbol) (*welford, bool) {
	if symbol == "" {
		symbol = fuse.SymbolAllSymbols
	}
	w, ok := a.series[key{symbol, event}]
	return w, ok
}

// Symbols returns every distinct symbol with at least one tracked series,
// sorted, excluding all_symbols.
func (a *Accumulator) Symbols() []fuse.Symbol {
	seen := make(map[fuse.Symbol]bool)
	for k := range a.series {
		if k.symbol != fuse.SymbolAllSymbols {
			seen[k.symbol] = true
		}
	}
	out := make([]fuse.Symbol, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// keys returns every tracked (symbol,event) pair in a stable order, used by
// Save so CSV output is reproducible across runs.
func (a *Accumulator) keys() []key {
	out := make([]key, 0, len(a.series))
	for k := range a.series {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].symbol != out[j].symbol {
			return out[i].symbol < out[j].symbol
		}
		return out[i].event < out[j].event
	})
	return out
}
