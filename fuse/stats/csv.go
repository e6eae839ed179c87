package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"

	"github.com/pepperpots/fusehpm/fuse"
)

// csvHeader matches spec.md §4.1 / §6 exactly.
var csvHeader = []string{
	"symbol", "event", "minimum", "maximum", "mean", "std",
	"n", "old_m", "new_m", "old_s", "new_s",
}

// Save writes the accumulator's raw Welford state (plus derived stats) to
// path as CSV, one row per (symbol,event).
func (a *Accumulator) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating statistics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing statistics header: %w", err)
	}
	for _, k := range a.keys() {
		welf := a.series[k]
		fin := welf.finalize()
		row := []string{
			string(k.symbol),
			string(k.event),
			strconv.FormatFloat(fin.Min, 'g', -1, 64),
			strconv.FormatFloat(fin.Max, 'g', -1, 64),
			strconv.FormatFloat(fin.Mean, 'g', -1, 64),
			strconv.FormatFloat(fin.Std, 'g', -1, 64),
			strconv.FormatInt(welf.n, 10),
			welf.oldM.Text('g', -1),
			welf.newM.Text('g', -1),
			welf.oldS.Text('g', -1),
			welf.newS.Text('g', -1),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing statistics row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Load reads a Welford-state CSV written by Save into a, extending any
// Add calls that follow. Loading a row whose (symbol,event) already
// exists in a is a hard error: duplicate accumulator state would silently
// discard one of the two histories.
func Load(path string) (*Accumulator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statistics file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading statistics header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("statistics header has %d columns, want %d", len(header), len(csvHeader))
	}

	a := New()
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading statistics row: %w", err)
		}
		k := key{symbol: fuse.Symbol(row[0]), event: fuse.Event(row[1])}
		if _, exists := a.series[k]; exists {
			return nil, fmt.Errorf("duplicate accumulator state for (symbol=%s,event=%s)", k.symbol, k.event)
		}

		n, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing n: %w", err)
		}
		minV, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing minimum: %w", err)
		}
		maxV, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing maximum: %w", err)
		}
		oldM, _, err := big.ParseFloat(row[7], 10, precisionBits, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("parsing old_m: %w", err)
		}
		newM, _, err := big.ParseFloat(row[8], 10, precisionBits, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("parsing new_m: %w", err)
		}
		oldS, _, err := big.ParseFloat(row[9], 10, precisionBits, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("parsing old_s: %w", err)
		}
		newS, _, err := big.ParseFloat(row[10], 10, precisionBits, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("parsing new_s: %w", err)
		}

		a.series[k] = &welford{
			n: n, min: minV, max: maxV,
			oldM: oldM, newM: newM, oldS: oldS, newS: newS,
		}
	}
	return a, nil
}
