package analyzer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
)

// csvHeader matches spec.md §6's "Calibration TMD CSV" column list.
var csvHeader = []string{
	"symbol", "reference_idx", "events", "min", "max", "mean", "std", "median", "mean_num_instances",
}

// Save writes t to path as CSV, one row per (symbol, pair), in Keys()
// order so re-saving an unchanged table is byte-stable. reference_idx is
// always 0: this table is keyed by pair, not by individual reference set
// index, so the column carries the constant spec §6 names but never
// varies in this implementation.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analyzer: creating calibration file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("analyzer: writing calibration header: %w", err)
	}
	for _, k := range t.Keys() {
		e := t.entries[k]
		row := []string{
			string(k.Symbol),
			"0",
			k.Pair.String(),
			strconv.FormatFloat(e.Min, 'g', -1, 64),
			strconv.FormatFloat(e.Max, 'g', -1, 64),
			strconv.FormatFloat(e.Mean, 'g', -1, 64),
			strconv.FormatFloat(e.Std, 'g', -1, 64),
			strconv.FormatFloat(e.Median, 'g', -1, 64),
			strconv.FormatFloat(e.MeanInstanceCount, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("analyzer: writing calibration row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// LoadTable reads a calibration CSV written by Save. A missing file is
// not an error: an empty Table is returned so calculate_calibration_tmds
// starts fresh on the first run in a case folder.
func LoadTable(path string) (*Table, error) {
	t := NewTable()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("analyzer: opening calibration file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("analyzer: reading calibration header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("analyzer: calibration header has %d columns, want %d", len(header), len(csvHeader))
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("analyzer: reading calibration row: %w", err)
		}

		pairEvents := strings.SplitN(row[2], "-", 2)
		if len(pairEvents) != 2 {
			return nil, fmt.Errorf("analyzer: malformed events column %q", row[2])
		}
		pair := NewEventPair(fuse.NewEvent(pairEvents[0]), fuse.NewEvent(pairEvents[1]))

		min, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing min: %w", err)
		}
		max, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing max: %w", err)
		}
		mean, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing mean: %w", err)
		}
		std, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing std: %w", err)
		}
		median, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing median: %w", err)
		}
		meanCount, err := strconv.ParseFloat(row[8], 64)
		if err != nil {
			return nil, fmt.Errorf("analyzer: parsing mean_num_instances: %w", err)
		}

		t.Set(Key{Symbol: fuse.Symbol(row[0]), Pair: pair}, Entry{
			Min: min, Max: max, Mean: mean, Std: std, Median: median, MeanInstanceCount: meanCount,
		})
	}
	return t, nil
}
