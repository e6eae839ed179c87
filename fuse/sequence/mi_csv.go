package sequence

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
)

var miCSVHeader = []string{"event_a", "event_b", "mi"}

// SaveMI writes mi to path as CSV, one row per reference pair (SPEC_FULL
// §6's "Mutual-information cache CSV").
func SaveMI(path string, mi MIMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sequence: creating MI cache file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(miCSVHeader); err != nil {
		return fmt.Errorf("sequence: writing MI cache header: %w", err)
	}
	for pair, v := range mi {
		row := []string{string(pair.A), string(pair.B), strconv.FormatFloat(v, 'g', -1, 64)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("sequence: writing MI cache row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// LoadMI reads an MI cache CSV written by SaveMI. A missing file is not
// an error: an empty MIMatrix is returned so the caller computes every
// pair lazily (SPEC_FULL §6: "recomputed lazily the first time root
// selection needs a pair not yet present").
func LoadMI(path string) (MIMatrix, error) {
	mi := make(MIMatrix)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mi, nil
		}
		return nil, fmt.Errorf("sequence: opening MI cache file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("sequence: reading MI cache header: %w", err)
	}
	if len(header) != len(miCSVHeader) {
		return nil, fmt.Errorf("sequence: MI cache header has %d columns, want %d", len(header), len(miCSVHeader))
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sequence: reading MI cache row: %w", err)
		}
		v, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("sequence: parsing mi: %w", err)
		}
		pair := analyzer.NewEventPair(fuse.NewEvent(row[0]), fuse.NewEvent(row[1]))
		mi[pair] = v
	}
	return mi, nil
}
