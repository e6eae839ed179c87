package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pepperpots/fusehpm/fuse/combine"
)

// runAnalyseAccuracy implements --analyse_accuracy: computes calibrated
// EPD/TMD-MSE for every repeat already recorded as combined (spec §6's
// combined_indexes) under each requested strategy, writing the results as
// CSV to --output_file or stdout.
func runAnalyseAccuracy(b *engineBundle, strategies []combine.Strategy, minimal bool, outputFile string) error {
	repeats := combinedRepeatUnion(b, strategies)
	if len(repeats) == 0 {
		return fmt.Errorf("cmd: analyse_accuracy: no combined repeats recorded; run --combine_sequence first")
	}

	results, err := b.engine.AnalyseSequenceCombinations(b.cache, b.table, strategies, repeats, minimal, "epd")
	if err != nil {
		return err
	}

	w, closeFn, err := analysisOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeFn()

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"strategy", "repeat", "epd", "tmd_mse"}); err != nil {
		return fmt.Errorf("cmd: writing analysis header: %w", err)
	}
	for _, r := range results {
		row := []string{
			string(r.Strategy),
			strconv.Itoa(r.Repeat),
			strconv.FormatFloat(r.EPD, 'g', -1, 64),
			strconv.FormatFloat(r.TMDMSE, 'g', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("cmd: writing analysis row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func combinedRepeatUnion(b *engineBundle, strategies []combine.Strategy) []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range strategies {
		for _, r := range b.target.CombinedIndexes[s] {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

func analysisOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: creating output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
