package profile

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
)

// formatLabel renders a Label as "[a,b,c]" for CSV/DOT output.
func formatLabel(l fuse.Label) string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// PrintToFile writes a CSV dump of every stored instance (spec §4.2).
// Header is "cpu,symbol,label[,gpu_eligible],<events…>". Rows are ordered
// by the depth-first label comparator. Missing event values are emitted
// as the literal "unknown". When a filter event set is attached
// (SetFilterEvents), the dumped columns are exactly that set and no
// gpu_eligible column appears.
func (p *Profile) PrintToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating profile dump: %w", err)
	}
	defer f.Close()

	events := p.filterEvents
	includeGPU := events == nil
	if events == nil {
		events = p.GetUniqueEvents()
	}

	header := []string{"cpu", "symbol", "label"}
	if includeGPU {
		header = append(header, "gpu_eligible")
	}
	for _, e := range events {
		header = append(header, string(e))
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing profile dump header: %w", err)
	}

	instances := p.GetInstances(true)
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Label.Less(instances[j].Label)
	})

	for _, in := range instances {
		row := []string{
			strconv.Itoa(in.CPU),
			string(in.Symbol),
			formatLabel(in.Label),
		}
		if includeGPU {
			row = append(row, strconv.FormatBool(in.IsGPUEligible))
		}
		for _, e := range events {
			if v, ok := in.Value(e); ok {
				row = append(row, strconv.FormatInt(v, 10))
			} else {
				row = append(row, "unknown")
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing profile dump row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// DumpInstanceDependencies writes a dense adjacency-matrix CSV showing
// both the creation tree (derived from labels: a row is a child of the
// row whose label is its longest strict prefix) and the recorded
// data-dependency edges. Cell values: "C" creation edge, "D" dependency
// edge, "B" both, "" neither.
func (p *Profile) DumpInstanceDependencies(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dependency matrix: %w", err)
	}
	defer f.Close()

	instances := p.GetInstances(true)
	sort.Slice(instances, func(i, j int) bool { return instances[i].Label.Less(instances[j].Label) })

	w := csv.NewWriter(f)
	header := make([]string, len(instances)+1)
	header[0] = ""
	for i, in := range instances {
		header[i+1] = formatLabel(in.Label)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing dependency matrix header: %w", err)
	}

	for _, producer := range instances {
		row := make([]string, len(instances)+1)
		row[0] = formatLabel(producer.Label)
		for j, consumer := range instances {
			cell := ""
			if isCreationEdge(producer.Label, consumer.Label) {
				cell = "C"
			}
			if d, ok := p.DependenciesFor(producer); ok {
				for _, c := range d.Consumers {
					if c == consumer {
						if cell == "C" {
							cell = "B"
						} else {
							cell = "D"
						}
					}
				}
			}
			row[j+1] = cell
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing dependency matrix row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// isCreationEdge reports whether child's label is parent's label with
// exactly one extra trailing component (the creation-tree parent/child
// relationship).
func isCreationEdge(parent, child fuse.Label) bool {
	if len(child) != len(parent)+1 {
		return false
	}
	for i := range parent {
		if parent[i] != child[i] {
			return false
		}
	}
	return true
}

// DumpInstanceDependenciesDot writes the same dependency graph as
// GraphViz DOT: solid edges for the creation tree, dotted edges for
// data-dependency links (SPEC_FULL §10.4, grounded on original_source/'s
// dot writer).
func (p *Profile) DumpInstanceDependenciesDot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dependency dot file: %w", err)
	}
	defer f.Close()

	instances := p.GetInstances(true)
	sort.Slice(instances, func(i, j int) bool { return instances[i].Label.Less(instances[j].Label) })

	var b strings.Builder
	b.WriteString("digraph instances {\n")
	for _, in := range instances {
		b.WriteString(fmt.Sprintf("  %q [label=%q];\n", formatLabel(in.Label), string(in.Symbol)))
	}
	for _, child := range instances {
		for _, parent := range instances {
			if isCreationEdge(parent.Label, child.Label) {
				b.WriteString(fmt.Sprintf("  %q -> %q [style=solid];\n", formatLabel(parent.Label), formatLabel(child.Label)))
			}
		}
	}
	for _, producer := range instances {
		d, ok := p.DependenciesFor(producer)
		if !ok {
			continue
		}
		for _, consumer := range d.Consumers {
			b.WriteString(fmt.Sprintf("  %q -> %q [style=dotted];\n", formatLabel(producer.Label), formatLabel(consumer.Label)))
		}
	}
	b.WriteString("}\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing dependency dot file: %w", err)
	}
	return nil
}
