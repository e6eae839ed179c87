// Package reference implements the reference distribution cache (spec
// §4.6): per (reference set, repeat) binary files of event-value vectors,
// loaded eagerly or lazily and projected onto whatever event subset a
// caller asks for.
package reference

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// Distribution holds one reference repeat's decoded instance rows, one
// slice of columns (in Events order) per symbol.
type Distribution struct {
	Events      []fuse.Event
	symbolOrder []fuse.Symbol
	bySymbol    map[fuse.Symbol][][]int64
}

// NewDistribution builds a Distribution from already-assembled rows. rows
// for a symbol must each have len(events) columns; Encode/Decode enforce
// this on disk, this constructor is for building one in memory (e.g. from
// a freshly profiled reference run, before persisting it).
func NewDistribution(events []fuse.Event, bySymbol map[fuse.Symbol][][]int64) (*Distribution, error) {
	order := make([]fuse.Symbol, 0, len(bySymbol))
	for s := range bySymbol {
		order = append(order, s)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, s := range order {
		for _, row := range bySymbol[s] {
			if len(row) != len(events) {
				return nil, fmt.Errorf("reference: symbol %q row has %d columns, want %d", s, len(row), len(events))
			}
		}
	}
	return &Distribution{Events: events, symbolOrder: order, bySymbol: bySymbol}, nil
}

// Symbols returns the symbols this distribution carries rows for, in the
// order they're written on disk.
func (d *Distribution) Symbols() []fuse.Symbol {
	return append([]fuse.Symbol(nil), d.symbolOrder...)
}

// Project returns one row per instance, columns reordered to match
// events, concatenated across symbols (in symbol order). An empty symbols
// argument means every symbol the distribution carries. Fails with
// fuse.ErrDataNotFound if events references a column this distribution
// doesn't have, or if a requested symbol is absent.
func (d *Distribution) Project(events []fuse.Event, symbols []fuse.Symbol) ([][]int64, error) {
	colIdx := make([]int, len(events))
	colOf := make(map[fuse.Event]int, len(d.Events))
	for i, e := range d.Events {
		colOf[e] = i
	}
	for i, e := range events {
		idx, ok := colOf[e]
		if !ok {
			return nil, fmt.Errorf("%w: reference distribution has no column %q", fuse.ErrDataNotFound, e)
		}
		colIdx[i] = idx
	}

	wantSymbols := symbols
	if len(wantSymbols) == 0 {
		wantSymbols = d.symbolOrder
	}

	var out [][]int64
	for _, s := range wantSymbols {
		rows, ok := d.bySymbol[s]
		if !ok {
			return nil, fmt.Errorf("%w: reference distribution has no symbol %q", fuse.ErrDataNotFound, s)
		}
		for _, row := range rows {
			projected := make([]int64, len(events))
			for i, c := range colIdx {
				projected[i] = row[c]
			}
			out = append(out, projected)
		}
	}
	return out, nil
}

// Encode writes d to w in the wire format spec §4.6 defines: a u32 event
// count followed by length-prefixed event names, a u32 symbol count, and
// per symbol a length-prefixed name, a u32 instance count, and that many
// rows of len(d.Events) little-endian i64 values.
func Encode(w io.Writer, d *Distribution) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, uint32(len(d.Events))); err != nil {
		return err
	}
	for _, e := range d.Events {
		if err := writeString(bw, string(e)); err != nil {
			return err
		}
	}
	if err := writeU32(bw, uint32(len(d.symbolOrder))); err != nil {
		return err
	}
	for _, s := range d.symbolOrder {
		if err := writeString(bw, string(s)); err != nil {
			return err
		}
		rows := d.bySymbol[s]
		if err := writeU32(bw, uint32(len(rows))); err != nil {
			return err
		}
		for _, row := range rows {
			if len(row) != len(d.Events) {
				return fmt.Errorf("reference: encode: symbol %q row has %d columns, want %d", s, len(row), len(d.Events))
			}
			for _, v := range row {
				if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Decode reads a full Distribution from r in the wire format Encode
// writes.
func Decode(r io.Reader) (*Distribution, error) {
	br := bufio.NewReader(r)
	events, err := readEvents(br)
	if err != nil {
		return nil, err
	}

	numSymbols, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("reference: decode num_symbols: %w", err)
	}

	order := make([]fuse.Symbol, 0, numSymbols)
	bySymbol := make(map[fuse.Symbol][][]int64, numSymbols)
	for i := uint32(0); i < numSymbols; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("reference: decode symbol name: %w", err)
		}
		symbol := fuse.Symbol(name)

		numInstances, err := readU32(br)
		if err != nil {
			return nil, fmt.Errorf("reference: decode num_instances for symbol %q: %w", symbol, err)
		}
		rows := make([][]int64, numInstances)
		for r := uint32(0); r < numInstances; r++ {
			row := make([]int64, len(events))
			for c := range row {
				var v int64
				if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
					return nil, fmt.Errorf("reference: decode instance value (symbol=%q row=%d col=%d): %w", symbol, r, c, err)
				}
				row[c] = v
			}
			rows[r] = row
		}
		order = append(order, symbol)
		bySymbol[symbol] = rows
	}

	return &Distribution{Events: events, symbolOrder: order, bySymbol: bySymbol}, nil
}

// PeekEvents reads just the event-name header from r, without consuming
// the (potentially large) per-symbol instance data that follows. Used by
// the cache to index a reference set's declared events without a full
// decode.
func PeekEvents(r io.Reader) ([]fuse.Event, error) {
	return readEvents(bufio.NewReader(r))
}

func readEvents(br *bufio.Reader) ([]fuse.Event, error) {
	numEvents, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("reference: decode num_events: %w", err)
	}
	events := make([]fuse.Event, numEvents)
	for i := uint32(0); i < numEvents; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("reference: decode event name: %w", err)
		}
		events[i] = fuse.Event(name)
	}
	return events, nil
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
