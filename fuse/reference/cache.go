package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/pepperpots/fusehpm/fuse"
)

// SetID identifies one reference set: a fixed collection of events
// profiled together because they fit one hardware counter multiplexing
// group (spec §4.6's "reference set index").
type SetID int

var filenamePattern = regexp.MustCompile(`^reference_set_(\d+)_repeat_(\d+)\.bin$`)

// FilePath returns the on-disk path for one (set, repeat) reference file
// under dir.
func FilePath(dir string, set SetID, repeat int) string {
	return filepath.Join(dir, fmt.Sprintf("reference_set_%d_repeat_%d.bin", int(set), repeat))
}

type setEntry struct {
	id      SetID
	events  fuse.EventSet
	repeats []int // sorted repeat indices discovered on disk
}

// Cache is the reference distribution cache (spec §4.6). It discovers
// reference files under a directory, indexes each set's declared events
// without decoding the (potentially large) instance data, and loads full
// distributions eagerly at construction or lazily on first query.
type Cache struct {
	dir  string
	lazy bool

	mu     sync.RWMutex
	sets   []*setEntry
	loaded map[SetID]map[int]*Distribution
}

// Open discovers every reference_set_<id>_repeat_<n>.bin file under dir,
// peeks each set's event header, and returns a Cache. If lazy is false,
// every discovered file is fully decoded immediately (spec §4.6's "eager"
// load mode); if lazy is true, files are decoded on first
// GetOrLoadReferenceDistribution call that needs them.
func Open(dir string, lazy bool) (*Cache, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "reference_set_*_repeat_*.bin"))
	if err != nil {
		return nil, fmt.Errorf("reference: glob %s: %w", dir, err)
	}

	bySet := make(map[SetID][]int)
	for _, path := range matches {
		m := filenamePattern.FindStringSubmatch(filepath.Base(path))
		if m == nil {
			continue
		}
		setN, _ := strconv.Atoi(m[1])
		repeatN, _ := strconv.Atoi(m[2])
		bySet[SetID(setN)] = append(bySet[SetID(setN)], repeatN)
	}

	c := &Cache{
		dir:    dir,
		lazy:   lazy,
		loaded: make(map[SetID]map[int]*Distribution),
	}

	setIDs := make([]SetID, 0, len(bySet))
	for id := range bySet {
		setIDs = append(setIDs, id)
	}
	sort.Slice(setIDs, func(i, j int) bool { return setIDs[i] < setIDs[j] })

	for _, id := range setIDs {
		repeats := bySet[id]
		sort.Ints(repeats)

		f, err := os.Open(FilePath(dir, id, repeats[0]))
		if err != nil {
			return nil, fmt.Errorf("reference: peek set %d: %w", id, err)
		}
		events, err := PeekEvents(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reference: peek set %d: %w", id, err)
		}

		c.sets = append(c.sets, &setEntry{id: id, events: fuse.NewEventSet(eventStrings(events)...), repeats: repeats})
	}

	if !lazy {
		if err := c.preloadAll(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func eventStrings(events []fuse.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func (c *Cache) preloadAll() error {
	for _, s := range c.sets {
		for _, r := range s.repeats {
			if _, err := c.load(s.id, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) load(set SetID, repeat int) (*Distribution, error) {
	c.mu.RLock()
	if d, ok := c.loaded[set][repeat]; ok {
		c.mu.RUnlock()
		return d, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.loaded[set][repeat]; ok {
		return d, nil
	}

	f, err := os.Open(FilePath(c.dir, set, repeat))
	if err != nil {
		return nil, fmt.Errorf("%w: reference set %d repeat %d: %v", fuse.ErrDataNotFound, set, repeat, err)
	}
	defer f.Close()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reference: decode set %d repeat %d: %w", set, repeat, err)
	}
	if c.loaded[set] == nil {
		c.loaded[set] = make(map[int]*Distribution)
	}
	c.loaded[set][repeat] = d
	return d, nil
}

// findSubsuming returns the first (lowest SetID) reference set whose
// declared events are a superset of events. Sets are searched in
// ascending SetID order; when more than one set subsumes the request this
// deterministic tie-break is the cache's resolution of spec §4.6's
// otherwise-unspecified choice.
func (c *Cache) findSubsuming(events []fuse.Event) (*setEntry, error) {
	want := fuse.NewEventSet(eventStrings(events)...)
	for _, s := range c.sets {
		if want.Subset(s.events) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no reference set subsumes events %v", fuse.ErrDataNotFound, events)
}

// GetOrLoadReferenceDistribution implements spec §4.6's
// get_or_load_reference_distribution: locates the reference set that
// subsumes events, loads it (from cache, or from disk under lazy mode),
// and returns instance rows projected onto events and concatenated across
// symbols (empty symbols means every symbol in the set).
func (c *Cache) GetOrLoadReferenceDistribution(events []fuse.Event, repeatIdx int, symbols []fuse.Symbol) ([][]int64, error) {
	set, err := c.findSubsuming(events)
	if err != nil {
		return nil, err
	}
	if !containsInt(set.repeats, repeatIdx) {
		return nil, fmt.Errorf("%w: reference set %d has no repeat %d", fuse.ErrDataNotFound, set.id, repeatIdx)
	}
	dist, err := c.load(set.id, repeatIdx)
	if err != nil {
		return nil, err
	}
	return dist.Project(events, symbols)
}

// Symbols returns the symbols declared in the reference set that
// subsumes events, loading its first repeat if not already cached. Used
// by calibration to enumerate which per-symbol rows exist before building
// a Table entry.
func (c *Cache) Symbols(events []fuse.Event) ([]fuse.Symbol, error) {
	set, err := c.findSubsuming(events)
	if err != nil {
		return nil, err
	}
	if len(set.repeats) == 0 {
		return nil, fmt.Errorf("%w: reference set %d has no repeats", fuse.ErrDataNotFound, set.id)
	}
	dist, err := c.load(set.id, set.repeats[0])
	if err != nil {
		return nil, err
	}
	return dist.Symbols(), nil
}

// RepeatsFor returns the discovered repeat indices for the reference set
// that subsumes events, used by calibration to iterate every 2-combination
// of repeats.
func (c *Cache) RepeatsFor(events []fuse.Event) ([]int, error) {
	set, err := c.findSubsuming(events)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), set.repeats...), nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
