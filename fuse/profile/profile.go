// Package profile implements the Execution profile store (spec §4.2): an
// in-memory table of Instances grouped by Symbol, plus the declared event
// set and an optional instance-dependency DAG.
package profile

import (
	"fmt"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// Dependencies holds, for one Instance, the set of Instances that produced
// data it consumed and the set that consumed data it produced.
type Dependencies struct {
	Producers []*fuse.Instance
	Consumers []*fuse.Instance
}

// Profile is the Execution profile store.
type Profile struct {
	// Tracefile is the origin path; informational once loaded.
	Tracefile string

	events EventSetOrdered
	bySymbol map[fuse.Symbol][]*fuse.Instance
	symbolOf map[*fuse.Instance]fuse.Symbol

	// filterEvents, when non-nil, restricts PrintToFile's dumped columns
	// to exactly this set (spec §4.2: "When a filter event set is
	// attached to the profile...").
	filterEvents []fuse.Event

	deps map[*fuse.Instance]*Dependencies

	nextID fuse.InstanceID
}

// EventSetOrdered tracks declared events plus their first-seen order, so
// CSV dumps have a deterministic column order without needing to re-sort
// on every PrintToFile call.
type EventSetOrdered struct {
	set   fuse.EventSet
	order []fuse.Event
}

func newEventSetOrdered() EventSetOrdered {
	return EventSetOrdered{set: make(fuse.EventSet)}
}

func (e *EventSetOrdered) add(ev fuse.Event) {
	if e.set.Has(ev) {
		return
	}
	e.set.Add(ev)
	e.order = append(e.order, ev)
}

// New returns an empty Profile reading from tracefile (informational).
func New(tracefile string) *Profile {
	return &Profile{
		Tracefile: tracefile,
		events:    newEventSetOrdered(),
		bySymbol:  make(map[fuse.Symbol][]*fuse.Instance),
		symbolOf:  make(map[*fuse.Instance]fuse.Symbol),
		deps:      make(map[*fuse.Instance]*Dependencies),
	}
}

// AddInstance appends instance into its symbol's bucket. O(1) amortized.
// Every event the instance carries a value for is also registered via
// AddEvent, since spec §3 requires EventValues keys be a subset of the
// profile's declared event set.
func (p *Profile) AddInstance(instance *fuse.Instance) {
	instance.ID = p.nextID
	p.nextID++
	p.bySymbol[instance.Symbol] = append(p.bySymbol[instance.Symbol], instance)
	p.symbolOf[instance] = instance.Symbol
	for e := range instance.EventValues {
		p.AddEvent(e)
	}
}

// AddEvent registers an event as part of the profile's declared set.
func (p *Profile) AddEvent(e fuse.Event) {
	p.events.add(e)
}

// SetFilterEvents restricts PrintToFile's dumped columns to exactly evts,
// in the given order, and suppresses the gpu_eligible column (spec §4.2).
func (p *Profile) SetFilterEvents(evts []fuse.Event) {
	p.filterEvents = evts
}

// GetUniqueSymbols returns every symbol with at least one stored instance.
func (p *Profile) GetUniqueSymbols() []fuse.Symbol {
	out := make([]fuse.Symbol, 0, len(p.bySymbol))
	for s := range p.bySymbol {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetUniqueEvents returns every event declared on the profile, in
// first-seen order.
func (p *Profile) GetUniqueEvents() []fuse.Event {
	out := make([]fuse.Event, len(p.events.order))
	copy(out, p.events.order)
	return out
}

// GetInstances returns a flat list of instances. If symbols is empty,
// every stored instance is returned (optionally excluding runtime).
// Order is stable only within a symbol's bucket (insertion order); when
// multiple symbols are requested the buckets are concatenated in the
// order GetUniqueSymbols reports them, for determinism.
func (p *Profile) GetInstances(includeRuntime bool, symbols ...fuse.Symbol) []*fuse.Instance {
	if len(symbols) == 0 {
		symbols = p.GetUniqueSymbols()
	}
	var out []*fuse.Instance
	for _, s := range symbols {
		if !includeRuntime && s == fuse.SymbolRuntime {
			continue
		}
		out = append(out, p.bySymbol[s]...)
	}
	return out
}

// GetValueDistribution returns one i64 vector per instance, columns in the
// order of events. Fails if any matched instance lacks any requested
// event.
func (p *Profile) GetValueDistribution(events []fuse.Event, includeRuntime bool, symbols ...fuse.Symbol) ([][]int64, error) {
	instances := p.GetInstances(includeRuntime, symbols...)
	out := make([][]int64, 0, len(instances))
	for _, in := range instances {
		row := make([]int64, len(events))
		for i, e := range events {
			v, ok := in.Value(e)
			if !ok {
				return nil, fmt.Errorf("instance (symbol=%s,label=%v) missing event %q", in.Symbol, in.Label, e)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// AddDependencyEdge records a producer→consumer data-flow edge. Both
// Instances must already belong to this profile. Panics (assert-on-edge-
// addition, per spec §9) if the temporal invariant producer.End <
// consumer.Start is violated, since that indicates a caller bug in the
// trace parser rather than a recoverable condition.
func (p *Profile) AddDependencyEdge(producer, consumer *fuse.Instance) {
	if producer.End >= consumer.Start {
		panic(fmt.Sprintf("fuse/profile: dependency edge violates producer.End < consumer.Start (producer end=%d, consumer start=%d)", producer.End, consumer.Start))
	}
	pd := p.dependenciesFor(producer)
	cd := p.dependenciesFor(consumer)
	pd.Consumers = append(pd.Consumers, consumer)
	cd.Producers = append(cd.Producers, producer)
}

func (p *Profile) dependenciesFor(in *fuse.Instance) *Dependencies {
	d, ok := p.deps[in]
	if !ok {
		d = &Dependencies{}
		p.deps[in] = d
	}
	return d
}

// HasDependencies reports whether any dependency edges have been recorded.
func (p *Profile) HasDependencies() bool { return len(p.deps) > 0 }

// DependenciesFor returns the recorded producer/consumer sets for in, if any.
func (p *Profile) DependenciesFor(in *fuse.Instance) (Dependencies, bool) {
	d, ok := p.deps[in]
	if !ok {
		return Dependencies{}, false
	}
	return *d, true
}
