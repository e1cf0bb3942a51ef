package ir

import "sort"

// XRefs is a bidirectional address-to-address reference index. An XRefs is
// built once and then only read; recomputation produces a new value.
type XRefs struct {
	fromTo map[uint64]map[uint64]struct{}
	toFrom map[uint64]map[uint64]struct{}
}

// NewXRefs returns an empty index.
func NewXRefs() *XRefs {
	return &XRefs{
		fromTo: make(map[uint64]map[uint64]struct{}),
		toFrom: make(map[uint64]map[uint64]struct{}),
	}
}

// Add records a reference from -> to. Only builders call Add.
func (x *XRefs) Add(from, to uint64) {
	if x.fromTo[from] == nil {
		x.fromTo[from] = make(map[uint64]struct{})
	}
	x.fromTo[from][to] = struct{}{}
	if x.toFrom[to] == nil {
		x.toFrom[to] = make(map[uint64]struct{})
	}
	x.toFrom[to][from] = struct{}{}
}

// FromTo returns, for each referencing address, the sorted addresses it refers to.
func (x *XRefs) FromTo() map[uint64][]uint64 { return flatten(x.fromTo) }

// ToFrom returns, for each referenced address, the sorted addresses referring to it.
func (x *XRefs) ToFrom() map[uint64][]uint64 { return flatten(x.toFrom) }

// ReferencesFrom returns the sorted targets referenced by addr.
func (x *XRefs) ReferencesFrom(addr uint64) []uint64 { return sortedSet(x.fromTo[addr]) }

// ReferencesTo returns the sorted addresses referencing addr.
func (x *XRefs) ReferencesTo(addr uint64) []uint64 { return sortedSet(x.toFrom[addr]) }

// Len returns the number of distinct (from, to) pairs.
func (x *XRefs) Len() int {
	n := 0
	for _, to := range x.fromTo {
		n += len(to)
	}
	return n
}

func flatten(m map[uint64]map[uint64]struct{}) map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(m))
	for k, set := range m {
		out[k] = sortedSet(set)
	}
	return out
}

func sortedSet(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
