// Package ir defines the intermediate representation binscope serves:
// programs made of functions, basic blocks, control-flow edges,
// instructions, and expression trees, plus the location and
// cross-reference types derived from them.
package ir

import (
	"fmt"
	"sort"
)

// Program is an ordered collection of functions keyed by stable index.
// Program is not safe for concurrent mutation; owners guard it with a lock.
type Program struct {
	functions map[int]*Function
	order     []int
	next      int
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{functions: make(map[int]*Function)}
}

// AddFunction assigns f the next free index, stores it, and returns the index.
func (p *Program) AddFunction(f *Function) int {
	idx := p.next
	p.next++
	f.Index = &idx
	p.functions[idx] = f
	p.order = append(p.order, idx)
	return idx
}

// Function returns the function with the given index.
func (p *Program) Function(index int) (*Function, bool) {
	f, ok := p.functions[index]
	return f, ok
}

// Functions returns the program's functions in index order. The returned
// slice is owned by the caller; the functions are not.
func (p *Program) Functions() []*Function {
	out := make([]*Function, 0, len(p.order))
	for _, idx := range p.order {
		out = append(out, p.functions[idx])
	}
	return out
}

// Len returns the number of functions.
func (p *Program) Len() int { return len(p.order) }

// ReplaceFunction swaps the function stored at index for f. f takes over the
// index regardless of what its own Index field says.
func (p *Program) ReplaceFunction(index int, f *Function) error {
	if _, ok := p.functions[index]; !ok {
		return fmt.Errorf("replace function: no function with index %d", index)
	}
	idx := index
	f.Index = &idx
	p.functions[index] = f
	return nil
}

// FunctionByAddress returns the function whose entry address is addr.
func (p *Program) FunctionByAddress(addr uint64) (*Function, bool) {
	for _, idx := range p.order {
		if f := p.functions[idx]; f.Address == addr {
			return f, true
		}
	}
	return nil, false
}

// Indices returns the sorted function indices.
func (p *Program) Indices() []int {
	out := append([]int(nil), p.order...)
	sort.Ints(out)
	return out
}
