package binscope

import (
	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/projection"
)

// Resolution locates the instruction lifted from an address.
type Resolution struct {
	FunctionIndex int
	FunctionName  string
	BlockIndex    int
	Location      ir.ProgramLocation
	Instruction   *ir.Instruction
}

// Project renders r in the wire grammar. A nil Resolution projects to nil.
func (r *Resolution) Project() projection.Node {
	if r == nil {
		return nil
	}
	return projection.Node{
		"function-index":    r.FunctionIndex,
		"function-name":     r.FunctionName,
		"block-index":       r.BlockIndex,
		"function-location": projection.FunctionLocation(r.Location.Location),
		"instruction":       projection.Instruction(r.Instruction),
	}
}

// ResolveAddress scans functions, blocks and instructions in order and
// returns the first instruction whose source address is addr, or nil.
// Instructions without an address never match.
func ResolveAddress(p *ir.Program, addr uint64) *Resolution {
	for _, f := range p.Functions() {
		for _, b := range f.Blocks {
			for _, ins := range b.Instructions {
				if ins.Address == nil || *ins.Address != addr {
					continue
				}
				fidx := *f.Index
				return &Resolution{
					FunctionIndex: fidx,
					FunctionName:  f.Name,
					BlockIndex:    b.Index,
					Location: ir.ProgramLocation{
						FunctionIndex: fidx,
						Location:      ir.InstructionLocation{Block: b.Index, Instruction: ins.Index},
					},
					Instruction: ins,
				}
			}
		}
	}
	return nil
}

// FindCalls returns the location of every call whose target is the symbol
// exactly equal to symbol, in function, block, instruction order.
func FindCalls(p *ir.Program, symbol string) []ir.ProgramLocation {
	var out []ir.ProgramLocation
	for _, f := range p.Functions() {
		for _, loc := range f.Locations() {
			if loc.Instruction == nil {
				continue
			}
			call, ok := loc.Instruction.Operation.(*ir.CallOperation)
			if !ok {
				continue
			}
			if sym, ok := call.Call.Symbol(); ok && sym == symbol {
				out = append(out, loc.Location)
			}
		}
	}
	return out
}
