package ir

// FunctionLocation points at something inside a function.
type FunctionLocation interface {
	isFunctionLocation()
}

// InstructionLocation points at an instruction.
type InstructionLocation struct {
	Block       int
	Instruction int
}

// EmptyBlockLocation points at a block that has no instructions.
type EmptyBlockLocation struct {
	Block int
}

// EdgeLocation points at a control-flow edge.
type EdgeLocation struct {
	Head int
	Tail int
}

func (InstructionLocation) isFunctionLocation() {}
func (EmptyBlockLocation) isFunctionLocation()  {}
func (EdgeLocation) isFunctionLocation()        {}

// ProgramLocation is an address-independent pointer into a program.
type ProgramLocation struct {
	FunctionIndex int
	Location      FunctionLocation
}

// RefLocation is a ProgramLocation together with the nodes it points at.
// Block and Instruction are nil for edge locations; Instruction is nil for
// empty-block locations.
type RefLocation struct {
	Function    *Function
	Block       *Block
	Instruction *Instruction
	Edge        *Edge
	Location    ProgramLocation
}

// Locations enumerates every location in f: for each block in order, its
// instructions (or the block itself if empty), followed by every edge.
// f must belong to a program.
func (f *Function) Locations() []RefLocation {
	fidx := -1
	if f.Index != nil {
		fidx = *f.Index
	}
	var out []RefLocation
	for _, b := range f.Blocks {
		if len(b.Instructions) == 0 {
			out = append(out, RefLocation{
				Function: f,
				Block:    b,
				Location: ProgramLocation{FunctionIndex: fidx, Location: EmptyBlockLocation{Block: b.Index}},
			})
			continue
		}
		for _, ins := range b.Instructions {
			out = append(out, RefLocation{
				Function:    f,
				Block:       b,
				Instruction: ins,
				Location: ProgramLocation{
					FunctionIndex: fidx,
					Location:      InstructionLocation{Block: b.Index, Instruction: ins.Index},
				},
			})
		}
	}
	for _, e := range f.Edges {
		out = append(out, RefLocation{
			Function: f,
			Edge:     e,
			Location: ProgramLocation{FunctionIndex: fidx, Location: EdgeLocation{Head: e.Head, Tail: e.Tail}},
		})
	}
	return out
}
