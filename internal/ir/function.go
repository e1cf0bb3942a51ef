package ir

// Instruction is one operation at a position within a block.
type Instruction struct {
	Operation Operation
	Index     int
	Comment   *string
	// Address is the source address the instruction was lifted from. It is
	// nil for instructions synthesized by optimization passes.
	Address *uint64
}

// Block is a basic block.
type Block struct {
	Index        int
	Instructions []*Instruction
}

// Edge is a control-flow edge between two blocks of the same function.
type Edge struct {
	Head      int
	Tail      int
	Condition Expression
	Comment   *string
}

// Function is a lifted function.
type Function struct {
	Address uint64
	// Index is assigned by the owning Program and is nil until the function
	// has been added to one.
	Index  *int
	Name   string
	Blocks []*Block
	Edges  []*Edge
}

// Block returns the block with the given index.
func (f *Function) Block(index int) (*Block, bool) {
	for _, b := range f.Blocks {
		if b.Index == index {
			return b, true
		}
	}
	return nil, false
}

// Instruction returns the instruction at (block, index).
func (b *Block) Instruction(index int) (*Instruction, bool) {
	for _, ins := range b.Instructions {
		if ins.Index == index {
			return ins, true
		}
	}
	return nil, false
}

// InstructionCount returns the number of instructions across all blocks.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instructions)
	}
	return n
}

// Clone returns a logical copy of f: function, block, instruction and edge
// records are copied, expression trees are shared.
func (f *Function) Clone() *Function {
	out := &Function{
		Address: f.Address,
		Name:    f.Name,
		Blocks:  make([]*Block, len(f.Blocks)),
		Edges:   make([]*Edge, len(f.Edges)),
	}
	if f.Index != nil {
		idx := *f.Index
		out.Index = &idx
	}
	for i, b := range f.Blocks {
		nb := &Block{Index: b.Index, Instructions: make([]*Instruction, len(b.Instructions))}
		for j, ins := range b.Instructions {
			c := *ins
			nb.Instructions[j] = &c
		}
		out.Blocks[i] = nb
	}
	for i, e := range f.Edges {
		c := *e
		out.Edges[i] = &c
	}
	return out
}

// WithBlocks returns a copy of f sharing edges and metadata but using blocks.
func (f *Function) WithBlocks(blocks []*Block) *Function {
	out := *f
	out.Blocks = blocks
	return &out
}
