package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleFunction(name string, addr uint64) *Function {
	return &Function{
		Address: addr,
		Name:    name,
		Blocks: []*Block{
			{Index: 0, Instructions: []*Instruction{
				{Index: 0, Address: ptr(addr), Operation: &Assign{Dst: NewScalar("eax", 32), Src: NewConstant(1, 32)}},
				{Index: 1, Address: ptr(addr + 5), Operation: &Branch{Target: NewConstant(addr+0x10, 64)}},
			}},
			{Index: 1},
		},
		Edges: []*Edge{{Head: 0, Tail: 1}},
	}
}

func TestProgram_AddFunctionAssignsSequentialIndices(t *testing.T) {
	t.Parallel()
	p := NewProgram()

	a := p.AddFunction(sampleFunction("a", 0x1000))
	b := p.AddFunction(sampleFunction("b", 0x2000))

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	require.Equal(t, 2, p.Len())

	fns := p.Functions()
	assert.Equal(t, "a", fns[0].Name)
	assert.Equal(t, "b", fns[1].Name)
	assert.Equal(t, 1, *fns[1].Index)
}

func TestProgram_ReplacePreservesIndex(t *testing.T) {
	t.Parallel()
	p := NewProgram()
	p.AddFunction(sampleFunction("a", 0x1000))
	idx := p.AddFunction(sampleFunction("b", 0x2000))

	repl := sampleFunction("b.optimized", 0x2000)
	require.NoError(t, p.ReplaceFunction(idx, repl))

	got, ok := p.Function(idx)
	require.True(t, ok)
	assert.Equal(t, "b.optimized", got.Name)
	assert.Equal(t, idx, *got.Index)
	assert.Equal(t, 2, p.Len())
}

func TestProgram_ReplaceUnknownIndex(t *testing.T) {
	t.Parallel()
	p := NewProgram()
	err := p.ReplaceFunction(7, sampleFunction("x", 0))
	require.Error(t, err)
}

func TestProgram_FunctionByAddress(t *testing.T) {
	t.Parallel()
	p := NewProgram()
	p.AddFunction(sampleFunction("a", 0x1000))
	p.AddFunction(sampleFunction("b", 0x2000))

	f, ok := p.FunctionByAddress(0x2000)
	require.True(t, ok)
	assert.Equal(t, "b", f.Name)

	_, ok = p.FunctionByAddress(0x3000)
	assert.False(t, ok)
}

func TestFunction_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	p := NewProgram()
	p.AddFunction(sampleFunction("a", 0x1000))
	orig, _ := p.Function(0)

	c := orig.Clone()
	c.Blocks[0].Instructions = c.Blocks[0].Instructions[:1]
	c.Blocks[0].Instructions[0].Index = 42
	c.Edges[0].Tail = 9
	*c.Index = 5

	assert.Len(t, orig.Blocks[0].Instructions, 2)
	assert.Equal(t, 0, orig.Blocks[0].Instructions[0].Index)
	assert.Equal(t, 1, orig.Edges[0].Tail)
	assert.Equal(t, 0, *orig.Index)
}

func TestFunction_LocationsOrder(t *testing.T) {
	t.Parallel()
	p := NewProgram()
	p.AddFunction(sampleFunction("a", 0x1000))
	f, _ := p.Function(0)

	locs := f.Locations()
	require.Len(t, locs, 4)
	assert.Equal(t, InstructionLocation{Block: 0, Instruction: 0}, locs[0].Location.Location)
	assert.Equal(t, InstructionLocation{Block: 0, Instruction: 1}, locs[1].Location.Location)
	assert.Equal(t, EmptyBlockLocation{Block: 1}, locs[2].Location.Location)
	assert.Equal(t, EdgeLocation{Head: 0, Tail: 1}, locs[3].Location.Location)
	assert.Nil(t, locs[2].Instruction)
	assert.NotNil(t, locs[3].Edge)
}

func TestConstant_HexAndTruncation(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0x0", NewConstant(0, 32).Hex())
	assert.Equal(t, "0xdeadbeef", NewConstant(0xdeadbeef, 32).Hex())
	assert.Equal(t, "0xff", NewConstant(0x1ff, 8).Hex())

	v, ok := NewConstant(0x1234, 16).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1234), v)
}

func TestScalars_CollectsNestedReads(t *testing.T) {
	t.Parallel()
	e := &Ite{
		Cond: &Binary{Op: OpCmpeq, LHS: NewScalar("a", 32), RHS: NewConstant(0, 32)},
		Then: &Dereference{Expression: NewScalar("b", 64)},
		Else: &Cast{Op: CastZext, Bits: 64, RHS: NewScalar("c", 32)},
	}
	var names []string
	for _, s := range Scalars(e) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestXRefs_BothDirectionsSorted(t *testing.T) {
	t.Parallel()
	x := NewXRefs()
	x.Add(0x10, 0x30)
	x.Add(0x10, 0x20)
	x.Add(0x40, 0x20)
	x.Add(0x10, 0x20)

	assert.Equal(t, []uint64{0x20, 0x30}, x.ReferencesFrom(0x10))
	assert.Equal(t, []uint64{0x10, 0x40}, x.ReferencesTo(0x20))
	assert.Equal(t, 3, x.Len())
	assert.Len(t, x.FromTo(), 2)
	assert.Len(t, x.ToFrom(), 2)
	assert.Empty(t, x.ReferencesFrom(0x99))
}

func TestReadExpressions_Call(t *testing.T) {
	t.Parallel()
	target := NewScalar("rax", 64)
	arg := NewScalar("rdi", 64)
	op := &CallOperation{Call: &Call{
		Target:    &ExpressionTarget{Expression: target},
		Arguments: []Expression{arg},
	}}
	reads := ReadExpressions(op)
	require.Len(t, reads, 2)
	assert.Same(t, target, reads[0])
	assert.Same(t, arg, reads[1])

	sym, ok := (&Call{Target: &SymbolTarget{Symbol: "memcpy"}}).Symbol()
	assert.True(t, ok)
	assert.Equal(t, "memcpy", sym)
}
