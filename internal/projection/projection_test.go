package projection

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/binscope/internal/ir"
)

func ptr[T any](v T) *T { return &v }

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestExpression_Variables(t *testing.T) {
	t.Parallel()
	assert.JSONEq(t, `{"type":"scalar","name":"eax","bits":32}`,
		toJSON(t, Expression(ir.NewScalar("eax", 32))))
	assert.JSONEq(t, `{"type":"stack_variable","offset":-16,"bits":64}`,
		toJSON(t, Expression(&ir.StackVariable{Offset: -16, Bits: 64})))
}

func TestExpression_ConstantHex(t *testing.T) {
	t.Parallel()
	assert.JSONEq(t, `{"type":"constant","value":"0x401000","bits":64}`,
		toJSON(t, Expression(ir.NewConstant(0x401000, 64))))
	assert.JSONEq(t, `{"type":"constant","value":"0x0","bits":1}`,
		toJSON(t, Expression(ir.NewConstant(0, 1))))
}

func TestExpression_Nested(t *testing.T) {
	t.Parallel()
	e := &ir.Ite{
		Cond: &ir.Binary{Op: ir.OpCmpltu, LHS: ir.NewScalar("a", 32), RHS: ir.NewConstant(4, 32)},
		Then: &ir.Dereference{Expression: &ir.Binary{Op: ir.OpAdd, LHS: ir.NewScalar("rsp", 64), RHS: ir.NewConstant(8, 64)}},
		Else: &ir.Cast{Op: ir.CastSext, Bits: 64, RHS: &ir.Reference{Expression: ir.NewConstant(0x10, 64)}},
	}
	want := `{
		"op": "ite",
		"cond": {"op":"cmpltu","lhs":{"type":"scalar","name":"a","bits":32},"rhs":{"type":"constant","value":"0x4","bits":32}},
		"then": {"type":"dereference","expression":{"op":"add","lhs":{"type":"scalar","name":"rsp","bits":64},"rhs":{"type":"constant","value":"0x8","bits":64}}},
		"else": {"op":"sext","bits":64,"rhs":{"type":"reference","expression":{"type":"constant","value":"0x10","bits":64}}}
	}`
	assert.JSONEq(t, want, toJSON(t, Expression(e)))
}

func TestOperation_AllKinds(t *testing.T) {
	t.Parallel()
	eax := ir.NewScalar("eax", 32)
	one := ir.NewConstant(1, 32)

	tests := []struct {
		op   ir.Operation
		want string
	}{
		{&ir.Assign{Dst: eax, Src: one},
			`{"operation":"assign","dst":{"type":"scalar","name":"eax","bits":32},"src":{"type":"constant","value":"0x1","bits":32}}`},
		{&ir.Store{Index: eax, Src: one},
			`{"operation":"store","index":{"type":"scalar","name":"eax","bits":32},"src":{"type":"constant","value":"0x1","bits":32}}`},
		{&ir.Load{Dst: eax, Index: one},
			`{"operation":"load","dst":{"type":"scalar","name":"eax","bits":32},"index":{"type":"constant","value":"0x1","bits":32}}`},
		{&ir.Branch{Target: one},
			`{"operation":"branch","target":{"type":"constant","value":"0x1","bits":32}}`},
		{&ir.Return{},
			`{"operation":"return","result":null}`},
		{&ir.Return{Result: eax},
			`{"operation":"return","result":{"type":"scalar","name":"eax","bits":32}}`},
		{&ir.Nop{},
			`{"operation":"nop"}`},
	}
	for _, tt := range tests {
		t.Run(tt.op.Kind(), func(t *testing.T) {
			assert.JSONEq(t, tt.want, toJSON(t, Operation(tt.op)))
		})
	}
}

func TestCall_Targets(t *testing.T) {
	t.Parallel()
	sym := &ir.Call{Target: &ir.SymbolTarget{Symbol: "memcpy"}}
	assert.JSONEq(t,
		`{"target":{"type":"symbol","symbol":"memcpy"},"arguments":null,"variables_written":null}`,
		toJSON(t, Call(sym)))

	fid := &ir.Call{
		Target:           &ir.FunctionTarget{FunctionID: 3},
		Arguments:        []ir.Expression{},
		VariablesWritten: []ir.Variable{ir.NewScalar("rax", 64)},
	}
	assert.JSONEq(t,
		`{"target":{"type":"function_id","function_id":3},"arguments":[],"variables_written":[{"type":"scalar","name":"rax","bits":64}]}`,
		toJSON(t, Call(fid)))

	ind := &ir.Call{Target: &ir.ExpressionTarget{Expression: ir.NewScalar("rax", 64)}}
	assert.JSONEq(t,
		`{"target":{"type":"expression","expression":{"type":"scalar","name":"rax","bits":64}},"arguments":null,"variables_written":null}`,
		toJSON(t, Call(ind)))
}

func TestIntrinsic(t *testing.T) {
	t.Parallel()
	in := &ir.Intrinsic{
		Mnemonic:       "cpuid",
		InstructionStr: "cpuid",
		Arguments:      nil,
		Bytes:          []byte{0x0f, 0xa2},
	}
	assert.JSONEq(t,
		`{"operation":"intrinsic","intrinsic":{"mnemonic":"cpuid","instruction_str":"cpuid","arguments":[],"written_expressions":null,"read_expressions":null,"bytes":[15,162]}}`,
		toJSON(t, Operation(&ir.IntrinsicOperation{Intrinsic: in})))
}

func TestFunction_Shape(t *testing.T) {
	t.Parallel()
	p := ir.NewProgram()
	f := &ir.Function{
		Address: 0x1000,
		Name:    "main",
		Blocks: []*ir.Block{
			{Index: 0, Instructions: []*ir.Instruction{
				{Index: 0, Address: ptr(uint64(0x1000)), Comment: ptr("entry"), Operation: &ir.Nop{}},
				{Index: 1, Operation: &ir.Return{}},
			}},
		},
		Edges: []*ir.Edge{{Head: 0, Tail: 0, Condition: ir.NewConstant(1, 1)}},
	}
	p.AddFunction(f)

	want := `{
		"address": 4096, "index": 0, "name": "main",
		"blocks": [{"index":0,"instructions":[
			{"operation":{"operation":"nop"},"index":0,"comment":"entry","address":4096},
			{"operation":{"operation":"return","result":null},"index":1,"comment":null,"address":null}
		]}],
		"edges": [{"head":0,"tail":0,"condition":{"type":"constant","value":"0x1","bits":1},"comment":null}]
	}`
	assert.JSONEq(t, want, toJSON(t, Function(f)))

	unindexed := &ir.Function{Name: "orphan"}
	assert.JSONEq(t, `{"address":0,"index":null,"name":"orphan","blocks":[],"edges":[]}`,
		toJSON(t, Function(unindexed)))
}

func TestLocations(t *testing.T) {
	t.Parallel()
	assert.JSONEq(t, `{"function-index":2,"function-location":{"block-index":1,"instruction-index":4}}`,
		toJSON(t, ProgramLocation(ir.ProgramLocation{FunctionIndex: 2, Location: ir.InstructionLocation{Block: 1, Instruction: 4}})))
	assert.JSONEq(t, `{"block-index":3}`, toJSON(t, FunctionLocation(ir.EmptyBlockLocation{Block: 3})))
	assert.JSONEq(t, `{"edge-head":0,"edge-tail":1}`, toJSON(t, FunctionLocation(ir.EdgeLocation{Head: 0, Tail: 1})))
}

func TestXRefs_DecimalKeys(t *testing.T) {
	t.Parallel()
	x := ir.NewXRefs()
	x.Add(0x10, 0x20)
	x.Add(0x10, 0x18)
	assert.JSONEq(t, `{"from_to":{"16":[24,32]},"to_from":{"24":[16],"32":[16]}}`, toJSON(t, XRefs(x)))
	assert.JSONEq(t, `{"from_to":{},"to_from":{}}`, toJSON(t, XRefs(ir.NewXRefs())))
}

// Every operation kind and expression shape must be identified by a
// discriminator no other shape uses.
func TestTags_Unique(t *testing.T) {
	t.Parallel()
	a := ir.NewScalar("a", 8)
	exprs := []ir.Expression{
		a,
		&ir.StackVariable{Offset: 0, Bits: 8},
		&ir.Dereference{Expression: a},
		ir.NewConstant(0, 8),
		&ir.Reference{Expression: a},
		&ir.Ite{Cond: a, Then: a, Else: a},
	}
	for op := range ir.BinaryOpNames {
		exprs = append(exprs, &ir.Binary{Op: op, LHS: a, RHS: a})
	}
	for op := range ir.CastOpNames {
		exprs = append(exprs, &ir.Cast{Op: op, Bits: 8, RHS: a})
	}

	seen := map[string]bool{}
	for _, e := range exprs {
		n := Expression(e)
		tag, _ := n["type"].(string)
		if tag == "" {
			tag = "op:" + n["op"].(string)
		}
		assert.False(t, seen[tag], "duplicate expression tag %s", tag)
		seen[tag] = true
	}
	assert.Len(t, seen, len(exprs))

	ops := []ir.Operation{
		&ir.Assign{Dst: a, Src: a}, &ir.Store{Index: a, Src: a}, &ir.Load{Dst: a, Index: a},
		&ir.Branch{Target: a}, &ir.CallOperation{Call: &ir.Call{Target: &ir.SymbolTarget{Symbol: "f"}}},
		&ir.IntrinsicOperation{Intrinsic: &ir.Intrinsic{}}, &ir.Return{}, &ir.Nop{},
	}
	opTags := map[string]bool{}
	for _, op := range ops {
		tag := Operation(op)["operation"].(string)
		assert.Equal(t, op.Kind(), tag)
		opTags[tag] = true
	}
	assert.Len(t, opTags, len(ir.OperationKinds))
}

func TestDecodeFunction_RoundTrip(t *testing.T) {
	t.Parallel()
	rsp := ir.NewScalar("rsp", 64)
	f := &ir.Function{
		Address: 0x401000,
		Name:    "copy",
		Blocks: []*ir.Block{
			{Index: 0, Instructions: []*ir.Instruction{
				{Index: 0, Address: ptr(uint64(0x401000)), Operation: &ir.Assign{
					Dst: &ir.StackVariable{Offset: -8, Bits: 64},
					Src: &ir.Cast{Op: ir.CastZext, Bits: 64, RHS: ir.NewScalar("edi", 32)},
				}},
				{Index: 1, Address: ptr(uint64(0x401004)), Comment: ptr("call"), Operation: &ir.CallOperation{Call: &ir.Call{
					Target:           &ir.SymbolTarget{Symbol: "memcpy"},
					Arguments:        []ir.Expression{rsp, &ir.Dereference{Expression: rsp}},
					VariablesWritten: []ir.Variable{ir.NewScalar("rax", 64)},
				}}},
				{Index: 2, Operation: &ir.IntrinsicOperation{Intrinsic: &ir.Intrinsic{
					Mnemonic: "rdtsc", InstructionStr: "rdtsc", Arguments: []ir.Expression{},
					WrittenExpressions: []ir.Expression{ir.NewScalar("eax", 32)}, Bytes: []byte{0x0f, 0x31},
				}}},
			}},
			{Index: 1, Instructions: []*ir.Instruction{
				{Index: 0, Operation: &ir.Return{Result: ir.NewScalar("rax", 64)}},
			}},
		},
		Edges: []*ir.Edge{{Head: 0, Tail: 1, Comment: ptr("fallthrough"),
			Condition: &ir.Binary{Op: ir.OpCmpneq, LHS: ir.NewScalar("zf", 1), RHS: ir.NewConstant(0, 1)}}},
	}

	raw, err := json.Marshal(Function(f))
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	got, err := DecodeFunction(decoded)
	require.NoError(t, err)

	assert.True(t, cmp.Equal(f, got), cmp.Diff(f, got))
}

func TestDecodeExpression_Errors(t *testing.T) {
	t.Parallel()
	_, err := DecodeExpression(map[string]any{"type": "register"})
	assert.Error(t, err)
	_, err = DecodeExpression(map[string]any{"op": "rol"})
	assert.Error(t, err)
	_, err = DecodeExpression("scalar")
	assert.Error(t, err)
	_, err = DecodeExpression(map[string]any{"type": "constant", "value": "12", "bits": 8.0})
	assert.Error(t, err)

	c, err := DecodeExpression(map[string]any{"type": "constant", "value": "0x00ff", "bits": 8.0})
	require.NoError(t, err)
	assert.Equal(t, "0xff", c.(*ir.Constant).Hex())
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	mk := func(v uint64) *ir.Function {
		return &ir.Function{Name: "f", Blocks: []*ir.Block{{Index: 0, Instructions: []*ir.Instruction{
			{Index: 0, Operation: &ir.Assign{Dst: ir.NewScalar("a", 8), Src: ir.NewConstant(v, 8)}},
		}}}}
	}
	assert.Equal(t, Fingerprint(mk(1)), Fingerprint(mk(1)))
	assert.NotEqual(t, Fingerprint(mk(1)), Fingerprint(mk(2)))
}
