// Package projection maps IR nodes to the self-describing tree served to
// remote clients. Every node carries a discriminator ("type", "op" or
// "operation") next to its named children, so clients can re-parse a tree
// structurally. The tag vocabulary is a versioned wire contract: renaming a
// tag or field is a breaking change and must bump GrammarVersion.
//
// Nodes are plain map[string]any / []any values so they encode with
// encoding/json and convert directly into script objects.
package projection

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/binscope/internal/ir"
)

// GrammarVersion identifies the tag vocabulary below.
const GrammarVersion = "1"

// Node is one object in a projected tree.
type Node = map[string]any

// Variable projects a scalar or stack variable.
func Variable(v ir.Variable) Node {
	switch x := v.(type) {
	case *ir.Scalar:
		return Node{"type": "scalar", "name": x.Name, "bits": x.Bits}
	case *ir.StackVariable:
		return Node{"type": "stack_variable", "offset": x.Offset, "bits": x.Bits}
	}
	panic(fmt.Sprintf("projection: unknown variable %T", v))
}

// Constant projects a constant as a 0x-prefixed hex string.
func Constant(c *ir.Constant) Node {
	return Node{"type": "constant", "value": c.Hex(), "bits": c.Bits}
}

// Expression projects an expression tree.
func Expression(e ir.Expression) Node {
	switch x := e.(type) {
	case *ir.Scalar:
		return Variable(x)
	case *ir.StackVariable:
		return Variable(x)
	case *ir.Dereference:
		return Node{"type": "dereference", "expression": Expression(x.Expression)}
	case *ir.Constant:
		return Constant(x)
	case *ir.Reference:
		return Node{"type": "reference", "expression": Expression(x.Expression)}
	case *ir.Binary:
		return Node{"op": x.Op.String(), "lhs": Expression(x.LHS), "rhs": Expression(x.RHS)}
	case *ir.Cast:
		return Node{"op": x.Op.String(), "bits": x.Bits, "rhs": Expression(x.RHS)}
	case *ir.Ite:
		return Node{
			"op":   "ite",
			"cond": Expression(x.Cond),
			"then": Expression(x.Then),
			"else": Expression(x.Else),
		}
	}
	panic(fmt.Sprintf("projection: unknown expression %T", e))
}

// optionalExpression projects e or returns nil.
func optionalExpression(e ir.Expression) any {
	if e == nil {
		return nil
	}
	return Expression(e)
}

// expressions projects a list; a nil list projects to nil (wire null).
func expressions(es []ir.Expression) any {
	if es == nil {
		return nil
	}
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = Expression(e)
	}
	return out
}

// Call projects a call site.
func Call(c *ir.Call) Node {
	var target Node
	switch t := c.Target.(type) {
	case *ir.ExpressionTarget:
		target = Node{"type": "expression", "expression": Expression(t.Expression)}
	case *ir.SymbolTarget:
		target = Node{"type": "symbol", "symbol": t.Symbol}
	case *ir.FunctionTarget:
		target = Node{"type": "function_id", "function_id": t.FunctionID}
	default:
		panic(fmt.Sprintf("projection: unknown call target %T", c.Target))
	}

	var written any
	if c.VariablesWritten != nil {
		vs := make([]any, len(c.VariablesWritten))
		for i, v := range c.VariablesWritten {
			vs[i] = Variable(v)
		}
		written = vs
	}

	return Node{
		"target":            target,
		"arguments":         expressions(c.Arguments),
		"variables_written": written,
	}
}

// Intrinsic projects an opaque machine instruction.
func Intrinsic(in *ir.Intrinsic) Node {
	args := expressions(in.Arguments)
	if args == nil {
		args = []any{}
	}
	bytes := make([]any, len(in.Bytes))
	for i, b := range in.Bytes {
		bytes[i] = int(b)
	}
	return Node{
		"mnemonic":            in.Mnemonic,
		"instruction_str":     in.InstructionStr,
		"arguments":           args,
		"written_expressions": expressions(in.WrittenExpressions),
		"read_expressions":    expressions(in.ReadExpressions),
		"bytes":               bytes,
	}
}

// Operation projects an operation.
func Operation(op ir.Operation) Node {
	switch o := op.(type) {
	case *ir.Assign:
		return Node{"operation": "assign", "dst": Variable(o.Dst), "src": Expression(o.Src)}
	case *ir.Store:
		return Node{"operation": "store", "index": Expression(o.Index), "src": Expression(o.Src)}
	case *ir.Load:
		return Node{"operation": "load", "dst": Variable(o.Dst), "index": Expression(o.Index)}
	case *ir.Branch:
		return Node{"operation": "branch", "target": Expression(o.Target)}
	case *ir.CallOperation:
		return Node{"operation": "call", "call": Call(o.Call)}
	case *ir.IntrinsicOperation:
		return Node{"operation": "intrinsic", "intrinsic": Intrinsic(o.Intrinsic)}
	case *ir.Return:
		return Node{"operation": "return", "result": optionalExpression(o.Result)}
	case *ir.Nop:
		return Node{"operation": "nop"}
	}
	panic(fmt.Sprintf("projection: unknown operation %T", op))
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Instruction projects an instruction.
func Instruction(ins *ir.Instruction) Node {
	var addr any
	if ins.Address != nil {
		addr = *ins.Address
	}
	return Node{
		"operation": Operation(ins.Operation),
		"index":     ins.Index,
		"comment":   optionalString(ins.Comment),
		"address":   addr,
	}
}

// Block projects a block and its instructions.
func Block(b *ir.Block) Node {
	instructions := make([]any, len(b.Instructions))
	for i, ins := range b.Instructions {
		instructions[i] = Instruction(ins)
	}
	return Node{"index": b.Index, "instructions": instructions}
}

// Edge projects a control-flow edge.
func Edge(e *ir.Edge) Node {
	return Node{
		"head":      e.Head,
		"tail":      e.Tail,
		"condition": optionalExpression(e.Condition),
		"comment":   optionalString(e.Comment),
	}
}

// Function projects a whole function.
func Function(f *ir.Function) Node {
	var index any
	if f.Index != nil {
		index = *f.Index
	}
	blocks := make([]any, len(f.Blocks))
	for i, b := range f.Blocks {
		blocks[i] = Block(b)
	}
	edges := make([]any, len(f.Edges))
	for i, e := range f.Edges {
		edges[i] = Edge(e)
	}
	return Node{
		"address": f.Address,
		"index":   index,
		"name":    f.Name,
		"blocks":  blocks,
		"edges":   edges,
	}
}

// FunctionLocation projects a location inside a function.
func FunctionLocation(fl ir.FunctionLocation) Node {
	switch l := fl.(type) {
	case ir.InstructionLocation:
		return Node{"block-index": l.Block, "instruction-index": l.Instruction}
	case ir.EmptyBlockLocation:
		return Node{"block-index": l.Block}
	case ir.EdgeLocation:
		return Node{"edge-head": l.Head, "edge-tail": l.Tail}
	}
	panic(fmt.Sprintf("projection: unknown function location %T", fl))
}

// ProgramLocation projects a location inside a program.
func ProgramLocation(pl ir.ProgramLocation) Node {
	return Node{
		"function-index":    pl.FunctionIndex,
		"function-location": FunctionLocation(pl.Location),
	}
}

// XRefs projects the cross-reference index. Map keys are decimal address
// strings; values are ascending address lists.
func XRefs(x *ir.XRefs) Node {
	return Node{
		"from_to": addressMap(x.FromTo()),
		"to_from": addressMap(x.ToFrom()),
	}
}

func addressMap(m map[uint64][]uint64) Node {
	out := make(Node, len(m))
	for k, vs := range m {
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[fmt.Sprintf("%d", k)] = list
	}
	return out
}

// Fingerprint returns a 64-bit digest of f's projection. Structurally equal
// functions have equal fingerprints.
func Fingerprint(f *ir.Function) uint64 {
	b, err := json.Marshal(Function(f))
	if err != nil {
		panic(fmt.Sprintf("projection: fingerprint: %v", err))
	}
	return xxhash.Sum64(b)
}
