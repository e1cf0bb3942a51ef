package projection

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/jward/binscope/internal/ir"
)

var (
	binaryOps = reverse(ir.BinaryOpNames)
	castOps   = reverse(ir.CastOpNames)
)

func reverse[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// DecodeFunction parses a Function node produced by Function (or decoded
// from its JSON encoding) back into IR. The function's index is not
// restored; programs assign their own.
func DecodeFunction(v any) (*ir.Function, error) {
	m, err := asNode(v, "function")
	if err != nil {
		return nil, err
	}
	addr, err := uintField(m, "address")
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	name, err := stringField(m, "name")
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	f := &ir.Function{Address: addr, Name: name}

	blocks, err := listField(m, "blocks")
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", name, err)
	}
	for i, bv := range blocks {
		b, err := decodeBlock(bv)
		if err != nil {
			return nil, fmt.Errorf("function %s: block %d: %w", name, i, err)
		}
		f.Blocks = append(f.Blocks, b)
	}

	edges, err := listField(m, "edges")
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", name, err)
	}
	for i, ev := range edges {
		e, err := decodeEdge(ev)
		if err != nil {
			return nil, fmt.Errorf("function %s: edge %d: %w", name, i, err)
		}
		f.Edges = append(f.Edges, e)
	}
	return f, nil
}

func decodeBlock(v any) (*ir.Block, error) {
	m, err := asNode(v, "block")
	if err != nil {
		return nil, err
	}
	idx, err := intField(m, "index")
	if err != nil {
		return nil, err
	}
	b := &ir.Block{Index: idx}
	list, err := listField(m, "instructions")
	if err != nil {
		return nil, err
	}
	for i, iv := range list {
		ins, err := DecodeInstruction(iv)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		b.Instructions = append(b.Instructions, ins)
	}
	return b, nil
}

func decodeEdge(v any) (*ir.Edge, error) {
	m, err := asNode(v, "edge")
	if err != nil {
		return nil, err
	}
	head, err := intField(m, "head")
	if err != nil {
		return nil, err
	}
	tail, err := intField(m, "tail")
	if err != nil {
		return nil, err
	}
	e := &ir.Edge{Head: head, Tail: tail}
	if c := m["condition"]; c != nil {
		if e.Condition, err = DecodeExpression(c); err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
	}
	if e.Comment, err = optionalStringField(m, "comment"); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeInstruction parses an Instruction node.
func DecodeInstruction(v any) (*ir.Instruction, error) {
	m, err := asNode(v, "instruction")
	if err != nil {
		return nil, err
	}
	idx, err := intField(m, "index")
	if err != nil {
		return nil, err
	}
	op, err := DecodeOperation(m["operation"])
	if err != nil {
		return nil, err
	}
	ins := &ir.Instruction{Operation: op, Index: idx}
	if ins.Comment, err = optionalStringField(m, "comment"); err != nil {
		return nil, err
	}
	if a := m["address"]; a != nil {
		addr, err := toUint(a)
		if err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
		ins.Address = &addr
	}
	return ins, nil
}

// DecodeOperation parses an Operation node.
func DecodeOperation(v any) (ir.Operation, error) {
	m, err := asNode(v, "operation")
	if err != nil {
		return nil, err
	}
	tag, err := stringField(m, "operation")
	if err != nil {
		return nil, err
	}
	switch tag {
	case "assign":
		dst, err := decodeVariable(m["dst"])
		if err != nil {
			return nil, fmt.Errorf("assign dst: %w", err)
		}
		src, err := DecodeExpression(m["src"])
		if err != nil {
			return nil, fmt.Errorf("assign src: %w", err)
		}
		return &ir.Assign{Dst: dst, Src: src}, nil
	case "store":
		index, err := DecodeExpression(m["index"])
		if err != nil {
			return nil, fmt.Errorf("store index: %w", err)
		}
		src, err := DecodeExpression(m["src"])
		if err != nil {
			return nil, fmt.Errorf("store src: %w", err)
		}
		return &ir.Store{Index: index, Src: src}, nil
	case "load":
		dst, err := decodeVariable(m["dst"])
		if err != nil {
			return nil, fmt.Errorf("load dst: %w", err)
		}
		index, err := DecodeExpression(m["index"])
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		return &ir.Load{Dst: dst, Index: index}, nil
	case "branch":
		target, err := DecodeExpression(m["target"])
		if err != nil {
			return nil, fmt.Errorf("branch target: %w", err)
		}
		return &ir.Branch{Target: target}, nil
	case "call":
		call, err := decodeCall(m["call"])
		if err != nil {
			return nil, fmt.Errorf("call: %w", err)
		}
		return &ir.CallOperation{Call: call}, nil
	case "intrinsic":
		in, err := decodeIntrinsic(m["intrinsic"])
		if err != nil {
			return nil, fmt.Errorf("intrinsic: %w", err)
		}
		return &ir.IntrinsicOperation{Intrinsic: in}, nil
	case "return":
		r := &ir.Return{}
		if res := m["result"]; res != nil {
			if r.Result, err = DecodeExpression(res); err != nil {
				return nil, fmt.Errorf("return result: %w", err)
			}
		}
		return r, nil
	case "nop":
		return &ir.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", tag)
}

func decodeCall(v any) (*ir.Call, error) {
	m, err := asNode(v, "call")
	if err != nil {
		return nil, err
	}
	tm, err := asNode(m["target"], "call target")
	if err != nil {
		return nil, err
	}
	tag, err := stringField(tm, "type")
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	c := &ir.Call{}
	switch tag {
	case "expression":
		e, err := DecodeExpression(tm["expression"])
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		c.Target = &ir.ExpressionTarget{Expression: e}
	case "symbol":
		s, err := stringField(tm, "symbol")
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		c.Target = &ir.SymbolTarget{Symbol: s}
	case "function_id":
		id, err := intField(tm, "function_id")
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		c.Target = &ir.FunctionTarget{FunctionID: id}
	default:
		return nil, fmt.Errorf("unknown call target %q", tag)
	}

	if c.Arguments, err = optionalExpressions(m, "arguments"); err != nil {
		return nil, err
	}
	if w := m["variables_written"]; w != nil {
		list, ok := w.([]any)
		if !ok {
			return nil, fmt.Errorf("variables_written: expected list, got %T", w)
		}
		c.VariablesWritten = make([]ir.Variable, 0, len(list))
		for _, item := range list {
			vv, err := decodeVariable(item)
			if err != nil {
				return nil, fmt.Errorf("variables_written: %w", err)
			}
			c.VariablesWritten = append(c.VariablesWritten, vv)
		}
	}
	return c, nil
}

func decodeIntrinsic(v any) (*ir.Intrinsic, error) {
	m, err := asNode(v, "intrinsic")
	if err != nil {
		return nil, err
	}
	in := &ir.Intrinsic{}
	if in.Mnemonic, err = stringField(m, "mnemonic"); err != nil {
		return nil, err
	}
	if in.InstructionStr, err = stringField(m, "instruction_str"); err != nil {
		return nil, err
	}
	if in.Arguments, err = optionalExpressions(m, "arguments"); err != nil {
		return nil, err
	}
	if in.Arguments == nil {
		in.Arguments = []ir.Expression{}
	}
	if in.WrittenExpressions, err = optionalExpressions(m, "written_expressions"); err != nil {
		return nil, err
	}
	if in.ReadExpressions, err = optionalExpressions(m, "read_expressions"); err != nil {
		return nil, err
	}
	if bv := m["bytes"]; bv != nil {
		list, ok := bv.([]any)
		if !ok {
			return nil, fmt.Errorf("bytes: expected list, got %T", bv)
		}
		in.Bytes = make([]byte, len(list))
		for i, item := range list {
			n, err := toUint(item)
			if err != nil || n > math.MaxUint8 {
				return nil, fmt.Errorf("bytes[%d]: not a byte", i)
			}
			in.Bytes[i] = byte(n)
		}
	} else {
		in.Bytes = []byte{}
	}
	return in, nil
}

func decodeVariable(v any) (ir.Variable, error) {
	e, err := DecodeExpression(v)
	if err != nil {
		return nil, err
	}
	vv, ok := e.(ir.Variable)
	if !ok {
		return nil, fmt.Errorf("expected variable, got %T", e)
	}
	return vv, nil
}

// DecodeExpression parses an Expression node.
func DecodeExpression(v any) (ir.Expression, error) {
	m, err := asNode(v, "expression")
	if err != nil {
		return nil, err
	}
	if tag, ok := m["type"].(string); ok {
		return decodeTyped(tag, m)
	}
	op, ok := m["op"].(string)
	if !ok {
		return nil, fmt.Errorf("expression has neither type nor op")
	}
	if bop, ok := binaryOps[op]; ok {
		lhs, err := DecodeExpression(m["lhs"])
		if err != nil {
			return nil, fmt.Errorf("%s lhs: %w", op, err)
		}
		rhs, err := DecodeExpression(m["rhs"])
		if err != nil {
			return nil, fmt.Errorf("%s rhs: %w", op, err)
		}
		return &ir.Binary{Op: bop, LHS: lhs, RHS: rhs}, nil
	}
	if cop, ok := castOps[op]; ok {
		bits, err := intField(m, "bits")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rhs, err := DecodeExpression(m["rhs"])
		if err != nil {
			return nil, fmt.Errorf("%s rhs: %w", op, err)
		}
		return &ir.Cast{Op: cop, Bits: bits, RHS: rhs}, nil
	}
	if op == "ite" {
		cond, err := DecodeExpression(m["cond"])
		if err != nil {
			return nil, fmt.Errorf("ite cond: %w", err)
		}
		then, err := DecodeExpression(m["then"])
		if err != nil {
			return nil, fmt.Errorf("ite then: %w", err)
		}
		els, err := DecodeExpression(m["else"])
		if err != nil {
			return nil, fmt.Errorf("ite else: %w", err)
		}
		return &ir.Ite{Cond: cond, Then: then, Else: els}, nil
	}
	return nil, fmt.Errorf("unknown op %q", op)
}

func decodeTyped(tag string, m Node) (ir.Expression, error) {
	switch tag {
	case "scalar":
		name, err := stringField(m, "name")
		if err != nil {
			return nil, err
		}
		bits, err := intField(m, "bits")
		if err != nil {
			return nil, err
		}
		return &ir.Scalar{Name: name, Bits: bits}, nil
	case "stack_variable":
		off, err := numberField(m, "offset")
		if err != nil {
			return nil, err
		}
		bits, err := intField(m, "bits")
		if err != nil {
			return nil, err
		}
		return &ir.StackVariable{Offset: off, Bits: bits}, nil
	case "constant":
		s, err := stringField(m, "value")
		if err != nil {
			return nil, err
		}
		bits, err := intField(m, "bits")
		if err != nil {
			return nil, err
		}
		val, err := parseHex(s)
		if err != nil {
			return nil, err
		}
		return ir.NewBigConstant(val, bits), nil
	case "dereference":
		e, err := DecodeExpression(m["expression"])
		if err != nil {
			return nil, fmt.Errorf("dereference: %w", err)
		}
		return &ir.Dereference{Expression: e}, nil
	case "reference":
		e, err := DecodeExpression(m["expression"])
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		return &ir.Reference{Expression: e}, nil
	}
	return nil, fmt.Errorf("unknown expression type %q", tag)
}

// parseHex accepts "0x"-prefixed hex, tolerating leading zeros.
func parseHex(s string) (*uint256.Int, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("constant %q: missing 0x prefix", s)
	}
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		digits = "0"
	}
	v, err := uint256.FromHex("0x" + strings.ToLower(digits))
	if err != nil {
		return nil, fmt.Errorf("constant %q: %w", s, err)
	}
	return v, nil
}

func optionalExpressions(m Node, key string) ([]ir.Expression, error) {
	v := m[key]
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", key, v)
	}
	out := make([]ir.Expression, 0, len(list))
	for i, item := range list {
		e, err := DecodeExpression(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// --- field helpers ---

func asNode(v any, what string) (Node, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", what, v)
	}
	return m, nil
}

func stringField(m Node, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, m[key])
	}
	return s, nil
}

func optionalStringField(m Node, key string) (*string, error) {
	v := m[key]
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	return &s, nil
}

func listField(m Node, key string) ([]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q: expected list, got %T", key, v)
	}
	return list, nil
}

func intField(m Node, key string) (int, error) {
	n, err := numberField(m, key)
	return int(n), err
}

func numberField(m Node, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

func uintField(m Node, key string) (uint64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, err := toUint(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toUint(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s is not an unsigned integer", n)
		}
		return u, nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an unsigned integer", n)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%d is negative", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
