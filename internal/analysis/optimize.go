// Package analysis provides the default per-function transforms and the
// cross-reference extractor used by the translation pipeline. Every transform
// takes a function and returns a rewritten copy; inputs are never mutated.
package analysis

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/jward/binscope/internal/ir"
)

// ErrInvalidCFG is returned by Optimize when a function's control-flow graph
// is malformed.
var ErrInvalidCFG = errors.New("invalid control-flow graph")

// Optimize validates f's control-flow graph and returns a copy with constant
// expressions folded and arithmetic identities removed.
func Optimize(f *ir.Function) (*ir.Function, error) {
	if err := validate(f); err != nil {
		return nil, fmt.Errorf("optimize %s: %w", f.Name, err)
	}
	out := f.Clone()
	for _, b := range out.Blocks {
		for _, ins := range b.Instructions {
			ins.Operation = simplifyOperation(ins.Operation)
		}
	}
	for _, e := range out.Edges {
		if e.Condition != nil {
			e.Condition = Simplify(e.Condition)
		}
	}
	return out, nil
}

func validate(f *ir.Function) error {
	blocks := make(map[int]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if blocks[b.Index] {
			return fmt.Errorf("%w: duplicate block %d", ErrInvalidCFG, b.Index)
		}
		blocks[b.Index] = true

		seen := make(map[int]bool, len(b.Instructions))
		for _, ins := range b.Instructions {
			if ins.Operation == nil {
				return fmt.Errorf("%w: block %d instruction %d has no operation", ErrInvalidCFG, b.Index, ins.Index)
			}
			if seen[ins.Index] {
				return fmt.Errorf("%w: block %d has duplicate instruction %d", ErrInvalidCFG, b.Index, ins.Index)
			}
			seen[ins.Index] = true
		}
	}
	for _, e := range f.Edges {
		if !blocks[e.Head] || !blocks[e.Tail] {
			return fmt.Errorf("%w: edge %d->%d references a missing block", ErrInvalidCFG, e.Head, e.Tail)
		}
	}
	return nil
}

func simplifyOperation(op ir.Operation) ir.Operation {
	switch o := op.(type) {
	case *ir.Assign:
		if src := Simplify(o.Src); src != o.Src {
			return &ir.Assign{Dst: o.Dst, Src: src}
		}
	case *ir.Store:
		index, src := Simplify(o.Index), Simplify(o.Src)
		if index != o.Index || src != o.Src {
			return &ir.Store{Index: index, Src: src}
		}
	case *ir.Load:
		if index := Simplify(o.Index); index != o.Index {
			return &ir.Load{Dst: o.Dst, Index: index}
		}
	case *ir.Branch:
		if target := Simplify(o.Target); target != o.Target {
			return &ir.Branch{Target: target}
		}
	case *ir.CallOperation:
		if call := simplifyCall(o.Call); call != o.Call {
			return &ir.CallOperation{Call: call}
		}
	case *ir.Return:
		if o.Result != nil {
			if res := Simplify(o.Result); res != o.Result {
				return &ir.Return{Result: res}
			}
		}
	}
	return op
}

func simplifyCall(c *ir.Call) *ir.Call {
	changed := false
	target := c.Target
	if t, ok := c.Target.(*ir.ExpressionTarget); ok {
		if e := Simplify(t.Expression); e != t.Expression {
			target = &ir.ExpressionTarget{Expression: e}
			changed = true
		}
	}
	var args []ir.Expression
	if c.Arguments != nil {
		args = make([]ir.Expression, len(c.Arguments))
		for i, a := range c.Arguments {
			args[i] = Simplify(a)
			if args[i] != a {
				changed = true
			}
		}
	}
	if !changed {
		return c
	}
	return &ir.Call{Target: target, Arguments: args, VariablesWritten: c.VariablesWritten}
}

// Simplify folds constant subexpressions and removes identities. It returns
// e itself when nothing changed, so callers can detect rewrites by identity.
func Simplify(e ir.Expression) ir.Expression {
	switch x := e.(type) {
	case *ir.Dereference:
		if inner := Simplify(x.Expression); inner != x.Expression {
			return &ir.Dereference{Expression: inner}
		}
	case *ir.Reference:
		if inner := Simplify(x.Expression); inner != x.Expression {
			return &ir.Reference{Expression: inner}
		}
	case *ir.Binary:
		lhs, rhs := Simplify(x.LHS), Simplify(x.RHS)
		if folded, ok := foldBinary(x.Op, lhs, rhs); ok {
			return folded
		}
		if id, ok := identity(x.Op, lhs, rhs); ok {
			return id
		}
		if lhs != x.LHS || rhs != x.RHS {
			return &ir.Binary{Op: x.Op, LHS: lhs, RHS: rhs}
		}
	case *ir.Cast:
		rhs := Simplify(x.RHS)
		if c, ok := rhs.(*ir.Constant); ok {
			return foldCast(x.Op, x.Bits, c)
		}
		if rhs != x.RHS {
			return &ir.Cast{Op: x.Op, Bits: x.Bits, RHS: rhs}
		}
	case *ir.Ite:
		cond := Simplify(x.Cond)
		if c, ok := cond.(*ir.Constant); ok {
			if c.Value.IsZero() {
				return Simplify(x.Else)
			}
			return Simplify(x.Then)
		}
		then, els := Simplify(x.Then), Simplify(x.Else)
		if cond != x.Cond || then != x.Then || els != x.Else {
			return &ir.Ite{Cond: cond, Then: then, Else: els}
		}
	}
	return e
}

func isConst(e ir.Expression, v uint64) bool {
	c, ok := e.(*ir.Constant)
	return ok && c.Value.IsUint64() && c.Value.Uint64() == v
}

func identity(op ir.BinaryOp, lhs, rhs ir.Expression) (ir.Expression, bool) {
	switch op {
	case ir.OpAdd, ir.OpOr, ir.OpXor:
		if isConst(rhs, 0) {
			return lhs, true
		}
		if isConst(lhs, 0) {
			return rhs, true
		}
	case ir.OpSub, ir.OpShl, ir.OpShr:
		if isConst(rhs, 0) {
			return lhs, true
		}
	case ir.OpMul:
		if isConst(rhs, 1) {
			return lhs, true
		}
		if isConst(lhs, 1) {
			return rhs, true
		}
	}
	return nil, false
}

func foldBinary(op ir.BinaryOp, lhs, rhs ir.Expression) (ir.Expression, bool) {
	l, ok := lhs.(*ir.Constant)
	if !ok {
		return nil, false
	}
	r, ok := rhs.(*ir.Constant)
	if !ok {
		return nil, false
	}
	bits := max(l.Bits, r.Bits)
	a, b := l.Value, r.Value
	var out uint256.Int

	switch op {
	case ir.OpAdd:
		out.Add(&a, &b)
	case ir.OpSub:
		out.Sub(&a, &b)
	case ir.OpMul:
		out.Mul(&a, &b)
	case ir.OpDivu:
		if b.IsZero() {
			return nil, false
		}
		out.Div(&a, &b)
	case ir.OpModu:
		if b.IsZero() {
			return nil, false
		}
		out.Mod(&a, &b)
	case ir.OpAnd:
		out.And(&a, &b)
	case ir.OpOr:
		out.Or(&a, &b)
	case ir.OpXor:
		out.Xor(&a, &b)
	case ir.OpShl:
		if !b.IsUint64() || b.Uint64() >= 256 {
			return ir.NewConstant(0, bits), true
		}
		out.Lsh(&a, uint(b.Uint64()))
	case ir.OpShr:
		if !b.IsUint64() || b.Uint64() >= 256 {
			return ir.NewConstant(0, bits), true
		}
		out.Rsh(&a, uint(b.Uint64()))
	case ir.OpCmpeq:
		return boolConstant(a.Eq(&b)), true
	case ir.OpCmpneq:
		return boolConstant(!a.Eq(&b)), true
	case ir.OpCmpltu:
		return boolConstant(a.Lt(&b)), true
	case ir.OpDivs, ir.OpMods, ir.OpCmplts:
		return foldSigned(op, l, r, bits)
	default:
		return nil, false
	}
	return ir.NewBigConstant(&out, bits), true
}

// foldSigned folds signed operators on operands no wider than 64 bits.
func foldSigned(op ir.BinaryOp, l, r *ir.Constant, bits int) (ir.Expression, bool) {
	if bits <= 0 || bits > 64 {
		return nil, false
	}
	a, b := signed(l, bits), signed(r, bits)
	switch op {
	case ir.OpCmplts:
		return boolConstant(a < b), true
	case ir.OpDivs:
		if b == 0 {
			return nil, false
		}
		return ir.NewConstant(uint64(a/b), bits), true
	case ir.OpMods:
		if b == 0 {
			return nil, false
		}
		return ir.NewConstant(uint64(a%b), bits), true
	}
	return nil, false
}

func signed(c *ir.Constant, bits int) int64 {
	shift := uint(64 - bits)
	return int64(c.Value.Uint64()<<shift) >> shift
}

func boolConstant(v bool) *ir.Constant {
	if v {
		return ir.NewConstant(1, 1)
	}
	return ir.NewConstant(0, 1)
}

func foldCast(op ir.CastOp, bits int, c *ir.Constant) *ir.Constant {
	v := c.Value
	if op == ir.CastSext && c.Bits > 0 && c.Bits < bits && signBit(&v, c.Bits) {
		full := mask(bits)
		low := mask(c.Bits)
		full.Xor(full, low)
		v.Or(&v, full)
	}
	return ir.NewBigConstant(&v, bits)
}

func signBit(v *uint256.Int, bits int) bool {
	var t uint256.Int
	t.Rsh(v, uint(bits-1))
	return t[0]&1 == 1
}

// mask returns a value with the low bits bits set.
func mask(bits int) *uint256.Int {
	if bits >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	return m.SubUint64(m, 1)
}
