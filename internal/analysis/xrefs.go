package analysis

import "github.com/jward/binscope/internal/ir"

// ComputeXRefs builds a fresh cross-reference index for p. For every
// instruction that carries a source address it records references to
// constant branch targets, call targets (constant addresses and in-program
// function ids) and the constant operands of reference expressions.
// Instructions without an address contribute nothing.
func ComputeXRefs(p *ir.Program) *ir.XRefs {
	x := ir.NewXRefs()
	for _, f := range p.Functions() {
		for _, b := range f.Blocks {
			for _, ins := range b.Instructions {
				if ins.Address == nil {
					continue
				}
				from := *ins.Address
				for _, to := range targets(p, ins.Operation) {
					x.Add(from, to)
				}
			}
		}
	}
	return x
}

func targets(p *ir.Program, op ir.Operation) []uint64 {
	var out []uint64
	switch o := op.(type) {
	case *ir.Branch:
		if v, ok := constant(o.Target); ok {
			out = append(out, v)
		}
	case *ir.CallOperation:
		switch t := o.Call.Target.(type) {
		case *ir.ExpressionTarget:
			if v, ok := constant(t.Expression); ok {
				out = append(out, v)
			}
		case *ir.FunctionTarget:
			if callee, ok := p.Function(t.FunctionID); ok {
				out = append(out, callee.Address)
			}
		}
	}
	for _, e := range ir.ReadExpressions(op) {
		ir.Walk(e, func(n ir.Expression) bool {
			if r, ok := n.(*ir.Reference); ok {
				if v, ok := constant(r.Expression); ok {
					out = append(out, v)
				}
			}
			return true
		})
	}
	return out
}

func constant(e ir.Expression) (uint64, bool) {
	c, ok := e.(*ir.Constant)
	if !ok {
		return 0, false
	}
	return c.Uint64()
}
