package analysis

import "github.com/jward/binscope/internal/ir"

// EliminateDeadCode performs one dead-code pass over f: nops are dropped, as
// are assigns and loads whose scalar destination is read nowhere in f. If f
// calls with unknown arguments, or runs an intrinsic with an unknown read
// set, any scalar may be read and only nops are dropped. Remaining
// instructions keep their indices. Removing an instruction can make another
// dead, so callers iterate to a fixpoint.
func EliminateDeadCode(f *ir.Function) (*ir.Function, error) {
	live, unknown := readScalars(f)

	blocks := make([]*ir.Block, len(f.Blocks))
	for i, b := range f.Blocks {
		nb := &ir.Block{Index: b.Index}
		for _, ins := range b.Instructions {
			if dead(ins.Operation, live, unknown) {
				continue
			}
			c := *ins
			nb.Instructions = append(nb.Instructions, &c)
		}
		blocks[i] = nb
	}

	out := f.Clone()
	out.Blocks = blocks
	return out, nil
}

func dead(op ir.Operation, live map[string]bool, unknown bool) bool {
	if _, ok := op.(*ir.Nop); ok {
		return true
	}
	if unknown {
		return false
	}
	switch o := op.(type) {
	case *ir.Assign:
		s, ok := o.Dst.(*ir.Scalar)
		return ok && !live[s.Name]
	case *ir.Load:
		s, ok := o.Dst.(*ir.Scalar)
		return ok && !live[s.Name]
	}
	return false
}

// readScalars returns the names of every scalar f reads. Expressions an
// intrinsic writes are counted as reads since they may address memory
// through a scalar. unknown is true when some operation in f may read
// scalars it does not list.
func readScalars(f *ir.Function) (live map[string]bool, unknown bool) {
	live = make(map[string]bool)
	mark := func(e ir.Expression) {
		for _, s := range ir.Scalars(e) {
			live[s.Name] = true
		}
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instructions {
			if ir.ReadsUnknown(ins.Operation) {
				unknown = true
			}
			for _, e := range ir.ReadExpressions(ins.Operation) {
				mark(e)
			}
			if o, ok := ins.Operation.(*ir.IntrinsicOperation); ok {
				for _, e := range o.Intrinsic.WrittenExpressions {
					mark(e)
				}
			}
		}
	}
	for _, e := range f.Edges {
		if e.Condition != nil {
			mark(e.Condition)
		}
	}
	return live, unknown
}
