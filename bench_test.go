package binscope

import (
	"fmt"
	"testing"

	"github.com/jward/binscope/internal/ir"
)

// benchChain is the length of each function's dead assignment chain. Each
// elimination pass removes one link, so it also sets the pass count.
const benchChain = 16

// benchProgram builds n functions. Each folds a constant, runs a chain of
// benchChain dead copies, calls memcpy with a live argument and returns.
func benchProgram(n int) *ir.Program {
	p := ir.NewProgram()
	for i := range n {
		base := uint64(0x10000 + i*0x1000)
		var ins []*ir.Instruction
		add := func(op ir.Operation) {
			idx := len(ins)
			ins = append(ins, &ir.Instruction{Index: idx, Address: ptr(base + uint64(idx)*4), Operation: op})
		}

		add(&ir.Assign{Dst: ir.NewScalar("rdi", 64), Src: &ir.Binary{
			Op:  ir.OpAdd,
			LHS: ir.NewConstant(base, 64),
			RHS: ir.NewConstant(0x10, 64),
		}})
		prev := ir.Expression(ir.NewConstant(0, 32))
		for k := range benchChain {
			dst := ir.NewScalar(fmt.Sprintf("t%d", k), 32)
			add(&ir.Assign{Dst: dst, Src: prev})
			prev = dst
		}
		add(&ir.CallOperation{Call: &ir.Call{
			Target:    &ir.SymbolTarget{Symbol: "memcpy"},
			Arguments: []ir.Expression{ir.NewScalar("rdi", 64)},
		}})
		add(&ir.Return{})

		p.AddFunction(&ir.Function{
			Address: base,
			Name:    fmt.Sprintf("fn_%d", i),
			Blocks:  []*ir.Block{{Index: 0, Instructions: ins}},
		})
	}
	return p
}

func benchmarkTranslate(b *testing.B, functions, workers int) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		d := DocumentFromProgram(benchProgram(functions), WithWorkers(workers))
		b.StartTimer()

		sum, err := d.Translate()
		if err != nil {
			b.Fatal(err)
		}
		if sum.Optimized != functions {
			b.Fatalf("optimized %d of %d functions", sum.Optimized, functions)
		}
	}
}

func BenchmarkTranslate_Serial(b *testing.B)   { benchmarkTranslate(b, 256, 1) }
func BenchmarkTranslate_Parallel(b *testing.B) { benchmarkTranslate(b, 256, 0) }

func BenchmarkResolveAddress(b *testing.B) {
	d := DocumentFromProgram(benchProgram(256))
	if _, err := d.Translate(); err != nil {
		b.Fatal(err)
	}
	// Last instruction of the last function: a full scan.
	addr := uint64(0x10000+255*0x1000) + uint64(benchChain+2)*4

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := d.ResolveAddress(addr)
		if err != nil || r == nil {
			b.Fatalf("resolve %#x: %v, %v", addr, r, err)
		}
	}
}

func BenchmarkFindCalls(b *testing.B) {
	d := DocumentFromProgram(benchProgram(256))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		locs, err := d.FindCalls("memcpy")
		if err != nil || len(locs) != 256 {
			b.Fatalf("find calls: %d, %v", len(locs), err)
		}
	}
}
