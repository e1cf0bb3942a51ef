package binscope

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/loader"
)

func ptr[T any](v T) *T { return &v }

// sampleBytes returns testdata/sample.json: main (dead code, calls to
// memcpy and helper), helper (memcpy, MEMCPY, a reference), and broken
// (an edge to a missing block, rejected by the optimizer).
func sampleBytes(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "sample.json"))
	require.NoError(t, err)
	return b
}

func newSampleDocument(t *testing.T, opts ...Option) *Document {
	t.Helper()
	d, err := NewDocument(context.Background(), loader.JSONLoader{}, sampleBytes(t), opts...)
	require.NoError(t, err)
	return d
}

// counterFunction builds a single-block function holding n nops.
func counterFunction(name string, n int) *ir.Function {
	b := &ir.Block{Index: 0}
	for i := range n {
		b.Instructions = append(b.Instructions, &ir.Instruction{Index: i, Operation: &ir.Nop{}})
	}
	return &ir.Function{Name: name, Blocks: []*ir.Block{b}}
}

// dropFirst is a synthetic elimination pass that removes one instruction
// per call, so a function with n instructions converges after n+1 calls.
func dropFirst(f *ir.Function) (*ir.Function, error) {
	out := f.Clone()
	for _, b := range out.Blocks {
		if len(b.Instructions) > 0 {
			b.Instructions = b.Instructions[1:]
			break
		}
	}
	return out, nil
}

func identityOptimizer(f *ir.Function) (*ir.Function, error) { return f, nil }
