package binscope

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/projection"
)

func TestTranslate_Sample(t *testing.T) {
	t.Parallel()
	d := newSampleDocument(t)
	assert.Zero(t, d.XRefs().Len(), "xrefs are empty before the first translation")

	sum, err := d.Translate()
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Functions)
	assert.Equal(t, 2, sum.Optimized)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Capped)
	assert.Equal(t, 1, sum.Changed)
	assert.Equal(t, 4, sum.Iterations)
	require.Len(t, sum.Outcomes, 3)
	assert.Equal(t, OutcomeSkipped, sum.Outcomes[2].Outcome)
	assert.ErrorIs(t, sum.Outcomes[2].Err, ErrOptimize)

	main, err := d.Function(0)
	require.NoError(t, err)
	var kept []int
	for _, ins := range main.Blocks[0].Instructions {
		kept = append(kept, ins.Index)
	}
	assert.Equal(t, []int{2, 4}, kept, "dead assigns and the nop are gone, indices kept")
	assert.Equal(t, 0, *main.Index)

	broken, err := d.Function(2)
	require.NoError(t, err)
	assert.Len(t, broken.Blocks[0].Instructions, 1, "skipped functions keep their prior form")

	x := d.XRefs()
	assert.Equal(t, []uint64{0x2000}, x.ReferencesFrom(0x1010))
	assert.Equal(t, []uint64{0x1000}, x.ReferencesFrom(0x1014))
	assert.Equal(t, []uint64{0x3000}, x.ReferencesFrom(0x2008))
}

func TestTranslate_Idempotent(t *testing.T) {
	t.Parallel()
	d := newSampleDocument(t)

	_, err := d.Translate()
	require.NoError(t, err)
	before := fingerprints(t, d)

	sum, err := d.Translate()
	require.NoError(t, err)
	assert.Zero(t, sum.Changed)
	assert.Equal(t, before, fingerprints(t, d))
}

func TestTranslate_FixpointConverges(t *testing.T) {
	t.Parallel()
	p := ir.NewProgram()
	p.AddFunction(counterFunction("five", 5))
	d := DocumentFromProgram(p,
		WithOptimizer(identityOptimizer),
		WithEliminator(dropFirst),
		WithFixpointLimit(10),
	)

	sum, err := d.Translate()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Optimized)
	assert.Equal(t, 6, sum.Iterations)

	f, err := d.Function(0)
	require.NoError(t, err)
	assert.Empty(t, f.Blocks[0].Instructions)
}

func TestTranslate_FixpointCap(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)

	p := ir.NewProgram()
	p.AddFunction(counterFunction("long", 20))
	p.AddFunction(counterFunction("short", 2))
	d := DocumentFromProgram(p,
		WithOptimizer(identityOptimizer),
		WithEliminator(dropFirst),
		WithFixpointLimit(5),
		WithLogger(zap.New(core)),
	)

	sum, err := d.Translate()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Capped)
	assert.Equal(t, 1, sum.Optimized)
	assert.Equal(t, OutcomeCapped, sum.Outcomes[0].Outcome)
	assert.ErrorIs(t, sum.Outcomes[0].Err, ErrFixpointNotReached)

	long, err := d.Function(0)
	require.NoError(t, err)
	assert.Len(t, long.Blocks[0].Instructions, 20, "capped functions keep their prior form")

	short, err := d.Function(1)
	require.NoError(t, err)
	assert.Empty(t, short.Blocks[0].Instructions)

	warnings := logs.FilterMessage("dead code elimination did not converge").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "long", warnings[0].ContextMap()["function"])
}

func TestTranslate_OptimizerPanicIsSkipped(t *testing.T) {
	t.Parallel()
	p := ir.NewProgram()
	p.AddFunction(counterFunction("a", 1))
	p.AddFunction(counterFunction("b", 1))
	d := DocumentFromProgram(p, WithOptimizer(func(f *ir.Function) (*ir.Function, error) {
		if f.Name == "a" {
			panic("bad lift")
		}
		return f, nil
	}))

	sum, err := d.Translate()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Optimized)
	assert.ErrorIs(t, sum.Outcomes[0].Err, ErrOptimize)
}

func TestTranslate_EliminatorErrorIsSkipped(t *testing.T) {
	t.Parallel()
	p := ir.NewProgram()
	p.AddFunction(counterFunction("a", 3))
	boom := errors.New("boom")
	d := DocumentFromProgram(p, WithEliminator(func(*ir.Function) (*ir.Function, error) { return nil, boom }))

	sum, err := d.Translate()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.ErrorIs(t, sum.Outcomes[0].Err, boom)

	f, err := d.Function(0)
	require.NoError(t, err)
	assert.Len(t, f.Blocks[0].Instructions, 3)
}

func TestTranslate_XRefFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	d := newSampleDocument(t, WithXRefs(func(*ir.Program) (*ir.XRefs, error) { return nil, boom }))

	_, err := d.Translate()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, d.XRefs().Len(), "the previous index stays published")
}

func TestTranslate_PoisonedDocument(t *testing.T) {
	t.Parallel()
	d := newSampleDocument(t)
	require.ErrorIs(t, d.lock.write(func() error { panic("crash") }), ErrLockPoisoned)

	_, err := d.Translate()
	assert.ErrorIs(t, err, ErrLockPoisoned)
	_, err = d.Function(0)
	assert.ErrorIs(t, err, ErrLockPoisoned)
}

// Readers racing a translation must see each function either entirely
// before or entirely after the swap.
func TestTranslate_ConcurrentReadsSeeWholeFunctions(t *testing.T) {
	t.Parallel()
	const size = 50
	p := ir.NewProgram()
	for range 8 {
		p.AddFunction(counterFunction("f", size))
	}
	d := DocumentFromProgram(p, WithOptimizer(identityOptimizer), WithWorkers(4))

	var done atomic.Bool
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				fns, err := d.Functions()
				if !assert.NoError(t, err) {
					return
				}
				for _, f := range fns {
					n := len(f.Blocks[0].Instructions)
					assert.True(t, n == size || n == 0, "partial function with %d instructions", n)
				}
			}
		}()
	}

	_, err := d.Translate()
	done.Store(true)
	wg.Wait()
	require.NoError(t, err)

	fns, err := d.Functions()
	require.NoError(t, err)
	for _, f := range fns {
		assert.Empty(t, f.Blocks[0].Instructions)
	}
}

func TestFixpoint_StopsAtFirstRepeat(t *testing.T) {
	t.Parallel()
	f := counterFunction("f", 2)
	calls := 0
	step := func(g *ir.Function) (*ir.Function, error) {
		calls++
		return dropFirst(g)
	}
	out, n, err := fixpoint(f, step, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
	assert.Empty(t, out.Blocks[0].Instructions)

	_, n, err = fixpoint(counterFunction("g", 9), dropFirst, 3)
	assert.ErrorIs(t, err, ErrFixpointNotReached)
	assert.Equal(t, 3, n)
}

func TestFunctionsEqual_ContentNotIdentity(t *testing.T) {
	t.Parallel()
	a := counterFunction("f", 2)
	b := counterFunction("f", 2)
	assert.True(t, functionsEqual(a, b))

	b.Blocks[0].Instructions[1].Index = 7
	assert.False(t, functionsEqual(a, b))

	c := counterFunction("f", 2)
	c.Blocks[0].Instructions[0].Operation = &ir.Return{}
	assert.False(t, functionsEqual(a, c))

	empty := &ir.Function{Name: "e", Blocks: []*ir.Block{{Index: 0, Instructions: []*ir.Instruction{}}}}
	nilBlock := &ir.Function{Name: "e", Blocks: []*ir.Block{{Index: 0}}}
	assert.True(t, functionsEqual(empty, nilBlock))

	call := func(args []ir.Expression) *ir.Function {
		return &ir.Function{Name: "c", Blocks: []*ir.Block{{Index: 0, Instructions: []*ir.Instruction{
			{Index: 0, Operation: &ir.CallOperation{Call: &ir.Call{
				Target:    &ir.SymbolTarget{Symbol: "free"},
				Arguments: args,
			}}},
		}}}}
	}
	unknown, none := call(nil), call([]ir.Expression{})
	assert.False(t, functionsEqual(unknown, none))
	assert.NotEqual(t, projection.Fingerprint(unknown), projection.Fingerprint(none))
	assert.True(t, functionsEqual(none, call([]ir.Expression{})))
}

func fingerprints(t *testing.T, d *Document) []uint64 {
	t.Helper()
	fns, err := d.Functions()
	require.NoError(t, err)
	out := make([]uint64, len(fns))
	for i, f := range fns {
		out[i] = projection.Fingerprint(f)
	}
	return out
}
