package binscope

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/projection"
)

// Outcome is what happened to one function during Translate.
type Outcome string

const (
	// OutcomeOptimized means the function was replaced by its optimized form.
	OutcomeOptimized Outcome = "optimized"
	// OutcomeSkipped means the optimizer or eliminator failed and the
	// function kept its prior form.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCapped means dead-code elimination hit the iteration cap and
	// the function kept its prior form.
	OutcomeCapped Outcome = "capped"
)

// FunctionOutcome records the result of translating one function.
type FunctionOutcome struct {
	Index      int
	Name       string
	Outcome    Outcome
	Changed    bool
	Iterations int
	Err        error
}

// TranslateSummary reports the per-function outcomes of one Translate run.
type TranslateSummary struct {
	Functions  int
	Optimized  int
	Skipped    int
	Capped     int
	Changed    int
	Iterations int
	Duration   time.Duration
	Outcomes   []FunctionOutcome
}

// Translate optimizes every function, iterates dead-code elimination to a
// fixpoint, replaces the transformed functions by index under one write
// lock, and republishes the xref index.
//
// Per-function failures are recorded in the summary and never fail the
// run. Translate itself fails only when the program cannot be read or
// replaced, or the xref index cannot be rebuilt. Concurrent Translate calls
// on one Document must be serialized by the caller.
func (d *Document) Translate() (*TranslateSummary, error) {
	start := time.Now()

	var originals []*ir.Function
	err := d.ReadProgram(func(p *ir.Program) error {
		originals = p.Functions()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("translate: snapshot: %w", err)
	}
	d.log.Info("translation started", zap.Int("functions", len(originals)))

	outcomes := make([]FunctionOutcome, len(originals))
	replacements := make([]*ir.Function, len(originals))

	var g errgroup.Group
	g.SetLimit(d.settings.workers)
	for i, orig := range originals {
		g.Go(func() error {
			outcomes[i], replacements[i] = d.translateFunction(orig)
			return nil
		})
	}
	_ = g.Wait()

	err = d.lock.write(func() error {
		for i, f := range replacements {
			if f == nil {
				continue
			}
			if err := d.program.ReplaceFunction(outcomes[i].Index, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("translate: replace: %w", err)
	}

	if err := d.refreshXRefs(); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}

	sum := &TranslateSummary{Functions: len(originals), Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Outcome {
		case OutcomeOptimized:
			sum.Optimized++
		case OutcomeSkipped:
			sum.Skipped++
		case OutcomeCapped:
			sum.Capped++
		}
		if o.Changed {
			sum.Changed++
		}
		sum.Iterations += o.Iterations
	}
	sum.Duration = time.Since(start)

	d.log.Info("translation finished",
		zap.Int("functions", sum.Functions),
		zap.Int("optimized", sum.Optimized),
		zap.Int("skipped", sum.Skipped),
		zap.Int("capped", sum.Capped),
		zap.Int("changed", sum.Changed),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// translateFunction runs the optimizer and the elimination fixpoint on a
// copy of orig. It returns the replacement, or nil if orig must be kept.
func (d *Document) translateFunction(orig *ir.Function) (out FunctionOutcome, repl *ir.Function) {
	out = FunctionOutcome{Name: orig.Name, Outcome: OutcomeSkipped}
	if orig.Index != nil {
		out.Index = *orig.Index
	}
	log := d.log.With(zap.String("function", orig.Name), zap.Int("index", out.Index))

	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeSkipped
			out.Err = fmt.Errorf("%w: panic: %v", ErrOptimize, r)
			repl = nil
			log.Warn("function skipped", zap.Error(out.Err))
		}
	}()

	optimized, err := d.settings.optimize(orig.Clone())
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrOptimize, err)
		log.Debug("function skipped", zap.Error(err))
		return out, nil
	}

	final, iterations, err := fixpoint(optimized, d.settings.eliminate, d.settings.fixpointLimit)
	out.Iterations = iterations
	switch {
	case errors.Is(err, ErrFixpointNotReached):
		out.Outcome = OutcomeCapped
		out.Err = err
		log.Warn("dead code elimination did not converge", zap.Int("iterations", iterations))
		return out, nil
	case err != nil:
		out.Err = fmt.Errorf("%w: %w", ErrOptimize, err)
		log.Debug("function skipped", zap.Error(err))
		return out, nil
	}

	out.Outcome = OutcomeOptimized
	out.Changed = projection.Fingerprint(final) != projection.Fingerprint(orig)
	return out, final
}

// fixpoint applies step until the function stops changing: it returns the
// first F(i) with step(F(i)) structurally equal to F(i), along with the
// number of step calls made. It gives up with ErrFixpointNotReached after
// limit calls.
func fixpoint(f *ir.Function, step EliminateFunc, limit int) (*ir.Function, int, error) {
	cur := f
	for i := 1; i <= limit; i++ {
		next, err := step(cur)
		if err != nil {
			return nil, i, err
		}
		if functionsEqual(cur, next) {
			return cur, i, nil
		}
		cur = next
	}
	return nil, limit, fmt.Errorf("%w after %d iterations", ErrFixpointNotReached, limit)
}

// functionsEqual compares two functions by full content: blocks,
// instructions, operands and edges, including indices. Nil and empty are
// alike only for the block, edge and instruction lists; in operands nil
// means unknown.
func functionsEqual(a, b *ir.Function) bool {
	return cmp.Equal(a, b, cmp.FilterPath(isContainerList, cmpopts.EquateEmpty()))
}

func isContainerList(p cmp.Path) bool {
	sf, ok := p.Last().(cmp.StructField)
	if !ok {
		return false
	}
	switch sf.Name() {
	case "Blocks", "Edges", "Instructions":
		return true
	}
	return false
}
