package binscope

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/loader"
)

// Document owns one lifted program and the cross-reference index derived
// from it. The program is guarded by a poisonable readers-writer lock;
// Translate replaces functions wholesale under a single write, so a reader
// always sees either the whole old or the whole new version of a function.
// The xref index is swapped atomically and always describes the program as
// of the most recently completed Translate.
type Document struct {
	loader  loader.Loader
	lock    poisonLock
	program *ir.Program
	xrefs   atomic.Pointer[ir.XRefs]

	settings settings
	log      *zap.Logger
}

// NewDocument lifts data with l and wraps the result. A loader failure is
// reported as ErrLoad and no Document is created.
func NewDocument(ctx context.Context, l loader.Loader, data []byte, opts ...Option) (*Document, error) {
	p, err := l.Load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return newDocument(l, p, opts), nil
}

// DocumentFromProgram wraps an already-lifted program. The Document takes
// ownership of p.
func DocumentFromProgram(p *ir.Program, opts ...Option) *Document {
	return newDocument(nil, p, opts)
}

func newDocument(l loader.Loader, p *ir.Program, opts []Option) *Document {
	s := newSettings(opts)
	d := &Document{
		loader:   l,
		program:  p,
		settings: s,
		log:      s.logger,
	}
	d.xrefs.Store(ir.NewXRefs())
	return d
}

// Loader returns the loader that produced the document, or nil.
func (d *Document) Loader() loader.Loader { return d.loader }

// ReadProgram runs fn with the program under the read lock. fn must not
// retain or mutate the program.
func (d *Document) ReadProgram(fn func(*ir.Program) error) error {
	return d.lock.read(func() error { return fn(d.program) })
}

// Function returns the function at index. The returned function is never
// mutated after publication and may be read without holding the lock.
func (d *Document) Function(index int) (*ir.Function, error) {
	var f *ir.Function
	err := d.ReadProgram(func(p *ir.Program) error {
		var ok bool
		if f, ok = p.Function(index); !ok {
			return fmt.Errorf("function %d: %w", index, ErrNotFound)
		}
		return nil
	})
	return f, err
}

// Functions returns a snapshot of the program's functions in index order.
func (d *Document) Functions() ([]*ir.Function, error) {
	var fns []*ir.Function
	err := d.ReadProgram(func(p *ir.Program) error {
		fns = p.Functions()
		return nil
	})
	return fns, err
}

// XRefs returns the current cross-reference index. It is empty until the
// first Translate completes.
func (d *Document) XRefs() *ir.XRefs { return d.xrefs.Load() }

// ResolveAddress finds the first instruction lifted from addr. It returns
// nil, nil when no instruction matches.
func (d *Document) ResolveAddress(addr uint64) (*Resolution, error) {
	var r *Resolution
	err := d.ReadProgram(func(p *ir.Program) error {
		r = ResolveAddress(p, addr)
		return nil
	})
	return r, err
}

// FindCalls returns every call site whose target is exactly symbol.
func (d *Document) FindCalls(symbol string) ([]ir.ProgramLocation, error) {
	var locs []ir.ProgramLocation
	err := d.ReadProgram(func(p *ir.Program) error {
		locs = FindCalls(p, symbol)
		return nil
	})
	return locs, err
}

// refreshXRefs recomputes the index from the current program and publishes
// it.
func (d *Document) refreshXRefs() error {
	var x *ir.XRefs
	err := d.ReadProgram(func(p *ir.Program) error {
		var err error
		x, err = d.settings.xrefs(p)
		return err
	})
	if err != nil {
		return fmt.Errorf("compute xrefs: %w", err)
	}
	d.xrefs.Store(x)
	return nil
}
