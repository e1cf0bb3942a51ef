package binscope

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/jward/binscope/internal/analysis"
	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/loader"
)

// DefaultFixpointLimit caps dead-code elimination iterations per function.
const DefaultFixpointLimit = 64

// OptimizeFunc rewrites one function. It must not mutate its input.
type OptimizeFunc func(*ir.Function) (*ir.Function, error)

// EliminateFunc runs one dead-code elimination pass. It must not mutate its
// input.
type EliminateFunc func(*ir.Function) (*ir.Function, error)

// XRefsFunc builds a complete cross-reference index for a program.
type XRefsFunc func(*ir.Program) (*ir.XRefs, error)

// Option configures a Document or a Service.
type Option func(*settings)

type settings struct {
	logger        *zap.Logger
	workers       int
	fixpointLimit int
	optimize      OptimizeFunc
	eliminate     EliminateFunc
	xrefs         XRefsFunc
	loader        loader.Loader
	archive       *archive.Archive
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:        zap.NewNop(),
		workers:       runtime.NumCPU(),
		fixpointLimit: DefaultFixpointLimit,
		optimize:      analysis.Optimize,
		eliminate:     analysis.EliminateDeadCode,
		xrefs: func(p *ir.Program) (*ir.XRefs, error) {
			return analysis.ComputeXRefs(p), nil
		},
		loader: loader.JSONLoader{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers bounds how many functions are optimized concurrently.
// Values below one are ignored.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFixpointLimit caps dead-code elimination iterations per function.
// Values below one are ignored.
func WithFixpointLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.fixpointLimit = n
		}
	}
}

// WithOptimizer replaces the per-function optimizer.
func WithOptimizer(fn OptimizeFunc) Option {
	return func(s *settings) { s.optimize = fn }
}

// WithEliminator replaces the dead-code elimination pass.
func WithEliminator(fn EliminateFunc) Option {
	return func(s *settings) { s.eliminate = fn }
}

// WithXRefs replaces the cross-reference extractor.
func WithXRefs(fn XRefsFunc) Option {
	return func(s *settings) { s.xrefs = fn }
}

// WithLoader sets the loader a Service uses for new documents.
func WithLoader(l loader.Loader) Option {
	return func(s *settings) { s.loader = l }
}

// WithArchive makes a Service persist documents and translation summaries.
func WithArchive(a *archive.Archive) Option {
	return func(s *settings) { s.archive = a }
}
