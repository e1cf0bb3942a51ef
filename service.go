package binscope

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/projection"
)

// Service answers remote queries by composing the Store, Documents and the
// projection layer. It holds no global state; create one per server.
type Service struct {
	store    *Store
	settings settings
	opts     []Option
	log      *zap.Logger
}

// NewService returns a Service with an empty Store. The options also
// configure every Document the Service creates.
func NewService(opts ...Option) *Service {
	s := newSettings(opts)
	return &Service{
		store:    NewStore(),
		settings: s,
		opts:     opts,
		log:      s.logger,
	}
}

// Store returns the Service's document registry.
func (s *Service) Store() *Store { return s.store }

// FunctionInfo is one entry of a document's function listing.
type FunctionInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ListDocuments returns the registered document names in sorted order.
func (s *Service) ListDocuments() ([]string, error) {
	return s.store.List()
}

// CreateDocument loads data, translates it, archives it when an archive is
// configured, and registers it under name, replacing any previous document
// with that name.
func (s *Service) CreateDocument(ctx context.Context, name string, data []byte) (*TranslateSummary, error) {
	log := s.log.With(zap.String("document", name))

	d, err := NewDocument(ctx, s.settings.loader, data, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("create document %q: %w", name, err)
	}
	sum, err := d.Translate()
	if err != nil {
		return nil, fmt.Errorf("create document %q: %w", name, err)
	}

	if a := s.settings.archive; a != nil {
		if err := a.SaveDocument(&archive.Document{Name: name, Bytes: data}); err != nil {
			return nil, fmt.Errorf("create document %q: %w", name, err)
		}
		if _, err := a.RecordTranslation(translationRecord(name, sum)); err != nil {
			return nil, fmt.Errorf("create document %q: %w", name, err)
		}
	}

	if err := s.store.Add(name, d); err != nil {
		return nil, err
	}
	log.Info("document added", zap.Int("functions", sum.Functions))
	return sum, nil
}

func translationRecord(name string, sum *TranslateSummary) *archive.Translation {
	return &archive.Translation{
		Document:   name,
		Functions:  sum.Functions,
		Optimized:  sum.Optimized,
		Skipped:    sum.Skipped,
		Capped:     sum.Capped,
		Changed:    sum.Changed,
		Iterations: sum.Iterations,
		Duration:   sum.Duration,
	}
}

// ListFunctions returns the index and name of every function in a document.
func (s *Service) ListFunctions(name string) ([]FunctionInfo, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	fns, err := d.Functions()
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", name, err)
	}
	out := make([]FunctionInfo, 0, len(fns))
	for _, f := range fns {
		out = append(out, FunctionInfo{Index: *f.Index, Name: f.Name})
	}
	return out, nil
}

// XRefs returns a document's projected cross-reference index.
func (s *Service) XRefs(name string) (projection.Node, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	return projection.XRefs(d.XRefs()), nil
}

// FunctionName returns the name of one function.
func (s *Service) FunctionName(name string, index int) (string, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return "", err
	}
	f, err := d.Function(index)
	if err != nil {
		return "", fmt.Errorf("document %q: %w", name, err)
	}
	return f.Name, nil
}

// FunctionIR returns the projected IR of one function.
func (s *Service) FunctionIR(name string, index int) (projection.Node, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	f, err := d.Function(index)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", name, err)
	}
	return projection.Function(f), nil
}

// ResolveAddress returns the projected location of the instruction lifted
// from addr, or nil when no instruction matches.
func (s *Service) ResolveAddress(name string, addr uint64) (projection.Node, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	r, err := d.ResolveAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", name, err)
	}
	return r.Project(), nil
}

// FindCallsToSymbol returns the projected location of every call to symbol.
func (s *Service) FindCallsToSymbol(name, symbol string) ([]projection.Node, error) {
	d, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	locs, err := d.FindCalls(symbol)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", name, err)
	}
	out := make([]projection.Node, 0, len(locs))
	for _, l := range locs {
		out = append(out, projection.ProgramLocation(l))
	}
	return out, nil
}

// Translations returns the archived translation history of a document.
func (s *Service) Translations(name string) ([]*archive.Translation, error) {
	a := s.settings.archive
	if a == nil {
		return nil, fmt.Errorf("translations for %q: no archive configured: %w", name, ErrNotFound)
	}
	return a.Translations(name)
}

// Restore loads and translates every archived document into the Store. A
// document that fails to load is logged and skipped. It returns the number
// of documents restored.
func (s *Service) Restore(ctx context.Context) (int, error) {
	a := s.settings.archive
	if a == nil {
		return 0, nil
	}
	docs, err := a.Documents()
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	n := 0
	for _, ad := range docs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		log := s.log.With(zap.String("document", ad.Name))
		d, err := NewDocument(ctx, s.settings.loader, ad.Bytes, s.opts...)
		if err != nil {
			log.Warn("restore skipped", zap.Error(err))
			continue
		}
		if _, err := d.Translate(); err != nil {
			log.Warn("restore skipped", zap.Error(err))
			continue
		}
		if err := s.store.Add(ad.Name, d); err != nil {
			return n, fmt.Errorf("restore: %w", err)
		}
		n++
	}
	s.log.Info("documents restored", zap.Int("count", n))
	return n, nil
}
