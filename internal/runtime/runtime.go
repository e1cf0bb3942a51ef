// Package runtime embeds a Risor VM and exposes document queries to
// analysis scripts.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/projection"
)

// Queries is the read side of a binscope.Service that scripts can call.
type Queries interface {
	ListDocuments() ([]string, error)
	ListFunctions(name string) ([]binscope.FunctionInfo, error)
	FunctionName(name string, index int) (string, error)
	FunctionIR(name string, index int) (projection.Node, error)
	XRefs(name string) (projection.Node, error)
	ResolveAddress(name string, addr uint64) (projection.Node, error)
	FindCallsToSymbol(name, symbol string) ([]projection.Node, error)
}

// Runtime runs Risor scripts with query host functions bound to a
// Queries implementation.
type Runtime struct {
	queries    Queries
	scriptsDir string
	fsys       fs.FS
	log        *zap.Logger
	emit       func(any)
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithEmitter receives every value a script passes to emit(), converted to
// Go values.
func WithEmitter(fn func(any)) RuntimeOption {
	return func(r *Runtime) {
		r.emit = fn
	}
}

// NewRuntime creates a Runtime wired to q and the given scripts directory.
// q may be nil, in which case only log and the caller's extra globals are
// available.
func NewRuntime(q Queries, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		queries:    q,
		scriptsDir: scriptsDir,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script
// source, or nil if neither an fs.FS nor a scripts directory is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. When an fs.FS
// is configured the path is resolved inside it; otherwise relative paths
// are resolved against the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"log":  mustProxy(&logObject{log: r.log.With(zap.String("script", label))}),
		"emit": makeEmitFn(r.emit),
	}
	if r.queries != nil {
		globals["documents"] = makeDocumentsFn(r.queries)
		globals["functions"] = makeFunctionsFn(r.queries)
		globals["function_name"] = makeFunctionNameFn(r.queries)
		globals["function_ir"] = makeFunctionIRFn(r.queries)
		globals["xrefs"] = makeXRefsFn(r.queries)
		globals["instruction_at"] = makeInstructionAtFn(r.queries)
		globals["calls_to_symbol"] = makeCallsToSymbolFn(r.queries)
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	log *zap.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }
