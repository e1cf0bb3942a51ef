package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/binscope/internal/runtime"
	"github.com/jward/binscope/scripts"
)

var (
	flagScriptsDir string
	flagInputs     []string
	flagSet        map[string]string
)

var scriptCmd = &cobra.Command{
	Use:   "script <file>",
	Short: "Run a Risor analysis script",
	Long: `Runs a Risor script with the document query globals bound.

Without --input the queries go to the server at --server. With --input, each
file is loaded into an in-process service under its base name (without
extension) and the server is not contacted.

Scripts are looked up in --scripts-dir, then on disk, then among the
bundled scripts (calls_to_symbol.risor, function_summary.risor). Values the
script passes to emit() are printed as the command's results.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts and imports from this directory")
	scriptCmd.Flags().StringSliceVar(&flagInputs, "input", nil, "load a document file locally instead of querying the server (repeatable)")
	scriptCmd.Flags().StringToStringVar(&flagSet, "set", nil, "string global for the script, e.g. --set symbol=memcpy (repeatable)")
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	queries, err := scriptQueries(ctx)
	if err != nil {
		return outputError("script", err)
	}

	var emitted []any
	opts := []runtime.RuntimeOption{
		runtime.WithRuntimeLogger(logger),
		runtime.WithEmitter(func(v any) { emitted = append(emitted, v) }),
	}

	path := args[0]
	dir := flagScriptsDir
	switch {
	case dir != "":
	case fileExists(path):
		dir = filepath.Dir(path)
		path = filepath.Base(path)
	default:
		opts = append(opts, runtime.WithRuntimeFS(scripts.FS))
	}

	globals := make(map[string]any, len(flagSet))
	for k, v := range flagSet {
		globals[k] = v
	}

	rt := runtime.NewRuntime(queries, dir, opts...)
	if err := rt.RunScript(ctx, path, globals); err != nil {
		return outputError("script", err)
	}
	if emitted == nil {
		emitted = []any{}
	}
	return outputResult(CLIResult{Command: "script", Results: emitted})
}

// scriptQueries returns the rpc client, or a local service holding the
// --input documents.
func scriptQueries(ctx context.Context) (runtime.Queries, error) {
	if len(flagInputs) == 0 {
		return newClient(), nil
	}
	// Local runs never persist.
	local := *cfg
	local.Archive = ""
	svc, _, err := newService(&local)
	if err != nil {
		return nil, err
	}
	for _, in := range flagInputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", in, err)
		}
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		if _, err := svc.CreateDocument(ctx, name, data); err != nil {
			return nil, fmt.Errorf("loading %s: %w", in, err)
		}
	}
	return svc, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
