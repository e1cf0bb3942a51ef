package scripts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/runtime"
	"github.com/jward/binscope/scripts"
)

type testEnv struct {
	rt   *runtime.Runtime
	rows []map[string]any
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "testdata", "sample.json"))
	require.NoError(t, err)

	svc := binscope.NewService()
	_, err = svc.CreateDocument(context.Background(), "sample", data)
	require.NoError(t, err)

	env := &testEnv{}
	env.rt = runtime.NewRuntime(svc, "",
		runtime.WithRuntimeFS(scripts.FS),
		runtime.WithEmitter(func(v any) {
			row, ok := v.(map[string]any)
			require.True(t, ok, "expected map row, got %T", v)
			env.rows = append(env.rows, row)
		}),
	)
	return env
}

func TestCallsToSymbol(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.rt.RunScript(context.Background(), "calls_to_symbol.risor", map[string]any{
		"document": "sample",
		"symbol":   "memcpy",
	})
	require.NoError(t, err)

	require.Len(t, env.rows, 2)
	assert.Equal(t, "main", env.rows[0]["function"])
	assert.EqualValues(t, 0x1008, env.rows[0]["address"])
	assert.EqualValues(t, 2, env.rows[0]["instruction-index"])
	assert.Equal(t, "helper", env.rows[1]["function"])
	assert.EqualValues(t, 0x2000, env.rows[1]["address"])
}

func TestCallsToSymbol_NoMatches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	err := env.rt.RunScript(context.Background(), "calls_to_symbol.risor", map[string]any{
		"document": "sample",
		"symbol":   "strcpy",
	})
	require.NoError(t, err)
	assert.Empty(t, env.rows)
}

func TestFunctionSummary(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	err := env.rt.RunScript(context.Background(), "function_summary.risor", map[string]any{
		"document": "sample",
	})
	require.NoError(t, err)

	require.Len(t, env.rows, 3)
	main := env.rows[0]
	assert.Equal(t, "main", main["name"])
	assert.EqualValues(t, 2, main["blocks"])
	assert.EqualValues(t, 1, main["edges"])
	assert.EqualValues(t, 4, main["instructions"])
	assert.EqualValues(t, 2, main["calls"])

	helper := env.rows[1]
	assert.EqualValues(t, 2, helper["calls"])
	assert.EqualValues(t, 0x2000, helper["address"])
}
