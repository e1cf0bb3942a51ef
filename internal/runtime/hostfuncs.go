package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/risor-io/risor/object"

	"github.com/jward/binscope/internal/projection"
)

// makeDocumentsFn creates the "documents" host function.
//
// documents() → list of document names
func makeDocumentsFn(q Queries) *object.Builtin {
	return object.NewBuiltin("documents", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("documents", 0, len(args))
		}
		names, err := q.ListDocuments()
		if err != nil {
			return object.Errorf("documents: %v", err)
		}
		items := make([]object.Object, len(names))
		for i, n := range names {
			items[i] = object.NewString(n)
		}
		return object.NewList(items)
	})
}

// makeFunctionsFn creates the "functions" host function.
//
// functions(doc) → list of {index, name}
func makeFunctionsFn(q Queries) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("functions", 1, len(args))
		}
		doc, errObj := stringArg("functions", "document", args[0])
		if errObj != nil {
			return errObj
		}
		fns, err := q.ListFunctions(doc)
		if err != nil {
			return object.Errorf("functions: %v", err)
		}
		items := make([]object.Object, len(fns))
		for i, f := range fns {
			items[i] = object.NewMap(map[string]object.Object{
				"index": object.NewInt(int64(f.Index)),
				"name":  object.NewString(f.Name),
			})
		}
		return object.NewList(items)
	})
}

// makeFunctionNameFn creates the "function_name" host function.
//
// function_name(doc, index) → string
func makeFunctionNameFn(q Queries) *object.Builtin {
	return object.NewBuiltin("function_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("function_name", 2, len(args))
		}
		doc, errObj := stringArg("function_name", "document", args[0])
		if errObj != nil {
			return errObj
		}
		idx, errObj := intArg("function_name", "index", args[1])
		if errObj != nil {
			return errObj
		}
		name, err := q.FunctionName(doc, int(idx))
		if err != nil {
			return object.Errorf("function_name: %v", err)
		}
		return object.NewString(name)
	})
}

// makeFunctionIRFn creates the "function_ir" host function.
//
// function_ir(doc, index) → projected function map
func makeFunctionIRFn(q Queries) *object.Builtin {
	return object.NewBuiltin("function_ir", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("function_ir", 2, len(args))
		}
		doc, errObj := stringArg("function_ir", "document", args[0])
		if errObj != nil {
			return errObj
		}
		idx, errObj := intArg("function_ir", "index", args[1])
		if errObj != nil {
			return errObj
		}
		node, err := q.FunctionIR(doc, int(idx))
		if err != nil {
			return object.Errorf("function_ir: %v", err)
		}
		return toObject(node)
	})
}

// makeXRefsFn creates the "xrefs" host function.
//
// xrefs(doc) → {from_to, to_from}
func makeXRefsFn(q Queries) *object.Builtin {
	return object.NewBuiltin("xrefs", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("xrefs", 1, len(args))
		}
		doc, errObj := stringArg("xrefs", "document", args[0])
		if errObj != nil {
			return errObj
		}
		node, err := q.XRefs(doc)
		if err != nil {
			return object.Errorf("xrefs: %v", err)
		}
		return toObject(node)
	})
}

// makeInstructionAtFn creates the "instruction_at" host function.
//
// instruction_at(doc, address) → location map, or nil
func makeInstructionAtFn(q Queries) *object.Builtin {
	return object.NewBuiltin("instruction_at", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("instruction_at", 2, len(args))
		}
		doc, errObj := stringArg("instruction_at", "document", args[0])
		if errObj != nil {
			return errObj
		}
		addr, errObj := intArg("instruction_at", "address", args[1])
		if errObj != nil {
			return errObj
		}
		if addr < 0 {
			return object.Errorf("instruction_at: address must be non-negative, got %d", addr)
		}
		node, err := q.ResolveAddress(doc, uint64(addr))
		if err != nil {
			return object.Errorf("instruction_at: %v", err)
		}
		if node == nil {
			return object.Nil
		}
		return toObject(node)
	})
}

// makeCallsToSymbolFn creates the "calls_to_symbol" host function.
//
// calls_to_symbol(doc, symbol) → list of program locations
func makeCallsToSymbolFn(q Queries) *object.Builtin {
	return object.NewBuiltin("calls_to_symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("calls_to_symbol", 2, len(args))
		}
		doc, errObj := stringArg("calls_to_symbol", "document", args[0])
		if errObj != nil {
			return errObj
		}
		sym, errObj := stringArg("calls_to_symbol", "symbol", args[1])
		if errObj != nil {
			return errObj
		}
		locs, err := q.FindCallsToSymbol(doc, sym)
		if err != nil {
			return object.Errorf("calls_to_symbol: %v", err)
		}
		items := make([]object.Object, len(locs))
		for i, l := range locs {
			items[i] = toObject(l)
		}
		return object.NewList(items)
	})
}

// makeEmitFn creates the "emit" host function. Scripts report results
// through it; values without a receiver are dropped.
//
// emit(value) → nil
func makeEmitFn(fn func(any)) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		if fn != nil {
			fn(args[0].Interface())
		}
		return object.Nil
	})
}

func stringArg(fn, what string, arg object.Object) (string, object.Object) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

func intArg(fn, what string, arg object.Object) (int64, object.Object) {
	switch v := arg.(type) {
	case *object.Int:
		return v.Value(), nil
	case *object.Float:
		return int64(v.Value()), nil
	}
	return 0, object.Errorf("%s: %s must be an int, got %s", fn, what, arg.Type())
}

// toObject converts a projected tree into Risor objects. Trees decoded by
// the rpc client carry json.Number leaves. Addresses above the int64 range
// wrap.
func toObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(x)
	case bool:
		return object.NewBool(x)
	case int:
		return object.NewInt(int64(x))
	case int64:
		return object.NewInt(x)
	case uint64:
		return object.NewInt(int64(x))
	case float64:
		return object.NewFloat(x)
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return object.NewInt(n)
		}
		if n, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return object.NewInt(int64(n))
		}
		f, _ := x.Float64()
		return object.NewFloat(f)
	case projection.Node:
		if x == nil {
			return object.Nil
		}
		m := make(map[string]object.Object, len(x))
		for k, val := range x {
			m[k] = toObject(val)
		}
		return object.NewMap(m)
	case []any:
		items := make([]object.Object, len(x))
		for i, val := range x {
			items[i] = toObject(val)
		}
		return object.NewList(items)
	}
	panic(fmt.Sprintf("runtime: cannot convert %T", v))
}
