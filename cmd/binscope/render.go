package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jward/binscope/internal/projection"
)

// Helpers for reading projected trees decoded by the rpc client.

func nodeUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := strconv.ParseUint(string(x), 10, 64)
		return n, err == nil
	case float64:
		return uint64(x), x >= 0
	case int:
		return uint64(x), x >= 0
	case uint64:
		return x, true
	}
	return 0, false
}

func nodeInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(string(x))
		return n, err == nil
	case float64:
		return int(x), true
	case int:
		return x, true
	}
	return 0, false
}

func nodeMap(v any) projection.Node {
	m, _ := v.(map[string]any)
	return m
}

func nodeList(v any) []any {
	l, _ := v.([]any)
	return l
}

func nodeString(v any) string {
	s, _ := v.(string)
	return s
}

// xrefEdges flattens a projected xref index into from/to pairs sorted by
// source then target address.
func xrefEdges(node projection.Node) []CLIXRef {
	out := []CLIXRef{}
	for key, targets := range nodeMap(node["from_to"]) {
		from, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		for _, t := range nodeList(targets) {
			if to, ok := nodeUint(t); ok {
				out = append(out, CLIXRef{From: from, To: to})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// callSites converts projected program locations into CLICalls.
func callSites(symbol string, locs []projection.Node) []CLICall {
	out := make([]CLICall, 0, len(locs))
	for _, l := range locs {
		fl := nodeMap(l["function-location"])
		fi, _ := nodeInt(l["function-index"])
		bi, _ := nodeInt(fl["block-index"])
		ii, _ := nodeInt(fl["instruction-index"])
		out = append(out, CLICall{FunctionIndex: fi, BlockIndex: bi, InstructionIndex: ii, Symbol: symbol})
	}
	return out
}

var binarySymbols = map[string]string{
	"add": "+", "sub": "-", "mul": "*", "divu": "/u", "divs": "/s",
	"modu": "%u", "mods": "%s", "and": "&", "or": "|", "xor": "^",
	"shl": "<<", "shr": ">>", "cmpeq": "==", "cmpneq": "!=",
	"cmpltu": "<u", "cmplts": "<s",
}

// renderExpression prints an expression node in infix form.
func renderExpression(v any) string {
	n := nodeMap(v)
	if n == nil {
		return "?"
	}
	if op := nodeString(n["op"]); op != "" {
		switch op {
		case "ite":
			return fmt.Sprintf("ite(%s, %s, %s)", renderExpression(n["cond"]), renderExpression(n["then"]), renderExpression(n["else"]))
		case "trun", "zext", "sext":
			bits, _ := nodeInt(n["bits"])
			return fmt.Sprintf("%s.%d(%s)", op, bits, renderExpression(n["rhs"]))
		}
		sym, ok := binarySymbols[op]
		if !ok {
			sym = op
		}
		return fmt.Sprintf("(%s %s %s)", renderExpression(n["lhs"]), sym, renderExpression(n["rhs"]))
	}

	bits, _ := nodeInt(n["bits"])
	switch nodeString(n["type"]) {
	case "scalar":
		return fmt.Sprintf("%s:%d", nodeString(n["name"]), bits)
	case "stack_variable":
		off, _ := nodeInt(n["offset"])
		return fmt.Sprintf("stack[%d]:%d", off, bits)
	case "constant":
		return fmt.Sprintf("%s:%d", nodeString(n["value"]), bits)
	case "dereference":
		return "[" + renderExpression(n["expression"]) + "]"
	case "reference":
		return "&" + renderExpression(n["expression"])
	}
	return "?"
}

func renderExpressions(v any) string {
	items := nodeList(v)
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = renderExpression(e)
	}
	return strings.Join(parts, ", ")
}

func renderCallTarget(v any) string {
	t := nodeMap(v)
	switch nodeString(t["type"]) {
	case "symbol":
		return nodeString(t["symbol"])
	case "function_id":
		id, _ := nodeInt(t["function_id"])
		return fmt.Sprintf("function#%d", id)
	case "expression":
		return renderExpression(t["expression"])
	}
	return "?"
}

// renderOperation prints an operation node as one line.
func renderOperation(v any) string {
	op := nodeMap(v)
	switch tag := nodeString(op["operation"]); tag {
	case "assign":
		return fmt.Sprintf("%s = %s", renderExpression(op["dst"]), renderExpression(op["src"]))
	case "store":
		return fmt.Sprintf("[%s] = %s", renderExpression(op["index"]), renderExpression(op["src"]))
	case "load":
		return fmt.Sprintf("%s = [%s]", renderExpression(op["dst"]), renderExpression(op["index"]))
	case "branch":
		return "branch " + renderExpression(op["target"])
	case "call":
		call := nodeMap(op["call"])
		return fmt.Sprintf("call %s(%s)", renderCallTarget(call["target"]), renderExpressions(call["arguments"]))
	case "intrinsic":
		in := nodeMap(op["intrinsic"])
		return fmt.Sprintf("intrinsic %s", nodeString(in["instruction_str"]))
	case "return":
		if op["result"] == nil {
			return "return"
		}
		return "return " + renderExpression(op["result"])
	default:
		return tag
	}
}

// renderInstruction prints "index address operation".
func renderInstruction(v any) string {
	ins := nodeMap(v)
	idx, _ := nodeInt(ins["index"])
	addr := "          "
	if a, ok := nodeUint(ins["address"]); ok {
		addr = fmt.Sprintf("%#010x", a)
	}
	line := fmt.Sprintf("%4d  %s  %s", idx, addr, renderOperation(ins["operation"]))
	if c := nodeString(ins["comment"]); c != "" {
		line += "  ; " + c
	}
	return line
}
