package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/projection"
)

// formatStringsText prints one string per line.
func formatStringsText(w io.Writer, items []string) {
	for _, s := range items {
		fmt.Fprintln(w, s)
	}
}

// formatFunctionsText formats function listings as aligned columns.
func formatFunctionsText(w io.Writer, fns []binscope.FunctionInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME")
	for _, f := range fns {
		fmt.Fprintf(tw, "%d\t%s\n", f.Index, f.Name)
	}
	tw.Flush()
}

// formatXRefsText formats cross-references as hex address pairs.
func formatXRefsText(w io.Writer, refs []CLIXRef) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO")
	for _, r := range refs {
		fmt.Fprintf(tw, "%#x\t%#x\n", r.From, r.To)
	}
	tw.Flush()
}

// formatCallsText formats call sites as aligned columns.
func formatCallsText(w io.Writer, calls []CLICall) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tBLOCK\tINSTRUCTION\tSYMBOL")
	for _, c := range calls {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", c.FunctionIndex, c.BlockIndex, c.InstructionIndex, c.Symbol)
	}
	tw.Flush()
}

// formatTranslationsText formats archived translation summaries.
func formatTranslationsText(w io.Writer, ts []*archive.Translation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPLETED\tFUNCTIONS\tOPTIMIZED\tSKIPPED\tCAPPED\tCHANGED\tDURATION")
	for _, t := range ts {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			t.ID, t.CompletedAt.Format(time.RFC3339), t.Functions, t.Optimized,
			t.Skipped, t.Capped, t.Changed, t.Duration.Round(time.Microsecond))
	}
	tw.Flush()
}

// formatFunctionText prints a projected function as a block listing.
func formatFunctionText(w io.Writer, fn projection.Node) {
	addr, _ := nodeUint(fn["address"])
	fmt.Fprintf(w, "function %s @ %#x\n", nodeString(fn["name"]), addr)
	for _, b := range nodeList(fn["blocks"]) {
		block := nodeMap(b)
		idx, _ := nodeInt(block["index"])
		fmt.Fprintf(w, "block %d:\n", idx)
		for _, ins := range nodeList(block["instructions"]) {
			fmt.Fprintf(w, "  %s\n", renderInstruction(ins))
		}
	}
	edges := nodeList(fn["edges"])
	if len(edges) > 0 {
		fmt.Fprintln(w, "edges:")
	}
	for _, e := range edges {
		edge := nodeMap(e)
		head, _ := nodeInt(edge["head"])
		tail, _ := nodeInt(edge["tail"])
		line := fmt.Sprintf("  %d -> %d", head, tail)
		if edge["condition"] != nil {
			line += " if " + renderExpression(edge["condition"])
		}
		if c := nodeString(edge["comment"]); c != "" {
			line += "  ; " + c
		}
		fmt.Fprintln(w, line)
	}
}

// formatResolutionText prints where an address resolved to.
func formatResolutionText(w io.Writer, r projection.Node) {
	fi, _ := nodeInt(r["function-index"])
	bi, _ := nodeInt(r["block-index"])
	fmt.Fprintf(w, "%s (#%d) block %d\n", nodeString(r["function-name"]), fi, bi)
	fmt.Fprintf(w, "  %s\n", renderInstruction(r["instruction"]))
}

// formatValuesText prints script output, one value per line. Composite
// values are printed as compact JSON.
func formatValuesText(w io.Writer, values []any) {
	for _, v := range values {
		switch v.(type) {
		case string, int64, float64, bool, nil:
			fmt.Fprintln(w, v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				fmt.Fprintf(w, "%v\n", v)
				continue
			}
			fmt.Fprintln(w, string(b))
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []string:
		formatStringsText(w, v)
	case string:
		fmt.Fprintln(w, v)
	case []binscope.FunctionInfo:
		formatFunctionsText(w, v)
	case []CLIXRef:
		formatXRefsText(w, v)
	case []CLICall:
		formatCallsText(w, v)
	case []*archive.Translation:
		formatTranslationsText(w, v)
	case projection.Node:
		if v == nil {
			return nil
		}
		if _, ok := v["blocks"]; ok {
			formatFunctionText(w, v)
		} else {
			formatResolutionText(w, v)
		}
	case []any:
		formatValuesText(w, v)
	case nil:
		// No output for nil results (e.g., instruction-at with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
