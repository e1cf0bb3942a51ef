package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/binscope/internal/rpc"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a running server",
	Long:  "Run queries against documents held by a binscope server (see --server). Addresses accept decimal or 0x-prefixed hex.",
}

func init() {
	queryCmd.AddCommand(documentsCmd)
	queryCmd.AddCommand(uploadCmd)
	queryCmd.AddCommand(functionsCmd)
	queryCmd.AddCommand(xrefsCmd)
	queryCmd.AddCommand(functionNameCmd)
	queryCmd.AddCommand(functionIRCmd)
	queryCmd.AddCommand(instructionAtCmd)
	queryCmd.AddCommand(callsToSymbolCmd)
	queryCmd.AddCommand(translationsCmd)
}

// --- Helpers ---

func newClient() *rpc.Client {
	return rpc.NewClient(cfg.Server)
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// parseAddressArg accepts decimal, 0x hex, 0o octal or 0b binary.
func parseAddressArg(value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", value, err)
	}
	return n, nil
}

// --- Commands ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := newClient().ListDocuments()
		if err != nil {
			return outputError("documents", err)
		}
		return outputResult(CLIResult{Command: "documents", Results: docs})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <name> <file>",
	Short: "Upload a document",
	Long:  "Uploads the file's bytes as a new document, replacing any document of the same name. The server loads and translates it before answering.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return outputError("upload", fmt.Errorf("reading %s: %w", args[1], err))
		}
		msg, err := newClient().CreateDocument(context.Background(), args[0], data)
		if err != nil {
			return outputError("upload", err)
		}
		return outputResult(CLIResult{Command: "upload", Results: msg})
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions <document>",
	Short: "List a document's functions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fns, err := newClient().ListFunctions(args[0])
		if err != nil {
			return outputError("functions", err)
		}
		return outputResult(CLIResult{Command: "functions", Results: fns})
	},
}

var xrefsCmd = &cobra.Command{
	Use:   "xrefs <document>",
	Short: "List a document's cross-references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := newClient().XRefs(args[0])
		if err != nil {
			return outputError("xrefs", err)
		}
		return outputResult(CLIResult{Command: "xrefs", Results: xrefEdges(node)})
	},
}

var functionNameCmd = &cobra.Command{
	Use:   "function-name <document> <index>",
	Short: "Print a function's name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIntArg(args[1], "index")
		if err != nil {
			return outputError("function-name", err)
		}
		name, err := newClient().FunctionName(args[0], idx)
		if err != nil {
			return outputError("function-name", err)
		}
		return outputResult(CLIResult{Command: "function-name", Results: name})
	},
}

var functionIRCmd = &cobra.Command{
	Use:   "function-ir <document> <index>",
	Short: "Print a function's IR",
	Long:  "Prints the function in the wire grammar (--format json) or as a block listing (--format text).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIntArg(args[1], "index")
		if err != nil {
			return outputError("function-ir", err)
		}
		fn, err := newClient().FunctionIR(args[0], idx)
		if err != nil {
			return outputError("function-ir", err)
		}
		return outputResult(CLIResult{Command: "function-ir", Results: fn})
	},
}

var instructionAtCmd = &cobra.Command{
	Use:   "instruction-at <document> <address>",
	Short: "Find the instruction lifted from an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddressArg(args[1])
		if err != nil {
			return outputError("instruction-at", err)
		}
		loc, err := newClient().ResolveAddress(args[0], addr)
		if err != nil {
			return outputError("instruction-at", err)
		}
		return outputResult(CLIResult{Command: "instruction-at", Results: loc})
	},
}

var callsToSymbolCmd = &cobra.Command{
	Use:   "calls-to-symbol <document> <symbol>",
	Short: "List calls to a symbol",
	Long:  "Lists every call whose target is exactly the given symbol (case-sensitive).",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		locs, err := newClient().FindCallsToSymbol(args[0], args[1])
		if err != nil {
			return outputError("calls-to-symbol", err)
		}
		return outputResult(CLIResult{Command: "calls-to-symbol", Results: callSites(args[1], locs)})
	},
}

var translationsCmd = &cobra.Command{
	Use:   "translations <document>",
	Short: "List a document's archived translation summaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := newClient().Translations(context.Background(), args[0])
		if err != nil {
			return outputError("translations", err)
		}
		return outputResult(CLIResult{Command: "translations", Results: ts})
	},
}
