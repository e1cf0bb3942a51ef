package main

// CLIResult is the top-level JSON envelope for all query and script
// commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIXRef is one cross-reference edge.
type CLIXRef struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// CLICall is one call site found by calls-to-symbol.
type CLICall struct {
	FunctionIndex    int    `json:"function_index"`
	BlockIndex       int    `json:"block_index"`
	InstructionIndex int    `json:"instruction_index"`
	Symbol           string `json:"symbol"`
}
