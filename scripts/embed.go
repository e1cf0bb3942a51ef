// Package scripts holds the Risor analysis scripts shipped with binscope.
//
// Scripts read their inputs from globals set by the caller (document,
// symbol) and report rows with emit().
package scripts

import "embed"

// FS contains every bundled .risor script.
//
//go:embed *.risor
var FS embed.FS
