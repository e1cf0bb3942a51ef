// Package loader turns raw document bytes into an initial program.
//
// Lifting machine code is out of scope: native executables are recognized
// by their magic numbers and rejected with ErrUnsupportedFormat. Programs
// that were lifted elsewhere are accepted as JSON in the projection grammar:
//
//	{"functions": [Function, ...]}
//
// Function indices in the input are ignored; the program assigns its own in
// input order.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jward/binscope/internal/ir"
	"github.com/jward/binscope/internal/projection"
)

// ErrUnsupportedFormat is returned for inputs no loader understands.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Loader lifts raw bytes into a program.
type Loader interface {
	Load(ctx context.Context, data []byte) (*ir.Program, error)
}

// Format names a recognized input format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatELF    Format = "elf"
	FormatPE     Format = "pe"
	FormatMachO  Format = "macho"
	FormatEmpty  Format = "empty"
	FormatBinary Format = "binary"
)

var magics = []struct {
	prefix []byte
	format Format
}{
	{[]byte("\x7fELF"), FormatELF},
	{[]byte("MZ"), FormatPE},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, FormatMachO},
	{[]byte{0xfe, 0xed, 0xfa, 0xcf}, FormatMachO},
	{[]byte{0xce, 0xfa, 0xed, 0xfe}, FormatMachO},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, FormatMachO},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, FormatMachO},
}

// Detect classifies data by its leading bytes.
func Detect(data []byte) Format {
	if len(data) == 0 {
		return FormatEmpty
	}
	for _, m := range magics {
		if bytes.HasPrefix(data, m.prefix) {
			return m.format
		}
	}
	if t := bytes.TrimLeft(data, " \t\r\n"); len(t) > 0 && t[0] == '{' {
		return FormatJSON
	}
	return FormatBinary
}

// JSONLoader loads programs encoded in the projection grammar.
type JSONLoader struct{}

type document struct {
	Functions []any `json:"functions"`
}

// Load implements Loader.
func (JSONLoader) Load(ctx context.Context, data []byte) (*ir.Program, error) {
	switch f := Detect(data); f {
	case FormatJSON:
	case FormatEmpty:
		return nil, fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s (lifting native code is not supported)", ErrUnsupportedFormat, f)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}

	p := ir.NewProgram()
	for i, raw := range doc.Functions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := projection.DecodeFunction(raw)
		if err != nil {
			return nil, fmt.Errorf("decode function %d: %w", i, err)
		}
		p.AddFunction(f)
	}
	return p, nil
}
