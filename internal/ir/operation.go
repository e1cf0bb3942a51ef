package ir

// Operation is the effect of a single instruction.
type Operation interface {
	// Kind returns the operation's external tag.
	Kind() string
}

// Assign writes Src to Dst.
type Assign struct {
	Dst Variable
	Src Expression
}

// Store writes Src to memory at Index.
type Store struct {
	Index Expression
	Src   Expression
}

// Load reads memory at Index into Dst.
type Load struct {
	Dst   Variable
	Index Expression
}

// Branch transfers control to Target.
type Branch struct {
	Target Expression
}

// CallOperation invokes Call.
type CallOperation struct {
	Call *Call
}

// IntrinsicOperation executes an instruction the lifter could not model.
type IntrinsicOperation struct {
	Intrinsic *Intrinsic
}

// Return leaves the function, optionally with Result.
type Return struct {
	Result Expression
}

// Nop does nothing.
type Nop struct{}

func (*Assign) Kind() string             { return "assign" }
func (*Store) Kind() string              { return "store" }
func (*Load) Kind() string               { return "load" }
func (*Branch) Kind() string             { return "branch" }
func (*CallOperation) Kind() string      { return "call" }
func (*IntrinsicOperation) Kind() string { return "intrinsic" }
func (*Return) Kind() string             { return "return" }
func (*Nop) Kind() string                { return "nop" }

// OperationKinds lists every operation tag.
var OperationKinds = []string{"assign", "store", "load", "branch", "call", "intrinsic", "return", "nop"}

// CallTarget identifies what a call invokes.
type CallTarget interface {
	isCallTarget()
}

// ExpressionTarget is an indirect call through a computed address.
type ExpressionTarget struct {
	Expression Expression
}

// SymbolTarget is a call to a named, usually imported, symbol.
type SymbolTarget struct {
	Symbol string
}

// FunctionTarget is a direct call to a function in the same program.
type FunctionTarget struct {
	FunctionID int
}

func (*ExpressionTarget) isCallTarget() {}
func (*SymbolTarget) isCallTarget()     {}
func (*FunctionTarget) isCallTarget()   {}

// Call describes a call site. Arguments and VariablesWritten are nil when
// the calling convention could not determine them; an empty non-nil slice
// means "known to be none".
type Call struct {
	Target           CallTarget
	Arguments        []Expression
	VariablesWritten []Variable
}

// Symbol returns the call's symbol name if the target is a symbol.
func (c *Call) Symbol() (string, bool) {
	if t, ok := c.Target.(*SymbolTarget); ok {
		return t.Symbol, true
	}
	return "", false
}

// Intrinsic is an opaque machine instruction carried through the IR.
type Intrinsic struct {
	Mnemonic           string
	InstructionStr     string
	Arguments          []Expression
	WrittenExpressions []Expression
	ReadExpressions    []Expression
	Bytes              []byte
}

// ReadsUnknown reports whether op may read expressions ReadExpressions
// cannot list: a call whose arguments are unknown, or an intrinsic whose
// read set is unknown.
func ReadsUnknown(op Operation) bool {
	switch o := op.(type) {
	case *CallOperation:
		return o.Call.Arguments == nil
	case *IntrinsicOperation:
		return o.Intrinsic.ReadExpressions == nil
	}
	return false
}

// ReadExpressions returns every expression an operation is known to read.
// See ReadsUnknown for operations that may read more.
func ReadExpressions(op Operation) []Expression {
	switch o := op.(type) {
	case *Assign:
		return []Expression{o.Src}
	case *Store:
		return []Expression{o.Index, o.Src}
	case *Load:
		return []Expression{o.Index}
	case *Branch:
		return []Expression{o.Target}
	case *CallOperation:
		var out []Expression
		if t, ok := o.Call.Target.(*ExpressionTarget); ok {
			out = append(out, t.Expression)
		}
		return append(out, o.Call.Arguments...)
	case *IntrinsicOperation:
		out := append([]Expression(nil), o.Intrinsic.Arguments...)
		return append(out, o.Intrinsic.ReadExpressions...)
	case *Return:
		if o.Result != nil {
			return []Expression{o.Result}
		}
	}
	return nil
}
