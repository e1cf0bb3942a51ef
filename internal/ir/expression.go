package ir

import "github.com/holiman/uint256"

// Expression is a node in an expression tree. Expression nodes are immutable
// once constructed; passes that rewrite expressions build new nodes and may
// share unchanged subtrees.
type Expression interface {
	isExpression()
}

// Variable is an LValue naming a storage location that is not memory.
type Variable interface {
	Expression
	isVariable()
	// Width returns the variable's size in bits.
	Width() int
}

// Scalar is a named register-like variable.
type Scalar struct {
	Name string
	Bits int
}

// StackVariable is a variable addressed by its offset from the stack frame.
type StackVariable struct {
	Offset int64
	Bits   int
}

// Dereference reads memory at the address computed by Expression.
type Dereference struct {
	Expression Expression
}

// Constant is an arbitrary-width (up to 256 bits) unsigned value.
type Constant struct {
	Value uint256.Int
	Bits  int
}

// Reference takes the address of Expression.
type Reference struct {
	Expression Expression
}

// BinaryOp enumerates the two-operand expression operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDivu
	OpModu
	OpDivs
	OpMods
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpCmpeq
	OpCmpneq
	OpCmplts
	OpCmpltu
)

// Binary applies Op to LHS and RHS.
type Binary struct {
	Op  BinaryOp
	LHS Expression
	RHS Expression
}

// CastOp enumerates the width-changing unary operators.
type CastOp int

const (
	CastTrun CastOp = iota
	CastSext
	CastZext
)

// Cast changes the width of RHS to Bits.
type Cast struct {
	Op   CastOp
	Bits int
	RHS  Expression
}

// Ite is a three-way conditional: Then if Cond is non-zero, else Else.
type Ite struct {
	Cond Expression
	Then Expression
	Else Expression
}

func (*Scalar) isExpression()        {}
func (*StackVariable) isExpression() {}
func (*Dereference) isExpression()   {}
func (*Constant) isExpression()      {}
func (*Reference) isExpression()     {}
func (*Binary) isExpression()        {}
func (*Cast) isExpression()          {}
func (*Ite) isExpression()           {}

func (*Scalar) isVariable()        {}
func (*StackVariable) isVariable() {}

func (s *Scalar) Width() int        { return s.Bits }
func (s *StackVariable) Width() int { return s.Bits }

// NewScalar returns a scalar variable.
func NewScalar(name string, bits int) *Scalar {
	return &Scalar{Name: name, Bits: bits}
}

// NewConstant returns a constant holding v truncated to bits.
func NewConstant(v uint64, bits int) *Constant {
	c := &Constant{Bits: bits}
	c.Value.SetUint64(v)
	c.Value = truncate(c.Value, bits)
	return c
}

// NewBigConstant returns a constant holding v truncated to bits.
func NewBigConstant(v *uint256.Int, bits int) *Constant {
	return &Constant{Value: truncate(*v, bits), Bits: bits}
}

// Uint64 returns the low 64 bits of the constant and whether the value fits.
func (c *Constant) Uint64() (uint64, bool) {
	return c.Value.Uint64(), c.Value.IsUint64()
}

// Hex formats the constant as "0x" followed by lowercase hex digits with no
// leading zeros.
func (c *Constant) Hex() string {
	v := c.Value
	return v.Hex()
}

// truncate masks v to the low bits bits.
func truncate(v uint256.Int, bits int) uint256.Int {
	if bits <= 0 || bits >= 256 {
		return v
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	mask.SubUint64(mask, 1)
	var out uint256.Int
	out.And(&v, mask)
	return out
}

// Truncate exposes width truncation to passes that fold constants.
func Truncate(v *uint256.Int, bits int) *uint256.Int {
	out := truncate(*v, bits)
	return &out
}

// BinaryOpNames maps each operator to its external tag.
var BinaryOpNames = map[BinaryOp]string{
	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpDivu:   "divu",
	OpModu:   "modu",
	OpDivs:   "divs",
	OpMods:   "mods",
	OpAnd:    "and",
	OpOr:     "or",
	OpXor:    "xor",
	OpShl:    "shl",
	OpShr:    "shr",
	OpCmpeq:  "cmpeq",
	OpCmpneq: "cmpneq",
	OpCmplts: "cmplts",
	OpCmpltu: "cmpltu",
}

// CastOpNames maps each cast to its external tag.
var CastOpNames = map[CastOp]string{
	CastTrun: "trun",
	CastSext: "sext",
	CastZext: "zext",
}

func (op BinaryOp) String() string { return BinaryOpNames[op] }
func (op CastOp) String() string   { return CastOpNames[op] }

// IsComparison reports whether op yields a 1-bit boolean.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpCmpeq, OpCmpneq, OpCmplts, OpCmpltu:
		return true
	}
	return false
}

// Walk calls fn for e and every subexpression of e in pre-order. Walk stops
// descending into a node when fn returns false.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Dereference:
		Walk(x.Expression, fn)
	case *Reference:
		Walk(x.Expression, fn)
	case *Binary:
		Walk(x.LHS, fn)
		Walk(x.RHS, fn)
	case *Cast:
		Walk(x.RHS, fn)
	case *Ite:
		Walk(x.Cond, fn)
		Walk(x.Then, fn)
		Walk(x.Else, fn)
	}
}

// Scalars returns every scalar read by e.
func Scalars(e Expression) []*Scalar {
	var out []*Scalar
	Walk(e, func(n Expression) bool {
		if s, ok := n.(*Scalar); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}
