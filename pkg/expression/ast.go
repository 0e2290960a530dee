// Package expression implements the small expression language used
// throughout a Kaitai schema for conditionals, repetition bounds, sizes,
// positions, switch discriminants, and computed instances.
package expression

import (
	"fmt"
	"strings"
)

// Pos is a source position within an expression string, used for error
// reporting (ExpressionSyntaxError carries one).
type Pos struct {
	Line   int
	Column int
}

// Expr is any node in the expression AST. Visitor dispatch lets evaluators
// (the CEL transformer, a pretty-printer, a static analyzer) traverse the
// tree without a type switch in every caller.
type Expr interface {
	Pos() Pos
	String() string
	Accept(Visitor) error
}

// Visitor is implemented once per consumer of the AST (currently: the CEL
// transform in internal/celeval).
type Visitor interface {
	VisitBoolLit(*BoolLit) error
	VisitIntLit(*IntLit) error
	VisitFloatLit(*FloatLit) error
	VisitStringLit(*StringLit) error
	VisitNullLit(*NullLit) error
	VisitIdent(*Ident) error
	VisitSelf(*Self) error
	VisitIo(*Io) error
	VisitParent(*Parent) error
	VisitRoot(*Root) error
	VisitBytesRemaining(*BytesRemaining) error
	VisitUnary(*Unary) error
	VisitBinary(*Binary) error
	VisitTernary(*Ternary) error
	VisitAttr(*Attr) error
	VisitCall(*Call) error
	VisitIndex(*Index) error
	VisitCast(*Cast) error
	VisitSizeOf(*SizeOf) error
	VisitAlignOf(*AlignOf) error
}

type BoolLit struct {
	Value bool
	At    Pos
}

func (n *BoolLit) Pos() Pos       { return n.At }
func (n *BoolLit) String() string { return fmt.Sprintf("%t", n.Value) }
func (n *BoolLit) Accept(v Visitor) error {
	return v.VisitBoolLit(n)
}

type IntLit struct {
	Value int64
	At    Pos
}

func (n *IntLit) Pos() Pos       { return n.At }
func (n *IntLit) String() string { return fmt.Sprintf("%d", n.Value) }
func (n *IntLit) Accept(v Visitor) error {
	return v.VisitIntLit(n)
}

type FloatLit struct {
	Value float64
	At    Pos
}

func (n *FloatLit) Pos() Pos       { return n.At }
func (n *FloatLit) String() string { return fmt.Sprintf("%g", n.Value) }
func (n *FloatLit) Accept(v Visitor) error {
	return v.VisitFloatLit(n)
}

type StringLit struct {
	Value string
	At    Pos
}

func (n *StringLit) Pos() Pos       { return n.At }
func (n *StringLit) String() string { return fmt.Sprintf("%q", n.Value) }
func (n *StringLit) Accept(v Visitor) error {
	return v.VisitStringLit(n)
}

type NullLit struct{ At Pos }

func (n *NullLit) Pos() Pos       { return n.At }
func (n *NullLit) String() string { return "null" }
func (n *NullLit) Accept(v Visitor) error {
	return v.VisitNullLit(n)
}

// Ident is a plain identifier: a local field name, or a name resolved via
// the enclosing type's lexical scope (an enum table name in a cast, etc.).
type Ident struct {
	Name string
	At   Pos
}

func (n *Ident) Pos() Pos       { return n.At }
func (n *Ident) String() string { return n.Name }
func (n *Ident) Accept(v Visitor) error {
	return v.VisitIdent(n)
}

// Self is `_`, the current element bound inside repeat-until.
type Self struct{ At Pos }

func (n *Self) Pos() Pos               { return n.At }
func (n *Self) String() string         { return "_" }
func (n *Self) Accept(v Visitor) error { return v.VisitSelf(n) }

// Io is `_io`, the stream the current object is parsed from.
type Io struct{ At Pos }

func (n *Io) Pos() Pos               { return n.At }
func (n *Io) String() string         { return "_io" }
func (n *Io) Accept(v Visitor) error { return v.VisitIo(n) }

// Parent is `_parent`.
type Parent struct{ At Pos }

func (n *Parent) Pos() Pos               { return n.At }
func (n *Parent) String() string         { return "_parent" }
func (n *Parent) Accept(v Visitor) error { return v.VisitParent(n) }

// Root is `_root`.
type Root struct{ At Pos }

func (n *Root) Pos() Pos               { return n.At }
func (n *Root) String() string         { return "_root" }
func (n *Root) Accept(v Visitor) error { return v.VisitRoot(n) }

// BytesRemaining is `_bytes_remaining`.
type BytesRemaining struct{ At Pos }

func (n *BytesRemaining) Pos() Pos       { return n.At }
func (n *BytesRemaining) String() string { return "_bytes_remaining" }
func (n *BytesRemaining) Accept(v Visitor) error {
	return v.VisitBytesRemaining(n)
}

// UnaryOp identifies a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpBitNot
	OpNeg
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpBitNot:
		return "~"
	case OpNeg:
		return "-"
	default:
		return "?unary?"
	}
}

type Unary struct {
	Op   UnaryOp
	Expr Expr
	At   Pos
}

func (n *Unary) Pos() Pos       { return n.At }
func (n *Unary) String() string { return fmt.Sprintf("(%s%s)", n.Op, n.Expr) }
func (n *Unary) Accept(v Visitor) error {
	return v.VisitUnary(n)
}

// BinaryOp identifies a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
)

var binaryOpSymbols = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpShl: "<<", OpShr: ">>",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpEq: "==", OpNeq: "!=", OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">=",
	OpAnd: "&&", OpOr: "||",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpSymbols[op]; ok {
		return s
	}
	return "?binop?"
}

type Binary struct {
	Op          BinaryOp
	Left, Right Expr
	At          Pos
}

func (n *Binary) Pos() Pos { return n.At }
func (n *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}
func (n *Binary) Accept(v Visitor) error {
	return v.VisitBinary(n)
}

type Ternary struct {
	Cond, Then, Else Expr
	At               Pos
}

func (n *Ternary) Pos() Pos { return n.At }
func (n *Ternary) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", n.Cond, n.Then, n.Else)
}
func (n *Ternary) Accept(v Visitor) error {
	return v.VisitTernary(n)
}

// Attr is member access: Value.Name
type Attr struct {
	Value Expr
	Name  string
	At    Pos
}

func (n *Attr) Pos() Pos       { return n.At }
func (n *Attr) String() string { return fmt.Sprintf("%s.%s", n.Value, n.Name) }
func (n *Attr) Accept(v Visitor) error {
	return v.VisitAttr(n)
}

// Call is a function/method call: Callee(Args...)
type Call struct {
	Callee Expr
	Args   []Expr
	At     Pos
}

func (n *Call) Pos() Pos { return n.At }
func (n *Call) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Callee, strings.Join(parts, ", "))
}
func (n *Call) Accept(v Visitor) error {
	return v.VisitCall(n)
}

// Index is array/string indexing: Value[Idx]
type Index struct {
	Value, Idx Expr
	At         Pos
}

func (n *Index) Pos() Pos       { return n.At }
func (n *Index) String() string { return fmt.Sprintf("%s[%s]", n.Value, n.Idx) }
func (n *Index) Accept(v Visitor) error {
	return v.VisitIndex(n)
}

// Cast is Value.as<TypeName>()
type Cast struct {
	Value    Expr
	TypeName string
	At       Pos
}

func (n *Cast) Pos() Pos       { return n.At }
func (n *Cast) String() string { return fmt.Sprintf("%s.as<%s>", n.Value, n.TypeName) }
func (n *Cast) Accept(v Visitor) error {
	return v.VisitCast(n)
}

// SizeOf is sizeof(Value).
type SizeOf struct {
	Value Expr
	At    Pos
}

func (n *SizeOf) Pos() Pos       { return n.At }
func (n *SizeOf) String() string { return fmt.Sprintf("sizeof(%s)", n.Value) }
func (n *SizeOf) Accept(v Visitor) error {
	return v.VisitSizeOf(n)
}

// AlignOf is alignof(Value).
type AlignOf struct {
	Value Expr
	At    Pos
}

func (n *AlignOf) Pos() Pos       { return n.At }
func (n *AlignOf) String() string { return fmt.Sprintf("alignof(%s)", n.Value) }
func (n *AlignOf) Accept(v Visitor) error {
	return v.VisitAlignOf(n)
}
