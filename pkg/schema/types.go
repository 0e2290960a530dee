package schema

import "github.com/go-kaitai/kstruct/pkg/expression"

// RepeatKind selects how a seq attribute repeats.
type RepeatKind int

const (
	RepeatNone RepeatKind = iota
	RepeatExpr            // repeat: expr, count given by RepeatCountExpr
	RepeatEOS             // repeat: eos
	RepeatUntil           // repeat: until, stop condition RepeatUntilExpr
)

// TypeKind classifies a resolved attribute type.
type TypeKind int

const (
	TypeNone TypeKind = iota // no `type:` key: a plain byte-string field
	TypeBuiltin
	TypeUser
	TypeSwitch
)

// BuiltinKind enumerates Kaitai's primitive wire types.
type BuiltinKind int

const (
	BuiltinU1 BuiltinKind = iota
	BuiltinU2
	BuiltinU4
	BuiltinU8
	BuiltinS1
	BuiltinS2
	BuiltinS4
	BuiltinS8
	BuiltinF4
	BuiltinF8
	BuiltinBytes
	BuiltinStr
	BuiltinStrZ
	BuiltinBitsInt // bN / bNle
)

// Endianness of a multi-byte builtin read.
type Endianness int

const (
	EndianDefault Endianness = iota // inherit meta.endian
	EndianBig
	EndianLittle
)

// TypeSpec describes a field's type, resolved as far as schema
// compilation can resolve it (user type names become direct *CompiledType
// pointers; switch case keys keep their YAML key text and are not parsed
// as expressions).
type TypeSpec struct {
	Kind TypeKind

	// TypeBuiltin fields
	Builtin       BuiltinKind
	Endian        Endianness
	BitWidth      int // for BuiltinBitsInt
	BitLittle     bool

	// TypeUser fields
	User     *CompiledType
	UserArgs []expression.Expr

	// TypeSwitch fields
	SwitchOn    expression.Expr
	Cases       map[string]TypeSpec // key: literal or "enum_name::value"; "_" goes to DefaultCase
	HasDefault  bool
	DefaultCase TypeSpec
}

// BitsWidth returns the number of bits BuiltinBitsInt reads.
func (t TypeSpec) BitsWidth() int { return t.BitWidth }

// CompiledType is a fully-lowered user type: every expression-bearing
// field on every Attr has already been parsed into an expression.Expr.
type CompiledType struct {
	Name      string
	Parent    *CompiledType
	Seq       []*CompiledAttr
	Types     map[string]*CompiledType
	Instances map[string]*CompiledInstance
	Enums     map[string]EnumDef
	Params    []ParamDef
	Meta      Meta
	Doc       string
}

// CompiledAttr is one lowered seq field.
type CompiledAttr struct {
	ID   string
	Type TypeSpec

	ValueExpr expression.Expr // `value:` (computed, non-stream field)

	Repeat          RepeatKind
	RepeatCountExpr expression.Expr
	RepeatUntilExpr expression.Expr

	SizeExpr expression.Expr
	SizeEOS  bool

	IfExpr expression.Expr

	Enum     string
	Process  string
	Contents []byte // literal bytes expected at this position (`contents:`)

	Terminator byte
	HasTerm    bool
	Include    bool
	Consume    bool
	EosError   bool

	Encoding string
	PosExpr  expression.Expr

	Valid *CompiledValidation

	Doc string
}

// CompiledInstance is one lowered `instances:` entry.
type CompiledInstance struct {
	ID        string
	ValueExpr expression.Expr // mutually exclusive with PosExpr/Type
	PosExpr   expression.Expr
	Type      TypeSpec
	SizeExpr  expression.Expr
	SizeEOS   bool
	IfExpr    expression.Expr
	Enum      string
	Encoding  string
	Doc       string
}

// CompiledValidation is a lowered `valid:` constraint.
type CompiledValidation struct {
	ExprExpr expression.Expr
	Min      any
	Max      any
	AnyOf    []any
	Scalar   any
	HasEqual bool
}
