// Package celeval evaluates the expression.Expr AST by compiling it to a
// CEL (Common Expression Language) program and running it against an
// activation built from the current parse context. CEL was chosen because
// it gives a battle-tested, side-effect-free evaluator with typed errors
// and a small stdlib of arithmetic/string/collection functions; the
// expression language's own surface syntax (ternaries, `.as<Type>()`
// casts, `sizeof`/`alignof`, the `_io`/`_parent`/`_root`/`_` pseudo-vars)
// has no CEL equivalent, so it is translated to CEL source text first.
package celeval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kaitai/kstruct/pkg/expression"
)

// astTransformer walks an expression.Expr with the Visitor interface and
// emits an equivalent CEL source string into sb.
type astTransformer struct {
	sb strings.Builder
}

// ToCEL renders node as a CEL source expression.
func ToCEL(node expression.Expr) (string, error) {
	t := &astTransformer{}
	if err := node.Accept(t); err != nil {
		return "", err
	}
	return t.sb.String(), nil
}

func (t *astTransformer) VisitBoolLit(n *expression.BoolLit) error {
	t.sb.WriteString(strconv.FormatBool(n.Value))
	return nil
}

func (t *astTransformer) VisitIntLit(n *expression.IntLit) error {
	fmt.Fprintf(&t.sb, "%d", n.Value)
	return nil
}

func (t *astTransformer) VisitFloatLit(n *expression.FloatLit) error {
	fmt.Fprintf(&t.sb, "%g", n.Value)
	return nil
}

func (t *astTransformer) VisitStringLit(n *expression.StringLit) error {
	t.sb.WriteString(strconv.Quote(n.Value))
	return nil
}

func (t *astTransformer) VisitNullLit(*expression.NullLit) error {
	t.sb.WriteString("null")
	return nil
}

func (t *astTransformer) VisitIdent(n *expression.Ident) error {
	t.sb.WriteString(n.Name)
	return nil
}

func (t *astTransformer) VisitSelf(*expression.Self) error {
	t.sb.WriteString("_")
	return nil
}

func (t *astTransformer) VisitIo(*expression.Io) error {
	t.sb.WriteString("_io")
	return nil
}

func (t *astTransformer) VisitParent(*expression.Parent) error {
	t.sb.WriteString("_parent")
	return nil
}

func (t *astTransformer) VisitRoot(*expression.Root) error {
	t.sb.WriteString("_root")
	return nil
}

func (t *astTransformer) VisitBytesRemaining(*expression.BytesRemaining) error {
	t.sb.WriteString("_bytes_remaining")
	return nil
}

// ioAttrFuncs maps `_io.<name>` attribute reads to the CEL function that
// the environment registers for them (stream position/size/eof are not
// plain struct fields, they query live parser state).
var ioAttrFuncs = map[string]string{
	"pos":    "ioPos",
	"size":   "ioSize",
	"eof":    "ioEof",
	"is_eof": "ioEof",
}

func (t *astTransformer) VisitAttr(n *expression.Attr) error {
	if _, ok := n.Value.(*expression.Io); ok {
		if fn, ok := ioAttrFuncs[n.Name]; ok {
			t.sb.WriteString(fn)
			t.sb.WriteString("(")
			if err := n.Value.Accept(t); err != nil {
				return err
			}
			t.sb.WriteString(")")
			return nil
		}
	}
	if err := n.Value.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(".")
	t.sb.WriteString(n.Name)
	return nil
}

func (t *astTransformer) VisitCall(n *expression.Call) error {
	// Method-call surface syntax (`recv.fn(args)`, parsed as Call{Callee:
	// Attr{recv, "fn"}}) has no CEL receiver-call equivalent here: none of
	// Kaitai's to_s/to_i/to_f/length/size/reverse/substring helpers are
	// declared as cel.MemberOverloads, only plain functions. Render it as
	// the equivalent global call fn(recv, args...) instead.
	if attr, ok := n.Callee.(*expression.Attr); ok {
		t.sb.WriteString(attr.Name)
		t.sb.WriteString("(")
		if err := attr.Value.Accept(t); err != nil {
			return err
		}
		for _, a := range n.Args {
			t.sb.WriteString(", ")
			if err := a.Accept(t); err != nil {
				return err
			}
		}
		t.sb.WriteString(")")
		return nil
	}

	if err := n.Callee.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString("(")
	for i, a := range n.Args {
		if i > 0 {
			t.sb.WriteString(", ")
		}
		if err := a.Accept(t); err != nil {
			return err
		}
	}
	t.sb.WriteString(")")
	return nil
}

func (t *astTransformer) VisitIndex(n *expression.Index) error {
	if err := n.Value.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString("[")
	if err := n.Idx.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString("]")
	return nil
}

func (t *astTransformer) VisitCast(n *expression.Cast) error {
	t.sb.WriteString("asType(")
	if err := n.Value.Accept(t); err != nil {
		return err
	}
	fmt.Fprintf(&t.sb, ", %s)", strconv.Quote(n.TypeName))
	return nil
}

func (t *astTransformer) VisitSizeOf(n *expression.SizeOf) error {
	t.sb.WriteString("sizeOf(")
	if err := n.Value.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(")")
	return nil
}

func (t *astTransformer) VisitAlignOf(n *expression.AlignOf) error {
	t.sb.WriteString("alignOf(")
	if err := n.Value.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(")")
	return nil
}

func (t *astTransformer) VisitUnary(n *expression.Unary) error {
	switch n.Op {
	case expression.OpBitNot:
		t.sb.WriteString("bitNot(")
		if err := n.Expr.Accept(t); err != nil {
			return err
		}
		t.sb.WriteString(")")
		return nil
	case expression.OpNot:
		t.sb.WriteString("!")
	case expression.OpNeg:
		t.sb.WriteString("-")
	default:
		return fmt.Errorf("celeval: unsupported unary operator %v", n.Op)
	}
	return n.Expr.Accept(t)
}

// funcOps map an operator to a CEL function name for operators CEL's
// standard library does not give the right semantics for directly (bitwise
// ops have no CEL surface syntax; % and / need floor/Python-style
// semantics rather than CEL's truncating int division).
var funcOps = map[expression.BinaryOp]string{
	expression.OpBitAnd: "bitAnd",
	expression.OpBitOr:  "bitOr",
	expression.OpBitXor: "bitXor",
	expression.OpShl:    "bitShiftLeft",
	expression.OpShr:    "bitShiftRight",
	expression.OpMod:    "kaitaiMod",
	expression.OpDiv:    "kaitaiDiv",
}

var infixOps = map[expression.BinaryOp]string{
	expression.OpAdd: " + ",
	expression.OpSub: " - ",
	expression.OpMul: " * ",
	expression.OpEq:  " == ",
	expression.OpNeq: " != ",
	expression.OpLt:  " < ",
	expression.OpGt:  " > ",
	expression.OpLe:  " <= ",
	expression.OpGe:  " >= ",
	expression.OpAnd: " && ",
	expression.OpOr:  " || ",
}

func (t *astTransformer) VisitBinary(n *expression.Binary) error {
	if fn, ok := funcOps[n.Op]; ok {
		t.sb.WriteString(fn)
		t.sb.WriteString("(")
		if err := n.Left.Accept(t); err != nil {
			return err
		}
		t.sb.WriteString(", ")
		if err := n.Right.Accept(t); err != nil {
			return err
		}
		t.sb.WriteString(")")
		return nil
	}
	sym, ok := infixOps[n.Op]
	if !ok {
		return fmt.Errorf("celeval: unsupported binary operator %v", n.Op)
	}
	t.sb.WriteString("(")
	if err := n.Left.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(sym)
	if err := n.Right.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(")")
	return nil
}

func (t *astTransformer) VisitTernary(n *expression.Ternary) error {
	t.sb.WriteString("(")
	if err := n.Cond.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(" ? ")
	if err := n.Then.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(" : ")
	if err := n.Else.Accept(t); err != nil {
		return err
	}
	t.sb.WriteString(")")
	return nil
}

// FreeIdents collects the set of plain identifiers (field/instance names)
// referenced by node, in first-seen order, excluding pseudo-variables
// (`_io`, `_parent`, `_root`, `_`, `_bytes_remaining`) which the
// evaluation environment always declares. Unlike a regex scan over
// rendered CEL source, this walks the real AST, so it can't misfire on
// identifiers that happen to appear inside string literals.
func FreeIdents(node expression.Expr) []string {
	c := &identCollector{seen: map[string]bool{}}
	_ = node.Accept(c)
	return c.order
}

type identCollector struct {
	seen  map[string]bool
	order []string
}

func (c *identCollector) add(name string) {
	if !c.seen[name] {
		c.seen[name] = true
		c.order = append(c.order, name)
	}
}

func (c *identCollector) VisitBoolLit(*expression.BoolLit) error       { return nil }
func (c *identCollector) VisitIntLit(*expression.IntLit) error         { return nil }
func (c *identCollector) VisitFloatLit(*expression.FloatLit) error     { return nil }
func (c *identCollector) VisitStringLit(*expression.StringLit) error   { return nil }
func (c *identCollector) VisitNullLit(*expression.NullLit) error       { return nil }
func (c *identCollector) VisitSelf(*expression.Self) error             { return nil }
func (c *identCollector) VisitIo(*expression.Io) error                 { return nil }
func (c *identCollector) VisitParent(*expression.Parent) error         { return nil }
func (c *identCollector) VisitRoot(*expression.Root) error             { return nil }
func (c *identCollector) VisitBytesRemaining(*expression.BytesRemaining) error {
	return nil
}

func (c *identCollector) VisitIdent(n *expression.Ident) error {
	c.add(n.Name)
	return nil
}

func (c *identCollector) VisitUnary(n *expression.Unary) error { return n.Expr.Accept(c) }

func (c *identCollector) VisitBinary(n *expression.Binary) error {
	if err := n.Left.Accept(c); err != nil {
		return err
	}
	return n.Right.Accept(c)
}

func (c *identCollector) VisitTernary(n *expression.Ternary) error {
	if err := n.Cond.Accept(c); err != nil {
		return err
	}
	if err := n.Then.Accept(c); err != nil {
		return err
	}
	return n.Else.Accept(c)
}

func (c *identCollector) VisitAttr(n *expression.Attr) error { return n.Value.Accept(c) }

func (c *identCollector) VisitCall(n *expression.Call) error {
	// A bare-name callee (to_i in to_i(s)) names a function, not a field.
	if _, isFunc := n.Callee.(*expression.Ident); !isFunc {
		if err := n.Callee.Accept(c); err != nil {
			return err
		}
	}
	for _, a := range n.Args {
		if err := a.Accept(c); err != nil {
			return err
		}
	}
	return nil
}

func (c *identCollector) VisitIndex(n *expression.Index) error {
	if err := n.Value.Accept(c); err != nil {
		return err
	}
	return n.Idx.Accept(c)
}

func (c *identCollector) VisitCast(n *expression.Cast) error { return n.Value.Accept(c) }
func (c *identCollector) VisitSizeOf(n *expression.SizeOf) error { return n.Value.Accept(c) }
func (c *identCollector) VisitAlignOf(n *expression.AlignOf) error {
	return n.Value.Accept(c)
}
