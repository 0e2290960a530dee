package celeval

import (
	"errors"
	"fmt"
)

// errNotAnIOHandle is returned by the `_io` CEL functions (pos, size, eof)
// when their operand isn't the map shape pkg/kstruct builds for stream
// metadata (e.g. a plain scalar was passed where `_io` was expected).
// sizeof/alignof do not return it: they fall back to the operand's natural
// length and to 1 respectively.
var errNotAnIOHandle = errors.New("celeval: value does not expose the expected stream/field metadata")

// TypeMismatchError reports that an expression operator was applied to a
// value of the wrong CEL type (e.g. arithmetic on a string).
type TypeMismatchError struct {
	Expr     string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("celeval: type mismatch evaluating %q: expected %s, got %s", e.Expr, e.Expected, e.Got)
}

// DivideByZeroError reports an integer division or modulo by zero.
type DivideByZeroError struct {
	Expr string
}

func (e *DivideByZeroError) Error() string {
	return fmt.Sprintf("celeval: division by zero evaluating %q", e.Expr)
}

// MissingValueError reports that an identifier resolved successfully at
// parse time but had no bound value in the activation (a field that was
// never parsed due to an `if`, or an out-of-range repetition index).
type MissingValueError struct {
	Name string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("celeval: no value bound for %q", e.Name)
}

// UnknownIdentifierError reports a reference to a name that resolves to
// nothing in the current scope chain.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("celeval: unknown identifier %q", e.Name)
}

// CompileError wraps a CEL compilation failure (syntax the AST transform
// produced that the CEL environment's declared functions/types reject).
type CompileError struct {
	Expr string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("celeval: failed to compile %q: %v", e.Expr, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// EvalError wraps a runtime failure raised while running a compiled
// program (a CEL function returning types.NewErr, or program.Eval itself
// failing).
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("celeval: failed to evaluate %q: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
