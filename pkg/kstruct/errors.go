package kstruct

import "fmt"

// ParseError wraps any failure encountered while parsing a field, tagged
// with the dotted field path (see path.go) from the root object so a
// deeply nested failure is still locatable.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kstruct: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ContentsMismatchError reports that a `contents:` literal-byte check
// failed against the stream.
type ContentsMismatchError struct {
	FieldID  string
	Expected []byte
	Actual   []byte
}

func (e *ContentsMismatchError) Error() string {
	return fmt.Sprintf("kstruct: field %q: expected contents %x, got %x", e.FieldID, e.Expected, e.Actual)
}

// ValidationFailedError reports a `valid:` constraint violation.
type ValidationFailedError struct {
	FieldID string
	Reason  string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("kstruct: field %q failed validation: %s", e.FieldID, e.Reason)
}

// CircularInstanceError reports that evaluating an instance re-entered its
// own evaluation before completing (a -> b -> a value dependency cycle).
type CircularInstanceError struct {
	TypeName     string
	InstanceName string
}

func (e *CircularInstanceError) Error() string {
	return fmt.Sprintf("kstruct: circular dependency evaluating instance %s.%s", e.TypeName, e.InstanceName)
}

// UnknownSwitchCaseError reports a switch-on value with no matching case
// and no default ("_") case.
type UnknownSwitchCaseError struct {
	FieldID string
	Value   any
}

func (e *UnknownSwitchCaseError) Error() string {
	return fmt.Sprintf("kstruct: field %q: no switch case matches value %v and no default case", e.FieldID, e.Value)
}

// UnresolvedTypeError reports a field whose TypeSpec never got a resolved
// *schema.CompiledType (a non-strict schema compile left it unresolved).
type UnresolvedTypeError struct {
	FieldID  string
	TypeName string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("kstruct: field %q: type %q could not be resolved", e.FieldID, e.TypeName)
}

// UnboundIdentifierError reports an expression referencing a name that is
// neither a field, an instance, nor a parameter of the object it's
// evaluated against.
type UnboundIdentifierError struct {
	Name string
}

func (e *UnboundIdentifierError) Error() string {
	return fmt.Sprintf("kstruct: unbound identifier %q", e.Name)
}
