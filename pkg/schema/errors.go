package schema

import "fmt"

// SyntaxError wraps a YAML parse failure in the input document.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("schema: invalid YAML: %v", e.Err) }
func (e *SyntaxError) Unwrap() error  { return e.Err }

// UnresolvedTypeError reports a `type:`/switch-case value that names a
// type not found in the enclosing type's lexical scope chain.
type UnresolvedTypeError struct {
	TypeName string
	InType   string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("schema: unresolved type %q referenced from %q", e.TypeName, e.InType)
}

// UnresolvedEnumError reports an `enum:` reference to a name not declared
// anywhere in scope.
type UnresolvedEnumError struct {
	EnumName string
	InType   string
}

func (e *UnresolvedEnumError) Error() string {
	return fmt.Sprintf("schema: unresolved enum %q referenced from %q", e.EnumName, e.InType)
}

// ParamArityError reports a parameterized user type instantiated with the
// wrong number of arguments.
type ParamArityError struct {
	TypeName string
	Want     int
	Got      int
}

func (e *ParamArityError) Error() string {
	return fmt.Sprintf("schema: type %q takes %d parameter(s), got %d", e.TypeName, e.Want, e.Got)
}

// DuplicateFieldError reports a seq/instance id used twice in the same
// type body.
type DuplicateFieldError struct {
	TypeName string
	FieldID  string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("schema: duplicate field id %q in type %q", e.FieldID, e.TypeName)
}

// InvalidExpressionError reports a field whose expression-bearing YAML key
// failed to parse as an expression.
type InvalidExpressionError struct {
	TypeName string
	FieldID  string
	Key      string
	Err      error
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("schema: %s.%s: invalid %s expression: %v", e.TypeName, e.FieldID, e.Key, e.Err)
}

func (e *InvalidExpressionError) Unwrap() error { return e.Err }
