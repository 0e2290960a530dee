// Package kstruct is the type interpreter: given a compiled schema
// (pkg/schema) and a byte stream (internal/kbstream), it walks a type's
// sequence of fields, evaluating expressions (internal/celeval) for
// conditionals, sizes, and repetition, and builds a parse tree of Value
// nodes that record both the decoded value and where in the stream it
// came from.
package kstruct

import (
	"strconv"

	"github.com/go-kaitai/kstruct/internal/kbstream"
	"github.com/go-kaitai/kstruct/pkg/schema"
)

// FieldMeta records where a field's bytes came from in the source stream,
// independent of its decoded value — used for `sizeof`/`_io.pos`-style
// introspection and for diagnostics.
type FieldMeta struct {
	Offset int64
	Length int64
}

// Value is one parsed field: its decoded Go value (a fixed-width integer or
// float at its native Go width such as uint8, int16, uint32 or float32, a
// uint64 for bit-sized integers, an EnumValue for enum-tagged integers,
// string, []byte, *Object, []*Value for a repeated field, or whatever a
// `value:` expression produced) plus its source position.
type Value struct {
	Raw  any
	Meta FieldMeta
}

// Object is a parsed instance of a user-defined type: an ordered set of
// seq fields plus lazily-evaluated instances, with the parent/root/io
// context every instance and repeat-until expression needs.
type Object struct {
	TypeName string
	Type     *schema.CompiledType

	fieldOrder []string
	fields     map[string]*Value

	instances        map[string]*Value
	instanceInFlight map[string]bool

	Parent *Object
	Root   *Object
	IO     *kbstream.Stream

	// Args holds the values a parameterized type was instantiated with,
	// keyed by parameter id, so expressions inside the type body can
	// reference its own params.
	Args map[string]any
}

func newObject(ct *schema.CompiledType, parent, root *Object, io *kbstream.Stream) *Object {
	return &Object{
		TypeName:         ct.Name,
		Type:             ct,
		fields:           map[string]*Value{},
		instances:        map[string]*Value{},
		instanceInFlight: map[string]bool{},
		Parent:           parent,
		Root:             root,
		IO:               io,
	}
}

// EnumValue is a field whose declared type carries an `enum:` attribute: the
// raw integer read off the stream, plus the symbolic name it resolves to
// (empty if no enum member matches the value).
type EnumValue struct {
	Value int64
	Name  string
}

func (e EnumValue) String() string {
	if e.Name != "" {
		return e.Name
	}
	return strconv.FormatInt(e.Value, 10)
}

func (o *Object) set(id string, v *Value) {
	if _, exists := o.fields[id]; !exists {
		o.fieldOrder = append(o.fieldOrder, id)
	}
	o.fields[id] = v
}

// Field returns a seq field's Value by id.
func (o *Object) Field(id string) (*Value, bool) {
	v, ok := o.fields[id]
	return v, ok
}

// FieldNames returns seq field ids in declaration order.
func (o *Object) FieldNames() []string {
	return append([]string(nil), o.fieldOrder...)
}

// RawValue is a convenience for Field(id).Raw, returning nil if absent.
func (o *Object) RawValue(id string) any {
	if v, ok := o.fields[id]; ok {
		return v.Raw
	}
	return nil
}

// ToMap flattens an Object (recursively) into a map[string]any, mainly
// useful for building an evaluation activation and for tests/debugging.
func (o *Object) ToMap() map[string]any {
	out := make(map[string]any, len(o.fields))
	for id, v := range o.fields {
		out[id] = flattenValue(v.Raw)
	}
	return out
}

func flattenValue(raw any) any {
	switch v := raw.(type) {
	case *Object:
		return v.ToMap()
	case []*Value:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = flattenValue(e.Raw)
		}
		return out
	case EnumValue:
		// Expression evaluation (switch-on, if, valid.expr) compares an
		// enum field against its underlying integer; the symbolic Name is
		// a presentation concern only.
		return v.Value
	default:
		return v
	}
}
