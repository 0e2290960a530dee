// Package schema loads and compiles Kaitai Struct YAML schema documents
// (.ksy files) into a form the type interpreter can execute directly:
// every expression-bearing attribute (if/size/pos/repeat-expr/repeat-until/
// value/valid.expr/switch-on) is parsed once into an expression.Expr
// tree at compile time, rather than re-parsed on every field read.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the raw, YAML-shaped form of a .ksy schema: field names and
// nesting mirror the Kaitai Struct YAML spec directly. Compile lowers a
// Document into a Compiled schema.
type Document struct {
	Meta      Meta                   `yaml:"meta"`
	Seq       []Attr                 `yaml:"seq"`
	Types     map[string]TypeDef     `yaml:"types"`
	Instances map[string]InstanceDef `yaml:"instances"`
	Enums     map[string]EnumDef     `yaml:"enums"`
	Params    []ParamDef             `yaml:"params"`
	Doc       string                 `yaml:"doc"`
	DocRef    string                 `yaml:"doc-ref"`
}

// Meta carries the schema-wide defaults: identifier, default endianness,
// default string encoding, and any imported schemas.
type Meta struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Endian    string   `yaml:"endian"`
	BitEndian string   `yaml:"bit-endian"`
	Encoding  string   `yaml:"encoding"`
	KSVersion string   `yaml:"ks-version"`
	Imports   []string `yaml:"imports"`
}

// Attr is one field of a `seq:` list or a switch-type case body. Every
// expression-valued YAML key is a plain string here (Document is the
// pre-lowering representation) and becomes a parsed expression.Expr on
// the corresponding Compiled type.
type Attr struct {
	ID          string `yaml:"id"`
	Type        any    `yaml:"type"` // string, or a nested switch-on map
	Value       string `yaml:"value,omitempty"`
	Enum        string `yaml:"enum,omitempty"`
	Repeat      string `yaml:"repeat,omitempty"`
	RepeatExpr  string `yaml:"repeat-expr,omitempty"`
	RepeatUntil string `yaml:"repeat-until,omitempty"`
	Size        any    `yaml:"size,omitempty"` // int literal or expression string
	SizeEOS     bool   `yaml:"size-eos,omitempty"`
	IfExpr      string `yaml:"if,omitempty"`
	Process     string `yaml:"process,omitempty"`
	Contents    any    `yaml:"contents,omitempty"`
	Terminator  any    `yaml:"terminator,omitempty"`
	Include     bool   `yaml:"include,omitempty"`
	Consume     *bool  `yaml:"consume,omitempty"`
	EosError    *bool  `yaml:"eos-error,omitempty"`
	Encoding    string `yaml:"encoding,omitempty"`
	Pos         string `yaml:"pos,omitempty"`
	Doc         string `yaml:"doc,omitempty"`
	DocRef      string `yaml:"doc-ref,omitempty"`
	Valid       *ValidationDef `yaml:"valid,omitempty"`
}

// SwitchSpec is the shape of a `type: {switch-on: ..., cases: {...}}`
// attribute type.
type SwitchSpec struct {
	SwitchOn string         `yaml:"switch-on"`
	Cases    map[string]any `yaml:"cases"`
}

// TypeDef is a nested user-defined type (the body of a `types:` entry).
type TypeDef struct {
	Seq       []Attr                 `yaml:"seq"`
	Types     map[string]TypeDef     `yaml:"types"`
	Instances map[string]InstanceDef `yaml:"instances"`
	Enums     map[string]EnumDef     `yaml:"enums"`
	Params    []ParamDef             `yaml:"params"`
	Meta      Meta                   `yaml:"meta"`
	Doc       string                 `yaml:"doc"`
	DocRef    string                 `yaml:"doc-ref"`
}

// InstanceDef is a lazily-computed field (an `instances:` entry): either a
// `value:` expression, or a `pos`/`type`/`size`-described field read from
// an arbitrary stream offset.
type InstanceDef struct {
	Value    string `yaml:"value,omitempty"`
	Pos      string `yaml:"pos,omitempty"`
	Type     any    `yaml:"type,omitempty"`
	Size     any    `yaml:"size,omitempty"`
	SizeEOS  bool   `yaml:"size-eos,omitempty"`
	IfExpr   string `yaml:"if,omitempty"`
	Enum     string `yaml:"enum,omitempty"`
	Encoding string `yaml:"encoding,omitempty"`
	Doc      string `yaml:"doc,omitempty"`
	DocRef   string `yaml:"doc-ref,omitempty"`
}

// EnumDef maps an enum's integer values to their symbolic names.
type EnumDef map[int64]string

// ParamDef is one entry of a type's `params:` list.
type ParamDef struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	Doc  string `yaml:"doc,omitempty"`
}

// ValidationDef is a `valid:` constraint: either a bare scalar (equality
// check) or an object with `min`/`max`/`any-of`/`expr`.
type ValidationDef struct {
	Scalar any
	Expr   string `yaml:"expr,omitempty"`
	Min    any    `yaml:"min,omitempty"`
	Max    any    `yaml:"max,omitempty"`
	AnyOf  []any  `yaml:"any-of,omitempty"`
}

// UnmarshalYAML lets `valid: 5` and `valid: {min: 1, max: 10}` share one
// Go type: a bare scalar/sequence node is stored as Scalar, anything else
// decodes into the structured fields.
func (v *ValidationDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode || node.Kind == yaml.SequenceNode {
		var raw any
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("schema: decoding scalar valid: %w", err)
		}
		v.Scalar = raw
		return nil
	}
	type alias ValidationDef
	var a alias
	if err := node.Decode(&a); err != nil {
		return fmt.Errorf("schema: decoding valid: %w", err)
	}
	*v = ValidationDef(a)
	return nil
}

// ParseDocument unmarshals raw .ksy YAML source into a Document.
func ParseDocument(source []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &SyntaxError{Err: err}
	}
	return &doc, nil
}
