package schema

import (
	"fmt"
	"strings"

	"github.com/go-kaitai/kstruct/pkg/expression"
)

// Compiled is a fully-lowered schema: a named set of CompiledType bodies
// plus the name of the root (top-level) type, generated from the
// top-level Document's own seq/instances/types/enums.
type Compiled struct {
	RootTypeName string
	Root         *CompiledType
	// allTypes indexes every CompiledType reachable from Root by its
	// fully-qualified dotted name; used by Lookup and as the last fallback
	// of resolveUserType.
	allTypes map[string]*CompiledType
}

// Lookup resolves a fully-qualified type name (as produced by the
// compiler while walking nested `types:` blocks) to its CompiledType.
func (c *Compiled) Lookup(name string) (*CompiledType, bool) {
	t, ok := c.allTypes[name]
	return t, ok
}

// CompileOptions configures Compile.
type CompileOptions struct {
	Strict   bool // unresolved type and enum references are hard errors
	Validate bool // set by WithValidate; Compile does not read it
}

// CompileOption mutates a CompileOptions.
type CompileOption func(*CompileOptions)

// WithStrict makes unresolved type/enum references compile errors instead
// of being left for a parse-time failure.
func WithStrict() CompileOption {
	return func(o *CompileOptions) { o.Strict = true }
}

// WithValidate sets CompileOptions.Validate. Compile does not act on it:
// no `valid:` constraint is checked at compile time, and all of them are
// enforced only while parsing.
func WithValidate(v bool) CompileOption {
	return func(o *CompileOptions) { o.Validate = v }
}

// Compile lowers source (raw .ksy YAML) into an executable Compiled
// schema: every expression-bearing string is parsed once here via
// pkg/expression, so pkg/kstruct never calls expression.Parse during an
// actual parse.
func Compile(source []byte, opts ...CompileOption) (*Compiled, error) {
	doc, err := ParseDocument(source)
	if err != nil {
		return nil, err
	}

	var options CompileOptions
	for _, o := range opts {
		o(&options)
	}

	c := &compiler{opts: options, allTypes: map[string]*CompiledType{}}

	rootName := doc.Meta.ID
	if rootName == "" {
		rootName = "root"
	}

	root := &CompiledType{
		Name:   rootName,
		Enums:  doc.Enums,
		Meta:   doc.Meta,
		Doc:    doc.Doc,
		Params: doc.Params,
	}
	c.allTypes[rootName] = root

	if err := c.compileTypeBody(root, doc.Seq, doc.Types, doc.Instances, doc.Enums, rootName); err != nil {
		return nil, err
	}

	return &Compiled{RootTypeName: rootName, Root: root, allTypes: c.allTypes}, nil
}

type compiler struct {
	opts     CompileOptions
	allTypes map[string]*CompiledType
}

// compileTypeBody lowers one type's seq/types/instances into ct, which the
// caller has already registered in c.allTypes under qualifiedName.
func (c *compiler) compileTypeBody(ct *CompiledType, seq []Attr, nested map[string]TypeDef, instances map[string]InstanceDef, enums map[string]EnumDef, qualifiedName string) error {
	seen := map[string]bool{}

	ct.Types = map[string]*CompiledType{}
	for name, def := range nested {
		childName := qualifiedName + "." + name
		child := &CompiledType{
			Name:   childName,
			Parent: ct,
			Meta:   def.Meta,
			Doc:    def.Doc,
			Params: def.Params,
			Enums:  mergeEnums(enums, def.Enums),
		}
		ct.Types[name] = child
		c.allTypes[childName] = child
	}
	// Second pass: compile bodies after all sibling names are registered,
	// so forward references between sibling types resolve.
	for name, def := range nested {
		child := ct.Types[name]
		if err := c.compileTypeBody(child, def.Seq, def.Types, def.Instances, child.Enums, child.Name); err != nil {
			return err
		}
	}

	for _, attr := range seq {
		if seen[attr.ID] {
			return &DuplicateFieldError{TypeName: qualifiedName, FieldID: attr.ID}
		}
		seen[attr.ID] = true
		compiled, err := c.compileAttr(ct, attr, qualifiedName)
		if err != nil {
			return err
		}
		if _, ok := ct.Enums[attr.Enum]; c.opts.Strict && attr.Enum != "" && !ok {
			return &UnresolvedEnumError{EnumName: attr.Enum, InType: qualifiedName}
		}
		ct.Seq = append(ct.Seq, compiled)
	}

	ct.Instances = map[string]*CompiledInstance{}
	for id, def := range instances {
		if seen[id] {
			return &DuplicateFieldError{TypeName: qualifiedName, FieldID: id}
		}
		seen[id] = true
		inst, err := c.compileInstance(ct, id, def, qualifiedName)
		if err != nil {
			return err
		}
		if _, ok := ct.Enums[def.Enum]; c.opts.Strict && def.Enum != "" && !ok {
			return &UnresolvedEnumError{EnumName: def.Enum, InType: qualifiedName}
		}
		ct.Instances[id] = inst
	}

	return nil
}

func mergeEnums(outer, inner map[string]EnumDef) map[string]EnumDef {
	merged := map[string]EnumDef{}
	for k, v := range outer {
		merged[k] = v
	}
	for k, v := range inner {
		merged[k] = v
	}
	return merged
}

func (c *compiler) parseExprField(typeName, fieldID, key, src string) (expression.Expr, error) {
	if src == "" {
		return nil, nil
	}
	e, err := expression.Parse(src)
	if err != nil {
		return nil, &InvalidExpressionError{TypeName: typeName, FieldID: fieldID, Key: key, Err: err}
	}
	return e, nil
}

func (c *compiler) compileAttr(ct *CompiledType, a Attr, typeName string) (*CompiledAttr, error) {
	out := &CompiledAttr{
		ID:       a.ID,
		SizeEOS:  a.SizeEOS,
		Enum:     a.Enum,
		Process:  a.Process,
		Include:  a.Include,
		Encoding: a.Encoding,
		Doc:      a.Doc,
		Consume:  true,
		EosError: true,
	}
	if a.Consume != nil {
		out.Consume = *a.Consume
	}
	if a.EosError != nil {
		out.EosError = *a.EosError
	}

	var err error
	if out.ValueExpr, err = c.parseExprField(typeName, a.ID, "value", a.Value); err != nil {
		return nil, err
	}
	if out.IfExpr, err = c.parseExprField(typeName, a.ID, "if", a.IfExpr); err != nil {
		return nil, err
	}
	if out.PosExpr, err = c.parseExprField(typeName, a.ID, "pos", a.Pos); err != nil {
		return nil, err
	}
	if out.RepeatUntilExpr, err = c.parseExprField(typeName, a.ID, "repeat-until", a.RepeatUntil); err != nil {
		return nil, err
	}
	if out.RepeatCountExpr, err = c.parseExprField(typeName, a.ID, "repeat-expr", a.RepeatExpr); err != nil {
		return nil, err
	}

	switch a.Repeat {
	case "expr":
		out.Repeat = RepeatExpr
	case "eos":
		out.Repeat = RepeatEOS
	case "until":
		out.Repeat = RepeatUntil
	case "":
		out.Repeat = RepeatNone
	default:
		return nil, fmt.Errorf("schema: %s.%s: unknown repeat kind %q", typeName, a.ID, a.Repeat)
	}

	if out.SizeExpr, err = c.compileSizeField(typeName, a.ID, a.Size); err != nil {
		return nil, err
	}

	if a.Terminator != nil {
		term, ok := toByteValue(a.Terminator)
		if !ok {
			return nil, fmt.Errorf("schema: %s.%s: invalid terminator value %v", typeName, a.ID, a.Terminator)
		}
		out.Terminator = term
		out.HasTerm = true
	}

	if a.Contents != nil {
		bytes, err := toContentBytes(a.Contents)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", typeName, a.ID, err)
		}
		out.Contents = bytes
	}

	if a.Valid != nil {
		out.Valid, err = c.compileValidation(typeName, a.ID, a.Valid)
		if err != nil {
			return nil, err
		}
	}

	out.Type, err = c.compileTypeSpec(ct, typeName, a.ID, a.Type)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// toContentBytes converts a `contents:` value, which Kaitai allows as a
// plain string (its UTF-8 bytes) or a mixed list of small ints and short
// strings concatenated together, into the literal byte sequence to match.
func toContentBytes(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []any:
		var out []byte
		for _, elem := range v {
			switch e := elem.(type) {
			case int:
				out = append(out, byte(e))
			case int64:
				out = append(out, byte(e))
			case string:
				out = append(out, []byte(e)...)
			default:
				return nil, fmt.Errorf("invalid contents element %v (%T)", e, e)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid contents value %v (%T)", v, v)
	}
}

func toByteValue(v any) (byte, bool) {
	switch n := v.(type) {
	case int:
		return byte(n), true
	case int64:
		return byte(n), true
	case uint64:
		return byte(n), true
	}
	return 0, false
}

// compileSizeField handles `size:` being either an integer literal or an
// expression string in the source YAML.
func (c *compiler) compileSizeField(typeName, fieldID string, size any) (expression.Expr, error) {
	switch v := size.(type) {
	case nil:
		return nil, nil
	case int:
		return &expression.IntLit{Value: int64(v)}, nil
	case int64:
		return &expression.IntLit{Value: v}, nil
	case string:
		return c.parseExprField(typeName, fieldID, "size", v)
	default:
		return nil, fmt.Errorf("schema: %s.%s: unsupported size value %v (%T)", typeName, fieldID, v, v)
	}
}

func (c *compiler) compileValidation(typeName, fieldID string, v *ValidationDef) (*CompiledValidation, error) {
	out := &CompiledValidation{Min: v.Min, Max: v.Max, AnyOf: v.AnyOf}
	if v.Scalar != nil {
		out.Scalar = v.Scalar
		out.HasEqual = true
	}
	if v.Expr != "" {
		e, err := c.parseExprField(typeName, fieldID, "valid.expr", v.Expr)
		if err != nil {
			return nil, err
		}
		out.ExprExpr = e
	}
	return out, nil
}

// compileTypeSpec resolves a seq/instance `type:` value, which is either:
//   - nil (a byte-string field with no further structure)
//   - a plain string: a builtin ("u4le") or a user type name, optionally
//     with arguments ("resource(idx, has_body)"), looked up through the
//     enclosing scopes; a dotted name ("header.flags") is rejected as an
//     invalid type designator
//   - a map: {switch-on: expr, cases: {...}}
func (c *compiler) compileTypeSpec(ct *CompiledType, typeName, fieldID string, raw any) (TypeSpec, error) {
	switch v := raw.(type) {
	case nil:
		return TypeSpec{Kind: TypeNone}, nil
	case string:
		return c.resolveNamedType(ct, typeName, v)
	case map[string]any:
		return c.compileSwitch(ct, typeName, fieldID, v)
	default:
		return TypeSpec{}, fmt.Errorf("schema: %s.%s: unsupported type specification %v (%T)", typeName, fieldID, v, v)
	}
}

func (c *compiler) compileSwitch(ct *CompiledType, typeName, fieldID string, raw map[string]any) (TypeSpec, error) {
	switchOnRaw, _ := raw["switch-on"].(string)
	casesRaw, _ := raw["cases"].(map[string]any)
	if generic, ok := raw["cases"].(map[any]any); ok {
		// yaml.v3 decodes a mapping with non-string keys (1, 2, _) this way.
		casesRaw = map[string]any{}
		for k, v := range generic {
			casesRaw[fmt.Sprint(k)] = v
		}
	}

	switchExpr, err := c.parseExprField(typeName, fieldID, "switch-on", switchOnRaw)
	if err != nil {
		return TypeSpec{}, err
	}

	spec := TypeSpec{Kind: TypeSwitch, SwitchOn: switchExpr, Cases: map[string]TypeSpec{}}
	for key, val := range casesRaw {
		valStr, _ := val.(string)
		caseSpec, err := c.resolveNamedType(ct, typeName, valStr)
		if err != nil {
			return TypeSpec{}, err
		}
		if key == "_" {
			spec.HasDefault = true
			spec.DefaultCase = caseSpec
			continue
		}
		spec.Cases[key] = caseSpec
	}
	return spec, nil
}

var builtinWidths = map[string]struct {
	kind   BuiltinKind
	endian Endianness
}{
	"u1": {BuiltinU1, EndianDefault}, "s1": {BuiltinS1, EndianDefault},
	"u2": {BuiltinU2, EndianDefault}, "u2le": {BuiltinU2, EndianLittle}, "u2be": {BuiltinU2, EndianBig},
	"u4": {BuiltinU4, EndianDefault}, "u4le": {BuiltinU4, EndianLittle}, "u4be": {BuiltinU4, EndianBig},
	"u8": {BuiltinU8, EndianDefault}, "u8le": {BuiltinU8, EndianLittle}, "u8be": {BuiltinU8, EndianBig},
	"s2": {BuiltinS2, EndianDefault}, "s2le": {BuiltinS2, EndianLittle}, "s2be": {BuiltinS2, EndianBig},
	"s4": {BuiltinS4, EndianDefault}, "s4le": {BuiltinS4, EndianLittle}, "s4be": {BuiltinS4, EndianBig},
	"s8": {BuiltinS8, EndianDefault}, "s8le": {BuiltinS8, EndianLittle}, "s8be": {BuiltinS8, EndianBig},
	"f4": {BuiltinF4, EndianDefault}, "f4le": {BuiltinF4, EndianLittle}, "f4be": {BuiltinF4, EndianBig},
	"f8": {BuiltinF8, EndianDefault}, "f8le": {BuiltinF8, EndianLittle}, "f8be": {BuiltinF8, EndianBig},
	"str": {BuiltinStr, EndianDefault}, "strz": {BuiltinStrZ, EndianDefault},
}

func (c *compiler) resolveNamedType(ct *CompiledType, typeName, name string) (TypeSpec, error) {
	if name == "" {
		return TypeSpec{Kind: TypeNone}, nil
	}
	baseName, args, err := parseTypeDesignator(name)
	if err != nil {
		return TypeSpec{}, fmt.Errorf("schema: %s: invalid type designator %q: %w", typeName, name, err)
	}

	if len(args) == 0 {
		if strings.HasPrefix(baseName, "b") && len(baseName) > 1 && isBitIntType(baseName) {
			width, little := parseBitIntType(baseName)
			return TypeSpec{Kind: TypeBuiltin, Builtin: BuiltinBitsInt, BitWidth: width, BitLittle: little}, nil
		}
		if b, ok := builtinWidths[baseName]; ok {
			return TypeSpec{Kind: TypeBuiltin, Builtin: b.kind, Endian: b.endian}, nil
		}
	}

	resolved := c.resolveUserType(ct, baseName)
	if resolved == nil {
		if c.opts.Strict {
			return TypeSpec{}, &UnresolvedTypeError{TypeName: baseName, InType: typeName}
		}
		// Non-strict: leave an unresolved marker; pkg/kstruct will fail at
		// first use if the type genuinely doesn't exist by parse time.
		return TypeSpec{Kind: TypeUser, User: nil, UserArgs: args}, nil
	}
	if len(resolved.Params) != len(args) {
		return TypeSpec{}, &ParamArityError{TypeName: baseName, Want: len(resolved.Params), Got: len(args)}
	}
	return TypeSpec{Kind: TypeUser, User: resolved, UserArgs: args}, nil
}

// parseTypeDesignator splits a `type:` string into its base name and,
// for a parameterized type call like "resource(idx, has_body)", the
// argument expressions. A bare name ("u2le", "resource") has no args.
// The same expression grammar used everywhere else in a schema (ident,
// call) describes this syntax, so it is parsed with expression.Parse
// rather than a bespoke splitter.
func parseTypeDesignator(name string) (string, []expression.Expr, error) {
	expr, err := expression.Parse(name)
	if err != nil {
		return "", nil, err
	}
	switch e := expr.(type) {
	case *expression.Ident:
		return e.Name, nil, nil
	case *expression.Call:
		callee, ok := e.Callee.(*expression.Ident)
		if !ok {
			return "", nil, fmt.Errorf("type name must be a plain identifier")
		}
		return callee.Name, e.Args, nil
	default:
		return "", nil, fmt.Errorf("not a valid type name")
	}
}

// resolveUserType walks the lexical scope chain from ct upward (ct's own
// nested types, then its parent's, and so on to the root), the same
// resolution order Kaitai Struct itself uses.
func (c *compiler) resolveUserType(ct *CompiledType, name string) *CompiledType {
	for scope := ct; scope != nil; scope = scope.Parent {
		if t, ok := scope.Types[name]; ok {
			return t
		}
		if scope.Name == name {
			return scope
		}
	}
	if t, ok := c.allTypes[name]; ok {
		return t
	}
	return nil
}

func isBitIntType(name string) bool {
	rest := strings.TrimSuffix(strings.TrimSuffix(name[1:], "le"), "be")
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseBitIntType(name string) (width int, little bool) {
	body := name[1:]
	little = strings.HasSuffix(body, "le")
	body = strings.TrimSuffix(strings.TrimSuffix(body, "le"), "be")
	for _, r := range body {
		width = width*10 + int(r-'0')
	}
	return width, little
}

func (c *compiler) compileInstance(ct *CompiledType, id string, def InstanceDef, typeName string) (*CompiledInstance, error) {
	out := &CompiledInstance{ID: id, SizeEOS: def.SizeEOS, Enum: def.Enum, Encoding: def.Encoding, Doc: def.Doc}
	var err error
	if out.ValueExpr, err = c.parseExprField(typeName, id, "value", def.Value); err != nil {
		return nil, err
	}
	if out.PosExpr, err = c.parseExprField(typeName, id, "pos", def.Pos); err != nil {
		return nil, err
	}
	if out.IfExpr, err = c.parseExprField(typeName, id, "if", def.IfExpr); err != nil {
		return nil, err
	}
	if out.SizeExpr, err = c.compileSizeField(typeName, id, def.Size); err != nil {
		return nil, err
	}
	if out.Type, err = c.compileTypeSpec(ct, typeName, id, def.Type); err != nil {
		return nil, err
	}
	return out, nil
}
