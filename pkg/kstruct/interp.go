package kstruct

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-kaitai/kstruct/internal/celeval"
	"github.com/go-kaitai/kstruct/internal/kbstream"
	"github.com/go-kaitai/kstruct/pkg/expression"
	"github.com/go-kaitai/kstruct/pkg/schema"
)

// FieldEnterFunc is called depth-first, before a field's value is read.
type FieldEnterFunc func(path string, offset int64, fieldName string)

// FieldExitFunc is called after a field (or repeated field element) has
// been fully read, with its final decoded value.
type FieldExitFunc func(path string, offset, size int64, fieldName string, value any)

// ErrorFunc is called when a field fails to parse, before the error
// propagates up the call stack.
type ErrorFunc func(path string, offset int64, err error)

// Interpreter walks a compiled schema against a byte stream, producing a
// tree of Object/Value nodes. It holds no per-parse state itself; ParseRoot
// can be called repeatedly against different buffers.
type Interpreter struct {
	schema *schema.Compiled
	pool   *celeval.Pool
	procs  *ProcessRegistry
	logger *slog.Logger

	onEnter FieldEnterFunc
	onExit  FieldExitFunc
	onError ErrorFunc
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger overrides the slog.Logger field_enter/field_exit/field_error
// debug records are written to. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ip *Interpreter) { ip.logger = logger }
}

// WithProcessRegistry overrides the set of `process:` transforms available
// to the schema being interpreted. Defaults to NewProcessRegistry().
func WithProcessRegistry(r *ProcessRegistry) Option {
	return func(ip *Interpreter) { ip.procs = r }
}

// WithFieldHooks wires observers for field enter/exit/error, letting a
// caller (pkg/kaitai) translate them into its own ParseEvent stream without
// this package knowing anything about that event type.
func WithFieldHooks(enter FieldEnterFunc, exit FieldExitFunc, errFn ErrorFunc) Option {
	return func(ip *Interpreter) {
		ip.onEnter = enter
		ip.onExit = exit
		ip.onError = errFn
	}
}

// NewInterpreter builds an Interpreter over a compiled schema.
func NewInterpreter(compiled *schema.Compiled, opts ...Option) (*Interpreter, error) {
	pool, err := celeval.NewPool()
	if err != nil {
		return nil, fmt.Errorf("kstruct: building expression pool: %w", err)
	}
	ip := &Interpreter{
		schema: compiled,
		pool:   pool,
		procs:  NewProcessRegistry(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(ip)
	}
	return ip, nil
}

// ParseRoot parses data against the schema's root type.
func (ip *Interpreter) ParseRoot(ctx context.Context, data []byte) (*Object, error) {
	return ip.parseRootType(ctx, ip.schema.Root, data)
}

// ParseRootType parses data treating typeName — looked up in the compiled
// schema by its fully-qualified name — as the root, rather than the
// schema's own top-level type. Lets a caller target any named type in a
// multi-type schema directly.
func (ip *Interpreter) ParseRootType(ctx context.Context, typeName string, data []byte) (*Object, error) {
	ct, ok := ip.schema.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("kstruct: unknown root type %q", typeName)
	}
	return ip.parseRootType(ctx, ct, data)
}

func (ip *Interpreter) parseRootType(ctx context.Context, ct *schema.CompiledType, data []byte) (*Object, error) {
	io := kbstream.New(data)
	root := newObject(ct, nil, nil, io)
	root.Root = root
	p := newPath(ct.Name)
	if err := ip.readSeq(ctx, root, ct.Seq, p); err != nil {
		return nil, err
	}
	return root, nil
}

// parseType parses a nested user-typed object sharing (or bounded within) a
// substream, with parent/root context already established. args binds the
// callee's declared params (by id) to values already evaluated in the
// caller's scope, for a parameterized type instantiation.
func (ip *Interpreter) parseType(ctx context.Context, ct *schema.CompiledType, parent, root *Object, io *kbstream.Stream, p *path, args map[string]any) (*Object, error) {
	obj := newObject(ct, parent, root, io)
	obj.Args = args
	if err := ip.readSeq(ctx, obj, ct.Seq, p); err != nil {
		return nil, err
	}
	return obj, nil
}

// bindTypeArgs evaluates a parameterized type's call-site argument
// expressions in the caller's scope and binds them to the callee's
// declared parameter ids, positionally. compileTypeSpec/resolveNamedType
// already enforce that len(args) == len(ct.Params) at compile time.
func (ip *Interpreter) bindTypeArgs(obj *Object, ct *schema.CompiledType, args []expression.Expr) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	bound := make(map[string]any, len(args))
	for i, argExpr := range args {
		v, err := ip.evalExpr(obj, argExpr)
		if err != nil {
			return nil, err
		}
		bound[ct.Params[i].ID] = v
	}
	return bound, nil
}

func (ip *Interpreter) readSeq(ctx context.Context, obj *Object, attrs []*schema.CompiledAttr, p *path) error {
	for _, a := range attrs {
		if err := ip.readAttr(ctx, obj, a, p.push(a.ID)); err != nil {
			ip.reportError(p.push(a.ID).String(), obj.IO.Pos(), err)
			return err
		}
	}
	return nil
}

func (ip *Interpreter) reportError(pathStr string, offset int64, err error) {
	ip.logger.Error("field parse failed", "path", pathStr, "offset", offset, "err", err)
	if ip.onError != nil {
		ip.onError(pathStr, offset, err)
	}
}

// readAttr implements the per-field protocol: if -> pos -> size -> dispatch
// -> repeat -> restore pos.
func (ip *Interpreter) readAttr(ctx context.Context, obj *Object, a *schema.CompiledAttr, p *path) error {
	ip.logger.DebugContext(ctx, "field enter", "path", p.String(), "offset", obj.IO.Pos())
	if ip.onEnter != nil {
		ip.onEnter(p.String(), obj.IO.Pos(), a.ID)
	}

	if a.IfExpr != nil {
		v, err := ip.evalExpr(obj, a.IfExpr)
		if err != nil {
			return &ParseError{Path: p.String(), Err: err}
		}
		if !truthy(v) {
			ip.logger.DebugContext(ctx, "field skipped (if false)", "path", p.String())
			return nil
		}
	}

	if a.ValueExpr != nil {
		v, err := ip.evalExpr(obj, a.ValueExpr)
		if err != nil {
			return &ParseError{Path: p.String(), Err: err}
		}
		obj.set(a.ID, &Value{Raw: v})
		ip.exitField(ctx, p, obj.IO.Pos(), 0, a.ID, v)
		return nil
	}

	savedPos := int64(-1)
	if a.PosExpr != nil {
		pos, err := ip.evalInt(obj, a.PosExpr)
		if err != nil {
			return &ParseError{Path: p.String(), Err: err}
		}
		savedPos = obj.IO.Pos()
		if err := obj.IO.Seek(pos); err != nil {
			return &ParseError{Path: p.String(), Err: err}
		}
	}

	var retErr error
	switch {
	case len(a.Contents) > 0:
		retErr = ip.readContents(ctx, obj, a, p)
	default:
		retErr = ip.readRepeated(ctx, obj, a, p)
	}

	if savedPos >= 0 {
		if err := obj.IO.Seek(savedPos); err != nil && retErr == nil {
			retErr = &ParseError{Path: p.String(), Err: err}
		}
	}
	if retErr == nil {
		if v, ok := obj.fields[a.ID]; ok {
			ip.exitField(ctx, p, v.Meta.Offset, v.Meta.Length, a.ID, v.Raw)
		}
	}
	return retErr
}

func (ip *Interpreter) exitField(ctx context.Context, p *path, offset, size int64, fieldName string, value any) {
	ip.logger.DebugContext(ctx, "field exit", "path", p.String(), "offset", offset, "size", size)
	if ip.onExit != nil {
		ip.onExit(p.String(), offset, size, fieldName, value)
	}
}

func (ip *Interpreter) readContents(ctx context.Context, obj *Object, a *schema.CompiledAttr, p *path) error {
	start := obj.IO.Pos()
	got, err := obj.IO.ReadBytes(len(a.Contents))
	if err != nil {
		return &ParseError{Path: p.String(), Err: err}
	}
	if !bytes.Equal(got, a.Contents) {
		return &ParseError{Path: p.String(), Err: &ContentsMismatchError{FieldID: a.ID, Expected: a.Contents, Actual: got}}
	}
	v := &Value{Raw: got, Meta: FieldMeta{Offset: start, Length: int64(len(got))}}
	obj.set(a.ID, v)
	return nil
}

func (ip *Interpreter) readRepeated(ctx context.Context, obj *Object, a *schema.CompiledAttr, p *path) error {
	rs := attrReadSpec(a)

	readOne := func(idx int) (*Value, error) {
		elemPath := p
		if a.Repeat != schema.RepeatNone {
			elemPath = p.pushIndex(idx)
		}
		v, err := ip.readTypedValue(ctx, obj, rs, elemPath)
		if err != nil {
			return nil, err
		}
		if err := ip.checkValid(obj, a.ID, a.Valid, v.Raw); err != nil {
			return nil, &ParseError{Path: elemPath.String(), Err: err}
		}
		return v, nil
	}

	switch a.Repeat {
	case schema.RepeatNone:
		v, err := readOne(0)
		if err != nil {
			return err
		}
		obj.set(a.ID, v)
		return nil

	case schema.RepeatExpr:
		count, err := ip.evalInt(obj, a.RepeatCountExpr)
		if err != nil {
			return &ParseError{Path: p.String(), Err: err}
		}
		out := make([]*Value, 0, count)
		for i := int64(0); i < count; i++ {
			v, err := readOne(int(i))
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		obj.set(a.ID, &Value{Raw: out})
		return nil

	case schema.RepeatEOS:
		var out []*Value
		for !obj.IO.IsEOF() {
			v, err := readOne(len(out))
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		obj.set(a.ID, &Value{Raw: out})
		return nil

	case schema.RepeatUntil:
		var out []*Value
		for {
			v, err := readOne(len(out))
			if err != nil {
				return err
			}
			out = append(out, v)
			stop, err := ip.evalExprSelf(obj, a.RepeatUntilExpr, v.Raw, true)
			if err != nil {
				return &ParseError{Path: p.String(), Err: err}
			}
			if truthy(stop) {
				break
			}
			if obj.IO.IsEOF() {
				break
			}
		}
		obj.set(a.ID, &Value{Raw: out})
		return nil

	default:
		return &ParseError{Path: p.String(), Err: fmt.Errorf("kstruct: unknown repeat kind %v", a.Repeat)}
	}
}

// readSpec bundles the parameters governing how one occurrence of a field
// (a seq attribute or an instance) is read, shared between CompiledAttr and
// CompiledInstance via attrReadSpec/instReadSpec.
type readSpec struct {
	Type schema.TypeSpec

	SizeExpr expression.Expr
	SizeEOS  bool

	HasTerm    bool
	Terminator byte
	Include    bool
	Consume    bool
	EosError   bool

	Encoding string
	Process  string
	Enum     string
	FieldID  string
}

func attrReadSpec(a *schema.CompiledAttr) readSpec {
	return readSpec{
		Type:       a.Type,
		SizeExpr:   a.SizeExpr,
		SizeEOS:    a.SizeEOS,
		HasTerm:    a.HasTerm,
		Terminator: a.Terminator,
		Include:    a.Include,
		Consume:    a.Consume,
		EosError:   a.EosError,
		Encoding:   a.Encoding,
		Process:    a.Process,
		Enum:       a.Enum,
		FieldID:    a.ID,
	}
}

func instReadSpec(inst *schema.CompiledInstance) readSpec {
	return readSpec{
		Type:     inst.Type,
		SizeExpr: inst.SizeExpr,
		SizeEOS:  inst.SizeEOS,
		Consume:  true,
		EosError: true,
		Encoding: inst.Encoding,
		Enum:     inst.Enum,
		FieldID:  inst.ID,
	}
}

// readTypedValue dispatches on rs.Type.Kind: a plain byte-string field, a
// builtin scalar, a user type (recursing into parseType), or a switch (once
// resolved, re-dispatches with the chosen case's TypeSpec).
func (ip *Interpreter) readTypedValue(ctx context.Context, obj *Object, rs readSpec, p *path) (*Value, error) {
	start := obj.IO.Pos()
	switch rs.Type.Kind {
	case schema.TypeNone:
		raw, err := ip.readRawBytes(obj, rs)
		if err != nil {
			return nil, &ParseError{Path: p.String(), Err: err}
		}
		raw, err = ip.applyProcess(raw, rs.Process)
		if err != nil {
			return nil, &ParseError{Path: p.String(), Err: err}
		}
		var value any = raw
		if rs.Encoding != "" {
			s, err := decodeString(raw, effectiveEncoding(obj.Type, rs.Encoding))
			if err != nil {
				return nil, &ParseError{Path: p.String(), Err: err}
			}
			value = s
		}
		return ip.finishEnum(obj, rs, value, start, int64(len(raw))), nil

	case schema.TypeBuiltin:
		return ip.readBuiltin(ctx, obj, rs, start, p)

	case schema.TypeUser:
		return ip.readUser(ctx, obj, rs, start, p)

	case schema.TypeSwitch:
		resolved, err := ip.resolveSwitch(obj.Type, rs.Type, obj, rs.FieldID)
		if err != nil {
			return nil, &ParseError{Path: p.String(), Err: err}
		}
		rs.Type = resolved
		return ip.readTypedValue(ctx, obj, rs, p)

	default:
		return nil, &ParseError{Path: p.String(), Err: fmt.Errorf("kstruct: field %q: unhandled type kind %v", rs.FieldID, rs.Type.Kind)}
	}
}

func (ip *Interpreter) readBuiltin(ctx context.Context, obj *Object, rs readSpec, start int64, p *path) (*Value, error) {
	io := obj.IO
	endian := effectiveEndian(obj.Type, rs.Type.Endian)

	var (
		value any
		err   error
	)
	switch rs.Type.Builtin {
	case schema.BuiltinU1:
		value, err = io.ReadU1()
	case schema.BuiltinS1:
		value, err = io.ReadS1()
	case schema.BuiltinU2:
		value, err = io.ReadU2(endian)
	case schema.BuiltinS2:
		value, err = io.ReadS2(endian)
	case schema.BuiltinU4:
		value, err = io.ReadU4(endian)
	case schema.BuiltinS4:
		value, err = io.ReadS4(endian)
	case schema.BuiltinU8:
		value, err = io.ReadU8(endian)
	case schema.BuiltinS8:
		value, err = io.ReadS8(endian)
	case schema.BuiltinF4:
		value, err = io.ReadF4(endian)
	case schema.BuiltinF8:
		value, err = io.ReadF8(endian)
	case schema.BuiltinBitsInt:
		var v uint64
		if rs.Type.BitLittle {
			v, err = io.ReadBitsLE(rs.Type.BitWidth)
		} else {
			v, err = io.ReadBitsBE(rs.Type.BitWidth)
		}
		value = v
	case schema.BuiltinStr:
		return ip.readStr(ctx, obj, rs, start, p, false)
	case schema.BuiltinStrZ:
		return ip.readStr(ctx, obj, rs, start, p, true)
	default:
		return nil, &ParseError{Path: p.String(), Err: fmt.Errorf("kstruct: field %q: unhandled builtin kind %v", rs.FieldID, rs.Type.Builtin)}
	}
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}
	length := io.Pos() - start
	return ip.finishEnum(obj, rs, value, start, length), nil
}

func (ip *Interpreter) readStr(ctx context.Context, obj *Object, rs readSpec, start int64, p *path, zeroTerminated bool) (*Value, error) {
	if zeroTerminated && rs.SizeExpr == nil && !rs.SizeEOS && !rs.HasTerm {
		rs.HasTerm = true
		rs.Terminator = 0
		rs.Consume = true
		rs.Include = false
		rs.EosError = false
	}
	raw, err := ip.readRawBytes(obj, rs)
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}
	raw, err = ip.applyProcess(raw, rs.Process)
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}
	s, err := decodeString(raw, effectiveEncoding(obj.Type, rs.Encoding))
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}
	return ip.finishEnum(obj, rs, s, start, obj.IO.Pos()-start), nil
}

func (ip *Interpreter) readUser(ctx context.Context, obj *Object, rs readSpec, start int64, p *path) (*Value, error) {
	length, err := ip.computeLength(obj, rs.SizeExpr, rs.SizeEOS)
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}

	if rs.Type.User == nil {
		return nil, &ParseError{Path: p.String(), Err: &UnresolvedTypeError{FieldID: rs.FieldID}}
	}

	args, err := ip.bindTypeArgs(obj, rs.Type.User, rs.Type.UserArgs)
	if err != nil {
		return nil, &ParseError{Path: p.String(), Err: err}
	}

	var sub *kbstream.Stream
	if length >= 0 {
		sub, err = obj.IO.Substream(start, length)
		if err != nil {
			return nil, &ParseError{Path: p.String(), Err: err}
		}
		if rs.Process != "" {
			raw, err := sub.ReadBytesFull()
			if err != nil {
				return nil, &ParseError{Path: p.String(), Err: err}
			}
			raw, err = ip.applyProcess(raw, rs.Process)
			if err != nil {
				return nil, &ParseError{Path: p.String(), Err: err}
			}
			sub = kbstream.New(raw)
		}
		if err := obj.IO.Seek(start + length); err != nil {
			return nil, &ParseError{Path: p.String(), Err: err}
		}
	} else {
		sub = obj.IO
	}

	child, err := ip.parseType(ctx, rs.Type.User, obj, obj.Root, sub, p.push(rs.FieldID), args)
	if err != nil {
		return nil, err
	}

	actualLength := length
	if actualLength < 0 {
		actualLength = sub.Pos() - start
	}
	return &Value{Raw: child, Meta: FieldMeta{Offset: start, Length: actualLength}}, nil
}

func (ip *Interpreter) finishEnum(obj *Object, rs readSpec, value any, offset, length int64) *Value {
	if rs.Enum != "" && obj.Type != nil {
		if n, ok := toInt64Maybe(value); ok {
			def := obj.Type.Enums[rs.Enum]
			value = EnumValue{Value: n, Name: def[n]}
		}
	}
	return &Value{Raw: value, Meta: FieldMeta{Offset: offset, Length: length}}
}

func (ip *Interpreter) readRawBytes(obj *Object, rs readSpec) ([]byte, error) {
	switch {
	case rs.SizeExpr != nil:
		n, err := ip.evalInt(obj, rs.SizeExpr)
		if err != nil {
			return nil, err
		}
		raw, err := obj.IO.ReadBytes(int(n))
		if err != nil || !rs.HasTerm {
			return raw, err
		}
		// With both size and terminator, the terminator ends the value
		// inside the sized region; the whole region is still consumed.
		return kbstream.New(raw).ReadBytesTerm(rs.Terminator, rs.Include, true, rs.EosError)
	case rs.SizeEOS:
		return obj.IO.ReadBytesFull()
	case rs.HasTerm:
		return obj.IO.ReadBytesTerm(rs.Terminator, rs.Include, rs.Consume, rs.EosError)
	default:
		return obj.IO.ReadBytesFull()
	}
}

func (ip *Interpreter) computeLength(obj *Object, sizeExpr expression.Expr, sizeEOS bool) (int64, error) {
	if sizeExpr != nil {
		return ip.evalInt(obj, sizeExpr)
	}
	if sizeEOS {
		return obj.IO.BytesRemaining(), nil
	}
	return -1, nil
}

func (ip *Interpreter) applyProcess(raw []byte, spec string) ([]byte, error) {
	if spec == "" {
		return raw, nil
	}
	return ip.procs.Apply(raw, spec)
}

// resolveSwitch evaluates a switch's discriminant and finds its matching
// case, first by the literal string form of the value, then (for keys of
// the `enum_name::member` shape) by resolving the member name against the
// owning type's visible enum tables, falling back to the default ("_")
// case.
func (ip *Interpreter) resolveSwitch(ct *schema.CompiledType, spec schema.TypeSpec, obj *Object, fieldID string) (schema.TypeSpec, error) {
	val, err := ip.evalExpr(obj, spec.SwitchOn)
	if err != nil {
		return schema.TypeSpec{}, err
	}
	key := switchKeyString(val)
	if cs, ok := spec.Cases[key]; ok {
		return cs, nil
	}
	if ct != nil {
		for k, cs := range spec.Cases {
			enumName, memberName, isQualified := splitEnumCase(k)
			if !isQualified {
				continue
			}
			def, ok := ct.Enums[enumName]
			if !ok {
				continue
			}
			for num, name := range def {
				if name == memberName && switchKeyString(num) == key {
					return cs, nil
				}
			}
		}
	}
	if spec.HasDefault {
		return spec.DefaultCase, nil
	}
	return schema.TypeSpec{}, &UnknownSwitchCaseError{FieldID: fieldID, Value: val}
}

func splitEnumCase(key string) (enumName, memberName string, ok bool) {
	for i := 0; i+1 < len(key); i++ {
		if key[i] == ':' && key[i+1] == ':' {
			return key[:i], key[i+2:], true
		}
	}
	return "", "", false
}

func switchKeyString(val any) string {
	switch v := val.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// evalInstance lazily evaluates and memoizes a type's `instances:` entry,
// detecting and rejecting re-entrant evaluation (an instance whose own
// expression, directly or transitively, depends on itself).
func (ip *Interpreter) evalInstance(obj *Object, name string) (*Value, error) {
	if v, ok := obj.instances[name]; ok {
		return v, nil
	}
	if obj.instanceInFlight[name] {
		return nil, &CircularInstanceError{TypeName: obj.TypeName, InstanceName: name}
	}
	inst, ok := obj.Type.Instances[name]
	if !ok {
		return nil, &UnboundIdentifierError{Name: name}
	}

	obj.instanceInFlight[name] = true
	defer delete(obj.instanceInFlight, name)

	if inst.IfExpr != nil {
		v, err := ip.evalExpr(obj, inst.IfExpr)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			absent := &Value{Raw: nil}
			obj.instances[name] = absent
			return absent, nil
		}
	}

	if inst.ValueExpr != nil {
		v, err := ip.evalExpr(obj, inst.ValueExpr)
		if err != nil {
			return nil, err
		}
		val := &Value{Raw: v}
		obj.instances[name] = val
		return val, nil
	}

	savedPos := obj.IO.Pos()
	if inst.PosExpr != nil {
		pos, err := ip.evalInt(obj, inst.PosExpr)
		if err != nil {
			return nil, err
		}
		if err := obj.IO.Seek(pos); err != nil {
			return nil, err
		}
	}

	rs := instReadSpec(inst)
	val, err := ip.readTypedValue(context.Background(), obj, rs, newPath(obj.TypeName).push(name))
	if seekErr := obj.IO.Seek(savedPos); seekErr != nil && err == nil {
		err = seekErr
	}
	if err != nil {
		return nil, err
	}
	obj.instances[name] = val
	return val, nil
}

// resolveIdent resolves a plain identifier referenced by an expression
// against obj's own fields, then its instances (triggering lazy
// evaluation), then its construction args. It deliberately does not climb
// the parent chain: parent-scope access requires the explicit _parent.x
// syntax, matching Kaitai Struct's own scoping rules.
func (ip *Interpreter) resolveIdent(obj *Object, name string) (any, error) {
	if v, ok := obj.fields[name]; ok {
		return flattenValue(v.Raw), nil
	}
	if v, ok := obj.instances[name]; ok {
		return flattenValue(v.Raw), nil
	}
	if obj.Type != nil {
		if _, ok := obj.Type.Instances[name]; ok {
			v, err := ip.evalInstance(obj, name)
			if err != nil {
				return nil, err
			}
			return flattenValue(v.Raw), nil
		}
	}
	if v, ok := obj.Args[name]; ok {
		return v, nil
	}
	return nil, &UnboundIdentifierError{Name: name}
}

func (ip *Interpreter) evalExpr(obj *Object, e expression.Expr) (any, error) {
	return ip.evalExprSelf(obj, e, nil, false)
}

// EvaluateText parses exprText and evaluates it against obj's own scope
// (its fields, then its lazy instances, then its constructor args — never
// the parent chain implicitly), using pool for CEL compilation. It takes
// no *Interpreter because a REPL session over an already-parsed tree has
// no live schema/hooks to thread through. Referencing a lazy instance that
// has not been computed yet still reads from obj's stream, so the
// interpreter built here carries the default logger and process registry.
func EvaluateText(pool *celeval.Pool, obj *Object, exprText string) (any, error) {
	node, err := expression.Parse(exprText)
	if err != nil {
		return nil, err
	}
	ip := &Interpreter{pool: pool, procs: NewProcessRegistry(), logger: slog.Default()}
	return ip.evalExpr(obj, node)
}

func (ip *Interpreter) evalInt(obj *Object, e expression.Expr) (int64, error) {
	v, err := ip.evalExpr(obj, e)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

func (ip *Interpreter) evalExprSelf(obj *Object, e expression.Expr, self any, hasSelf bool) (any, error) {
	if e == nil {
		return nil, nil
	}
	prog, err := ip.pool.CompileExpr(e)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"_io":              ip.ioSnapshot(obj),
		"_bytes_remaining": obj.IO.BytesRemaining(),
		"_parent":          flattenObjectPtr(obj.Parent),
		"_root":            flattenObjectPtr(obj.Root),
	}
	if hasSelf {
		vars["_"] = flattenValue(self)
	}
	for _, name := range prog.Idents() {
		v, err := ip.resolveIdent(obj, name)
		if err != nil {
			return nil, err
		}
		vars[name] = v
	}
	return prog.Eval(vars)
}

func (ip *Interpreter) ioSnapshot(obj *Object) map[string]any {
	return map[string]any{
		"pos":  obj.IO.Pos(),
		"size": obj.IO.Size(),
		"eof":  obj.IO.IsEOF(),
	}
}

func flattenObjectPtr(o *Object) any {
	if o == nil {
		return nil
	}
	return o.ToMap()
}

// checkValid enforces a `valid:` constraint against a field's just-decoded
// value.
func (ip *Interpreter) checkValid(obj *Object, fieldID string, valid *schema.CompiledValidation, raw any) error {
	if valid == nil {
		return nil
	}
	if valid.HasEqual && !valuesEqual(raw, valid.Scalar) {
		return &ValidationFailedError{FieldID: fieldID, Reason: fmt.Sprintf("expected %v, got %v", valid.Scalar, raw)}
	}
	if valid.Min != nil {
		got, ok1 := toFloat64(raw)
		want, ok2 := toFloat64(valid.Min)
		if ok1 && ok2 && got < want {
			return &ValidationFailedError{FieldID: fieldID, Reason: fmt.Sprintf("%v is below minimum %v", raw, valid.Min)}
		}
	}
	if valid.Max != nil {
		got, ok1 := toFloat64(raw)
		want, ok2 := toFloat64(valid.Max)
		if ok1 && ok2 && got > want {
			return &ValidationFailedError{FieldID: fieldID, Reason: fmt.Sprintf("%v is above maximum %v", raw, valid.Max)}
		}
	}
	if len(valid.AnyOf) > 0 {
		matched := false
		for _, candidate := range valid.AnyOf {
			if valuesEqual(raw, candidate) {
				matched = true
				break
			}
		}
		if !matched {
			return &ValidationFailedError{FieldID: fieldID, Reason: fmt.Sprintf("%v is not one of %v", raw, valid.AnyOf)}
		}
	}
	if valid.ExprExpr != nil {
		result, err := ip.evalExprSelf(obj, valid.ExprExpr, raw, true)
		if err != nil {
			return err
		}
		if !truthy(result) {
			return &ValidationFailedError{FieldID: fieldID, Reason: "valid.expr evaluated to false"}
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case EnumValue:
		return float64(n.Value), true
	default:
		return 0, false
	}
}

func toInt64Maybe(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, error) {
	if n, ok := toInt64Maybe(v); ok {
		return n, nil
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("kstruct: expected an integer value, got %T (%v)", v, v)
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	default:
		return true
	}
}

// effectiveEndian resolves a field's byte order: the TypeSpec's own
// explicit endian suffix (u4le/u4be) wins; otherwise the nearest enclosing
// type's `meta: endian:` applies, walking outward to the root.
func effectiveEndian(ct *schema.CompiledType, specEndian schema.Endianness) kbstream.Endian {
	switch specEndian {
	case schema.EndianLittle:
		return kbstream.LittleEndian
	case schema.EndianBig:
		return kbstream.BigEndian
	}
	for t := ct; t != nil; t = t.Parent {
		switch t.Meta.Endian {
		case "le":
			return kbstream.LittleEndian
		case "be":
			return kbstream.BigEndian
		}
	}
	return kbstream.BigEndian
}

// effectiveEncoding resolves a field's string encoding: its own explicit
// `encoding:` wins; otherwise the nearest enclosing type's `meta: encoding:`
// applies, walking outward to the root; "" (UTF-8 passthrough) otherwise.
func effectiveEncoding(ct *schema.CompiledType, fieldEncoding string) string {
	if fieldEncoding != "" {
		return fieldEncoding
	}
	for t := ct; t != nil; t = t.Parent {
		if t.Meta.Encoding != "" {
			return t.Meta.Encoding
		}
	}
	return ""
}
