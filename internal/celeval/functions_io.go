package celeval

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// ioFunctions exposes `_io.pos`, `_io.size`, `_io.eof` as CEL functions
// rather than struct fields: the value bound to `_io` in an activation is
// a plain map (built by pkg/kstruct from the live stream cursor at
// evaluation time, see kstruct.ioSnapshot), and these read fixed keys out
// of it.
func ioFunctions() cel.EnvOption {
	return cel.Lib(&ioLib{})
}

type ioLib struct{}

func ioMapGet(v ref.Val, key string) (ref.Val, error) {
	m, ok := v.(traits.Mapper)
	if !ok {
		return nil, errNotAnIOHandle
	}
	val, found := m.Find(types.String(key))
	if !found {
		return nil, errNotAnIOHandle
	}
	return val, nil
}

func (*ioLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("ioPos",
			cel.Overload("iopos_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					val, err := ioMapGet(v, "pos")
					if err != nil {
						return types.NewErr("%s", err.Error())
					}
					return val
				}),
			),
		),
		cel.Function("ioSize",
			cel.Overload("iosize_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					val, err := ioMapGet(v, "size")
					if err != nil {
						return types.NewErr("%s", err.Error())
					}
					return val
				}),
			),
		),
		cel.Function("ioEof",
			cel.Overload("ioeof_dyn", []*cel.Type{cel.DynType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					val, err := ioMapGet(v, "eof")
					if err != nil {
						return types.NewErr("%s", err.Error())
					}
					return val
				}),
			),
		),
	}
}

func (*ioLib) ProgramOptions() []cel.ProgramOption { return nil }

// sizeAlignFunctions backs the `sizeof`/`alignof` expression forms.
// Kaitai measures the serialized size/alignment of a *field*, which is
// metadata the type interpreter records per field as it parses (see
// kstruct.FieldMeta), not something derivable from the field's decoded
// value alone. Values handed to these functions are therefore expected to
// be the same kind of map _io uses, carrying "_size"/"_align" keys;
// plain strings/bytes fall back to their natural length.
func sizeAlignFunctions() cel.EnvOption {
	return cel.Lib(&sizeAlignLib{})
}

type sizeAlignLib struct{}

func (*sizeAlignLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("sizeOf",
			cel.Overload("sizeof_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return sizeOfVal(v)
				}),
			),
		),
		cel.Function("alignOf",
			cel.Overload("alignof_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if val, err := ioMapGet(v, "_align"); err == nil {
						return val
					}
					return types.Int(1)
				}),
			),
		),
	}
}

func sizeOfVal(v ref.Val) ref.Val {
	if val, err := ioMapGet(v, "_size"); err == nil {
		return val
	}
	switch val := v.(type) {
	case types.Bytes:
		return types.Int(len(val))
	case types.String:
		return types.Int(len(string(val)))
	case traits.Sizer:
		return val.Size()
	default:
		return types.NewErr("sizeOf: value has no known size")
	}
}

func (*sizeAlignLib) ProgramOptions() []cel.ProgramOption { return nil }
