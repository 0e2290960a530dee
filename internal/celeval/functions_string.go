package celeval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"golang.org/x/text/encoding/ianaindex"
)

// stringFunctions backs Kaitai's `.to_s`, `.to_i`, `.to_f`, `.length`,
// `.size`, `.reverse`, `.substring` value methods. The AST transform
// (transform.go's VisitCall) rewrites the surface method-call syntax
// `recv.fn(args)` into a plain global call `fn(recv, args)`, so every one
// of these is declared as a global cel.Function/cel.Overload rather than
// a cel.MemberOverload.
func stringFunctions() cel.EnvOption {
	return cel.Lib(&stringLib{})
}

type stringLib struct{}

func (*stringLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("to_s",
			cel.Overload("to_s_dyn", []*cel.Type{cel.DynType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					switch val := v.(type) {
					case types.String:
						return val
					case types.Bytes:
						return types.String(string(val))
					default:
						return types.String(v.ConvertToType(types.StringType).Value().(string))
					}
				}),
			),
			cel.Overload("to_s_dyn_encoding", []*cel.Type{cel.DynType, cel.StringType}, cel.StringType,
				cel.BinaryBinding(func(v, encVal ref.Val) ref.Val {
					encName, ok := encVal.(types.String)
					if !ok {
						return types.NewErr("to_s: encoding argument must be a string")
					}
					var raw []byte
					switch val := v.(type) {
					case types.Bytes:
						raw = []byte(val)
					case types.String:
						raw = []byte(string(val))
					default:
						return types.NewErr("to_s: cannot decode %T with an encoding", v.Value())
					}
					s, err := decodeWithEncoding(raw, string(encName))
					if err != nil {
						return types.NewErr("%v", err)
					}
					return types.String(s)
				}),
			),
		),
		cel.Function("to_i",
			cel.Overload("to_i_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					switch val := v.(type) {
					case types.String:
						n, err := strconv.ParseInt(string(val), 10, 64)
						if err != nil {
							return types.NewErr("to_i: %v", err)
						}
						return types.Int(n)
					case types.Int, types.Uint, types.Double:
						return val.ConvertToType(types.IntType)
					default:
						return types.NewErr("to_i: cannot convert %T", v.Value())
					}
				}),
			),
		),
		cel.Function("to_f",
			cel.Overload("to_f_dyn", []*cel.Type{cel.DynType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					switch val := v.(type) {
					case types.String:
						f, err := strconv.ParseFloat(string(val), 64)
						if err != nil {
							return types.NewErr("to_f: %v", err)
						}
						return types.Double(f)
					case types.Int, types.Uint, types.Double:
						return val.ConvertToType(types.DoubleType)
					default:
						return types.NewErr("to_f: cannot convert %T", v.Value())
					}
				}),
			),
		),
		cel.Function("reverse",
			cel.Overload("reverse_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s := []rune(string(v.(types.String)))
					for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
						s[i], s[j] = s[j], s[i]
					}
					return types.String(string(s))
				}),
			),
		),
		cel.Function("length",
			cel.Overload("length_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return sizeOfValue("length", v) }),
			),
		),
		cel.Function("size",
			cel.Overload("size_dyn", []*cel.Type{cel.DynType}, cel.IntType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return sizeOfValue("size", v) }),
			),
		),
		cel.Function("substring",
			cel.Overload("substring_string_int_int", []*cel.Type{cel.StringType, cel.IntType, cel.IntType}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					str, ok := args[0].(types.String)
					if !ok {
						return types.NewErr("substring: first argument must be a string")
					}
					from, ok := args[1].(types.Int)
					if !ok {
						return types.NewErr("substring: second argument must be an int")
					}
					to, ok := args[2].(types.Int)
					if !ok {
						return types.NewErr("substring: third argument must be an int")
					}

					runes := []rune(string(str))
					start, end := int(from), int(to)
					if start < 0 {
						start = 0
					}
					if end > len(runes) {
						end = len(runes)
					}
					if start >= end || start >= len(runes) {
						return types.String("")
					}
					return types.String(string(runes[start:end]))
				}),
			),
		),
	}
}

func (*stringLib) ProgramOptions() []cel.ProgramOption { return nil }

// sizeOfValue backs both `.length` and `.size`: character count for a
// string, byte count for a byte array, element count for anything else
// that implements CEL's Sizer trait (a list or map).
func sizeOfValue(name string, v ref.Val) ref.Val {
	switch val := v.(type) {
	case types.String:
		return types.Int(len([]rune(string(val))))
	case types.Bytes:
		return types.Int(len(val))
	default:
		if sizer, ok := v.(traits.Sizer); ok {
			return sizer.Size()
		}
		return types.NewErr("%s: unsupported type %T", name, v.Value())
	}
}

// decodeWithEncoding mirrors pkg/kstruct's decodeString: UTF-8/ASCII pass
// through raw, anything else is looked up by IANA name and decoded.
func decodeWithEncoding(raw []byte, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "ASCII") {
		return string(raw), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("celeval: unknown string encoding %q: %w", name, err)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("celeval: decoding bytes as %s: %w", name, err)
	}
	return string(decoded), nil
}
