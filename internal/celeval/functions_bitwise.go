package celeval

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// toUint64 promotes a CEL numeric value to uint64 for bitwise arithmetic;
// Kaitai's bitwise operators apply uniformly across its integer widths.
func toUint64(v ref.Val) (uint64, bool) {
	switch n := v.(type) {
	case types.Int:
		return uint64(n), true
	case types.Uint:
		return uint64(n), true
	default:
		return 0, false
	}
}

func bitwiseResult(v uint64) ref.Val {
	if v <= uint64(int64(^uint64(0)>>1)) {
		return types.Int(v)
	}
	return types.Uint(v)
}

func bitwiseFunctions() cel.EnvOption {
	return cel.Lib(&bitwiseLib{})
}

type bitwiseLib struct{}

func (*bitwiseLib) binOp(name string, op func(a, b uint64) uint64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
			cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				l, ok1 := toUint64(lhs)
				r, ok2 := toUint64(rhs)
				if !ok1 || !ok2 {
					return types.NewErr("%s: operands must be integers, got %T and %T", name, lhs.Value(), rhs.Value())
				}
				return bitwiseResult(op(l, r))
			}),
		),
	)
}

func (b *bitwiseLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		b.binOp("bitAnd", func(a, b uint64) uint64 { return a & b }),
		b.binOp("bitOr", func(a, b uint64) uint64 { return a | b }),
		b.binOp("bitXor", func(a, b uint64) uint64 { return a ^ b }),
		cel.Function("bitShiftLeft",
			cel.Overload("bitshiftleft_dyn_int", []*cel.Type{cel.DynType, cel.IntType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					l, ok := toUint64(lhs)
					shift, okShift := rhs.(types.Int)
					if !ok || !okShift || shift < 0 {
						return types.NewErr("bitShiftLeft: invalid operands")
					}
					return bitwiseResult(l << uint(shift))
				}),
			),
		),
		cel.Function("bitShiftRight",
			cel.Overload("bitshiftright_dyn_int", []*cel.Type{cel.DynType, cel.IntType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					l, ok := toUint64(lhs)
					shift, okShift := rhs.(types.Int)
					if !ok || !okShift || shift < 0 {
						return types.NewErr("bitShiftRight: invalid operands")
					}
					return bitwiseResult(l >> uint(shift))
				}),
			),
		),
		cel.Function("bitNot",
			cel.Overload("bitnot_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					val, ok := toUint64(v)
					if !ok {
						return types.NewErr("bitNot: operand must be an integer")
					}
					return bitwiseResult(^val)
				}),
			),
		),
	}
}

func (*bitwiseLib) ProgramOptions() []cel.ProgramOption { return nil }
