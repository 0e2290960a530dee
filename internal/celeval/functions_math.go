package celeval

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Kaitai's `%` and `/` use Python's floor semantics (result has the sign of
// the divisor), which differ from CEL's truncating built-in `%`/`/` for
// negative operands. Both are registered as named functions so the AST
// transform can route to them explicitly instead of CEL's operators.
func mathFunctions() cel.EnvOption {
	return cel.Lib(&mathLib{})
}

type mathLib struct{}

func asFloat(v ref.Val) (float64, bool) {
	switch n := v.(type) {
	case types.Int:
		return float64(n), true
	case types.Uint:
		return float64(n), true
	case types.Double:
		return float64(n), true
	default:
		return 0, false
	}
}

func (*mathLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("kaitaiMod",
			cel.Overload("kaitaimod_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					a, ok1 := lhs.(types.Int)
					b, ok2 := rhs.(types.Int)
					if !ok1 || !ok2 {
						fa, oka := asFloat(lhs)
						fb, okb := asFloat(rhs)
						if !oka || !okb || fb == 0 {
							return types.NewErr("kaitaiMod: invalid operands")
						}
						m := fa - fb*floorDiv(fa, fb)
						return types.Double(m)
					}
					if b == 0 {
						return types.NewErr("kaitaiMod: division by zero")
					}
					m := a % b
					if (m < 0 && b > 0) || (m > 0 && b < 0) {
						m += b
					}
					return types.Int(m)
				}),
			),
		),
		cel.Function("kaitaiDiv",
			cel.Overload("kaitaidiv_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					a, ok1 := lhs.(types.Int)
					b, ok2 := rhs.(types.Int)
					if !ok1 || !ok2 {
						fa, oka := asFloat(lhs)
						fb, okb := asFloat(rhs)
						if !oka || !okb || fb == 0 {
							return types.NewErr("kaitaiDiv: invalid operands")
						}
						return types.Double(floorDiv(fa, fb))
					}
					if b == 0 {
						return types.NewErr("kaitaiDiv: division by zero")
					}
					q := a / b
					if (a%b != 0) && ((a < 0) != (b < 0)) {
						q--
					}
					return types.Int(q)
				}),
			),
		),
	}
}

func floorDiv(a, b float64) float64 {
	q := a / b
	if q < 0 {
		whole := float64(int64(q))
		if whole != q {
			return whole - 1
		}
	}
	return float64(int64(q))
}

func (*mathLib) ProgramOptions() []cel.ProgramOption { return nil }
