package celeval

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// castFunctions backs `.as<TypeName>()`. The expression evaluator's job
// ends at producing a dynamic value; actually narrowing a parsed union
// value to a concrete subtype's field set is pkg/kstruct's job once the
// cast's resolved target type is known, so asType is the identity function
// here — the type name is carried only so a caller inspecting the
// rendered CEL source can see which cast was requested.
func castFunctions() cel.EnvOption {
	return cel.Lib(&castLib{})
}

type castLib struct{}

func (*castLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("asType",
			cel.Overload("astype_dyn_string", []*cel.Type{cel.DynType, cel.StringType}, cel.DynType,
				cel.BinaryBinding(func(value, _ ref.Val) ref.Val {
					return value
				}),
			),
		),
	}
}

func (*castLib) ProgramOptions() []cel.ProgramOption { return nil }
