package celeval

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// pseudoVars are the names the expression language always binds, in every
// scope, regardless of which identifiers a particular expression happens
// to reference.
var pseudoVars = []string{"_io", "_parent", "_root", "_", "_bytes_remaining"}

// kaitaiTypeAdapter extends CEL's default adapter so Go's narrower integer
// and float widths (the actual types a stream read produces: int8, uint16,
// float32, ...) convert the same way their 64-bit counterparts do, instead
// of falling through to reflection-based conversion on every value.
type kaitaiTypeAdapter struct {
	types.Adapter
}

func newKaitaiTypeAdapter() *kaitaiTypeAdapter {
	return &kaitaiTypeAdapter{Adapter: types.DefaultTypeAdapter}
}

func (a *kaitaiTypeAdapter) NativeToValue(value any) ref.Val {
	switch v := value.(type) {
	case int8:
		return types.Int(v)
	case int16:
		return types.Int(v)
	case int32:
		return types.Int(v)
	case uint8:
		return types.Int(v)
	case uint16:
		return types.Int(v)
	case uint32:
		return types.Uint(v)
	case float32:
		return types.Double(v)
	default:
		return a.Adapter.NativeToValue(value)
	}
}

// NewEnvironment builds the base CEL environment: standard CEL functions
// plus every Kaitai-specific function category, and Dyn-typed declarations
// for the pseudo-variables every expression may reference.
func NewEnvironment() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CustomTypeAdapter(newKaitaiTypeAdapter()),
		cel.StdLib(),
		bitwiseFunctions(),
		mathFunctions(),
		ioFunctions(),
		sizeAlignFunctions(),
		stringFunctions(),
		castFunctions(),
	}
	for _, name := range pseudoVars {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("celeval: failed to create base environment: %w", err)
	}
	return env, nil
}
