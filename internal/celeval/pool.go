package celeval

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"

	"github.com/go-kaitai/kstruct/pkg/expression"
)

// Program is a compiled, ready-to-run expression: the CEL program plus the
// identifiers it references (so the caller can build an activation with
// exactly the bindings it needs, no more).
type Program struct {
	source string
	cel    cel.Program
	idents []string
}

// Source returns the original expression text this Program was compiled
// from, for error messages.
func (p *Program) Source() string { return p.source }

// Idents lists the free identifiers (field/instance names, excluding the
// pseudo-variables) the expression references.
func (p *Program) Idents() []string { return p.idents }

// Pool compiles expression.Expr ASTs to CEL programs and caches them by
// source text, so a schema's conditionals and instance bodies are parsed
// and compiled once no matter how many times the type they belong to is
// instantiated during a parse.
type Pool struct {
	mu    sync.RWMutex
	cache map[string]*Program
	env   *cel.Env
}

// NewPool creates a Pool backed by a fresh base CEL environment.
func NewPool() (*Pool, error) {
	env, err := NewEnvironment()
	if err != nil {
		return nil, err
	}
	return &Pool{env: env, cache: make(map[string]*Program)}, nil
}

// Compile compiles node (rendering it to CEL source via ToCEL) and caches
// the result keyed by node's original source text, which the caller
// supplies since expression.Expr itself doesn't retain the exact source
// string it was parsed from.
func (p *Pool) Compile(source string, node expression.Expr) (*Program, error) {
	p.mu.RLock()
	if prog, ok := p.cache[source]; ok {
		p.mu.RUnlock()
		return prog, nil
	}
	p.mu.RUnlock()

	celSrc, err := ToCEL(node)
	if err != nil {
		return nil, &CompileError{Expr: source, Err: err}
	}
	idents := FreeIdents(node)

	var declOpts []cel.EnvOption
	for _, name := range idents {
		declOpts = append(declOpts, cel.Variable(name, cel.DynType))
	}
	env := p.env
	if len(declOpts) > 0 {
		env, err = p.env.Extend(declOpts...)
		if err != nil {
			return nil, &CompileError{Expr: source, Err: err}
		}
	}

	ast, issues := env.Compile(celSrc)
	if issues != nil && issues.Err() != nil {
		return nil, &CompileError{Expr: source, Err: issues.Err()}
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, &CompileError{Expr: source, Err: err}
	}

	prog := &Program{source: source, cel: program, idents: idents}
	p.mu.Lock()
	p.cache[source] = prog
	p.mu.Unlock()
	return prog, nil
}

// CompileExpr compiles node keyed by its own rendered CEL text rather than
// an externally-supplied source string, for callers (pkg/kstruct) that only
// ever hold the parsed expression.Expr, never the original .ksy source
// fragment it came from.
func (p *Pool) CompileExpr(node expression.Expr) (*Program, error) {
	celSrc, err := ToCEL(node)
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return p.Compile(celSrc, node)
}

// Eval runs a compiled Program against vars, a map from identifier name
// (including pseudo-variables present in the expression) to its bound Go
// value, and converts the CEL result back to a plain Go value.
func (p *Program) Eval(vars map[string]any) (any, error) {
	activation, err := cel.NewActivation(vars)
	if err != nil {
		return nil, &EvalError{Expr: p.source, Err: err}
	}
	val, _, err := p.cel.Eval(activation)
	if err != nil {
		return nil, &EvalError{Expr: p.source, Err: err}
	}
	return adaptResult(val.Value()), nil
}

// adaptResult normalizes CEL's internal ref.Val-derived Go types (which use
// types.Int/types.Uint/types.Double rather than plain int64/float64) into
// the plain Go types the rest of the module works with.
func adaptResult(v any) any {
	switch val := v.(type) {
	case int64:
		return val
	case uint64:
		return val
	case float64:
		return val
	case bool:
		return val
	case string:
		return val
	case []byte:
		return val
	case []ref.Val:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = adaptResult(e.Value())
		}
		return out
	default:
		return v
	}
}
