package kaitai

import (
	"fmt"
	"sync"

	"github.com/go-kaitai/kstruct/internal/celeval"
	"github.com/go-kaitai/kstruct/pkg/kstruct"
)

var (
	replPoolOnce sync.Once
	replPool     *celeval.Pool
	replPoolErr  error
)

func sharedReplPool() (*celeval.Pool, error) {
	replPoolOnce.Do(func() {
		replPool, replPoolErr = celeval.NewPool()
	})
	return replPool, replPoolErr
}

// EvaluateAgainst evaluates exprText against an already-parsed object tree
// — the same expression language a schema's if/value/valid bodies use —
// for external debugger-style tools that want a REPL over a live parse
// result without re-running the interpreter.
func EvaluateAgainst(root *kstruct.Object, exprText string) (kstruct.Value, error) {
	pool, err := sharedReplPool()
	if err != nil {
		return kstruct.Value{}, fmt.Errorf("kaitai: building expression pool: %w", err)
	}
	result, err := kstruct.EvaluateText(pool, root, exprText)
	if err != nil {
		return kstruct.Value{}, err
	}
	return kstruct.Value{Raw: result}, nil
}
