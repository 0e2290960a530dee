package celeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kaitai/kstruct/pkg/expression"
)

func compileAndEval(t *testing.T, pool *Pool, src string, vars map[string]any) any {
	t.Helper()
	node, err := expression.Parse(src)
	require.NoError(t, err)
	prog, err := pool.Compile(src, node)
	require.NoError(t, err)
	result, err := prog.Eval(vars)
	require.NoError(t, err)
	return result
}

func TestEvalArithmetic(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "1 + 2 * 3", nil)
	assert.Equal(t, int64(7), result)
}

func TestEvalFieldReference(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "header_size + 4", map[string]any{"header_size": int64(10)})
	assert.Equal(t, int64(14), result)
}

func TestEvalTernary(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "flag ? 1 : 2", map[string]any{"flag": true})
	assert.Equal(t, int64(1), result)
}

func TestEvalBitwise(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "a & 0x0F", map[string]any{"a": int64(0xAF)})
	assert.Equal(t, int64(0x0F), result)
}

func TestEvalFloorDivAndMod(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	assert.Equal(t, int64(-4), compileAndEval(t, pool, "-7 / 2", nil))
	assert.Equal(t, int64(1), compileAndEval(t, pool, "-7 % 2", nil))
}

func TestEvalIoPosSizeEof(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	ioHandle := map[string]any{"pos": int64(5), "size": int64(20), "eof": false}
	result := compileAndEval(t, pool, "_io.pos", map[string]any{"_io": ioHandle})
	assert.Equal(t, int64(5), result)

	result2 := compileAndEval(t, pool, "_io.eof", map[string]any{"_io": ioHandle})
	assert.Equal(t, false, result2)
}

func TestEvalSizeOfString(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "sizeof(name)", map[string]any{"name": "hello"})
	assert.Equal(t, int64(5), result)
}

func TestEvalStringConversions(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	assert.Equal(t, int64(42), compileAndEval(t, pool, "to_i(s)", map[string]any{"s": "42"}))
	assert.Equal(t, "7", compileAndEval(t, pool, "to_s(n)", map[string]any{"n": int64(7)}))
}

func TestCompileCachesBySource(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	node, err := expression.Parse("1 + 1")
	require.NoError(t, err)

	p1, err := pool.Compile("1 + 1", node)
	require.NoError(t, err)
	p2, err := pool.Compile("1 + 1", node)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestFreeIdentsExcludesPseudoVars(t *testing.T) {
	node, err := expression.Parse("_io.pos + header.size + _parent.count")
	require.NoError(t, err)
	idents := FreeIdents(node)
	assert.Contains(t, idents, "header")
	assert.NotContains(t, idents, "_io")
	assert.NotContains(t, idents, "_parent")
}

func TestEvalMethodCallSyntaxRewritesToGlobalCall(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	assert.Equal(t, "7", compileAndEval(t, pool, "n.to_s()", map[string]any{"n": int64(7)}))
	assert.Equal(t, int64(42), compileAndEval(t, pool, "s.to_i()", map[string]any{"s": "42"}))
	assert.Equal(t, "olleh", compileAndEval(t, pool, "s.reverse()", map[string]any{"s": "hello"}))
}

func TestEvalLengthAndSize(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	assert.Equal(t, int64(5), compileAndEval(t, pool, "s.length()", map[string]any{"s": "hello"}))
	assert.Equal(t, int64(3), compileAndEval(t, pool, "b.size()", map[string]any{"b": []byte{1, 2, 3}}))
}

func TestEvalSubstring(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "s.substring(1, 4)", map[string]any{"s": "hello"})
	assert.Equal(t, "ell", result)
}

func TestEvalToSWithEncoding(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	result := compileAndEval(t, pool, "b.to_s(\"UTF-8\")", map[string]any{"b": []byte("hi")})
	assert.Equal(t, "hi", result)
}

func TestEvalDivideByZeroRaisesError(t *testing.T) {
	pool, err := NewPool()
	require.NoError(t, err)
	node, err := expression.Parse("a / b")
	require.NoError(t, err)
	prog, err := pool.Compile("a / b", node)
	require.NoError(t, err)
	_, err = prog.Eval(map[string]any{"a": int64(1), "b": int64(0)})
	require.Error(t, err)
}
