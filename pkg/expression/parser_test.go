package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := Parse(src)
	require.NoError(t, err, "parsing %q", src)
	return e
}

func TestParseLiterals(t *testing.T) {
	assert.Equal(t, "42", mustParse(t, "42").String())
	assert.Equal(t, "3.5", mustParse(t, "3.5").String())
	assert.Equal(t, `"hi"`, mustParse(t, `"hi"`).String())
	assert.Equal(t, "true", mustParse(t, "true").String())
	assert.Equal(t, "null", mustParse(t, "null").String())
}

func TestParseHexLiteral(t *testing.T) {
	e := mustParse(t, "0xFF")
	lit, ok := e.(*IntLit)
	require.True(t, ok)
	assert.Equal(t, int64(255), lit.Value)
}

func TestParsePseudoIdentifiers(t *testing.T) {
	assert.IsType(t, &Self{}, mustParse(t, "_"))
	assert.IsType(t, &Io{}, mustParse(t, "_io"))
	assert.IsType(t, &Parent{}, mustParse(t, "_parent"))
	assert.IsType(t, &Root{}, mustParse(t, "_root"))
	assert.IsType(t, &BytesRemaining{}, mustParse(t, "_bytes_remaining"))
}

func TestParseArithmeticPrecedence(t *testing.T) {
	e := mustParse(t, "1 + 2 * 3")
	bin, ok := e.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpAdd, bin.Op)
	rhs, ok := bin.Right.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpMul, rhs.Op)
}

func TestParseLeftAssociativity(t *testing.T) {
	e := mustParse(t, "10 - 2 - 3")
	bin := e.(*Binary)
	assert.Equal(t, OpSub, bin.Op)
	// (10 - 2) - 3
	lhs, ok := bin.Left.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpSub, lhs.Op)
}

func TestParseComparisonAndLogic(t *testing.T) {
	e := mustParse(t, "a > 1 && b < 2")
	bin := e.(*Binary)
	assert.Equal(t, OpAnd, bin.Op)
}

func TestParseTernary(t *testing.T) {
	e := mustParse(t, "flag ? 1 : 2")
	tern, ok := e.(*Ternary)
	require.True(t, ok)
	assert.Equal(t, "flag", tern.Cond.String())
}

func TestParseUnary(t *testing.T) {
	e := mustParse(t, "!flag")
	un, ok := e.(*Unary)
	require.True(t, ok)
	assert.Equal(t, OpNot, un.Op)

	e2 := mustParse(t, "~mask")
	un2 := e2.(*Unary)
	assert.Equal(t, OpBitNot, un2.Op)
}

func TestParseAttrAndIndexAndCall(t *testing.T) {
	e := mustParse(t, "header.entries[0].size()")
	call, ok := e.(*Call)
	require.True(t, ok)
	method, ok := call.Callee.(*Attr)
	require.True(t, ok)
	assert.Equal(t, "size", method.Name)
	idx, ok := method.Value.(*Index)
	require.True(t, ok)
	attr, ok := idx.Value.(*Attr)
	require.True(t, ok)
	assert.Equal(t, "entries", attr.Name)
}

func TestParseCast(t *testing.T) {
	e := mustParse(t, "body.as<png_chunk>()")
	cast, ok := e.(*Cast)
	require.True(t, ok)
	assert.Equal(t, "png_chunk", cast.TypeName)
}

func TestParseSizeOfAndAlignOf(t *testing.T) {
	e := mustParse(t, "sizeof(header)")
	so, ok := e.(*SizeOf)
	require.True(t, ok)
	assert.Equal(t, "header", so.Value.String())

	e2 := mustParse(t, "alignof(body)")
	ao, ok := e2.(*AlignOf)
	require.True(t, ok)
	assert.Equal(t, "body", ao.Value.String())
}

func TestParseParenthesizedGrouping(t *testing.T) {
	e := mustParse(t, "(1 + 2) * 3")
	bin := e.(*Binary)
	assert.Equal(t, OpMul, bin.Op)
	lhs, ok := bin.Left.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpAdd, lhs.Op)
}

func TestParseErrorUnterminatedString(t *testing.T) {
	_, err := Parse(`"unterminated`)
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestParseErrorTrailingInput(t *testing.T) {
	_, err := Parse("1 2")
	require.Error(t, err)
}

func TestParseErrorSingleEquals(t *testing.T) {
	_, err := Parse("a = b")
	require.Error(t, err)
}

func TestParseStringEscapes(t *testing.T) {
	e := mustParse(t, `"a\nb\"c"`)
	lit := e.(*StringLit)
	assert.Equal(t, "a\nb\"c", lit.Value)
}

func TestParseBitwiseOps(t *testing.T) {
	e := mustParse(t, "a & b | c ^ d")
	bin := e.(*Binary)
	assert.Equal(t, OpBitOr, bin.Op)
}

func TestParseShiftOps(t *testing.T) {
	e := mustParse(t, "a << 2 >> 1")
	bin := e.(*Binary)
	assert.Equal(t, OpShr, bin.Op)
}
