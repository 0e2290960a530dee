package kstruct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kaitai/kstruct/pkg/schema"
)

func mustInterp(t *testing.T, src string) *Interpreter {
	t.Helper()
	compiled, err := schema.Compile([]byte(src))
	require.NoError(t, err)
	ip, err := NewInterpreter(compiled)
	require.NoError(t, err)
	return ip
}

const simpleSchema = `
meta:
  id: simple
  endian: le
seq:
  - id: magic
    contents: [0x4B, 0x53]
  - id: version
    type: u2le
  - id: name_len
    type: u1
  - id: name
    type: str
    size: name_len
    encoding: ASCII
instances:
  doubled_version:
    value: version * 2
`

func TestParseSequentialFields(t *testing.T) {
	ip := mustInterp(t, simpleSchema)
	data := []byte{0x4B, 0x53, 0x2C, 0x01, 0x05, 'h', 'e', 'l', 'l', 'o'}
	root, err := ip.ParseRoot(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x4B, 0x53}, root.RawValue("magic"))
	assert.Equal(t, uint16(300), root.RawValue("version"))
	assert.Equal(t, uint8(5), root.RawValue("name_len"))
	assert.Equal(t, "hello", root.RawValue("name"))

	v, err := ip.evalInstance(root, "doubled_version")
	require.NoError(t, err)
	assert.Equal(t, int64(600), v.Raw)
}

const conditionalSchema = `
meta:
  id: condy
seq:
  - id: flag
    type: u1
  - id: maybe
    type: u1
    if: flag == 1
`

func TestParseIfConditionalSkipsField(t *testing.T) {
	ip := mustInterp(t, conditionalSchema)

	root, err := ip.ParseRoot(context.Background(), []byte{0x00})
	require.NoError(t, err)
	_, ok := root.Field("maybe")
	assert.False(t, ok)

	root2, err := ip.ParseRoot(context.Background(), []byte{0x01, 0x07})
	require.NoError(t, err)
	assert.Equal(t, uint8(7), root2.RawValue("maybe"))
}

const repeatEOSSchema = `
meta:
  id: repeos
seq:
  - id: items
    type: u1
    repeat: eos
`

func TestParseRepeatEOS(t *testing.T) {
	ip := mustInterp(t, repeatEOSSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)

	items, ok := root.Field("items")
	require.True(t, ok)
	vals, ok := items.Raw.([]*Value)
	require.True(t, ok)
	require.Len(t, vals, 5)
	assert.Equal(t, uint8(5), vals[4].Raw)
}

const repeatExprSchema = `
meta:
  id: repexpr
seq:
  - id: count
    type: u1
  - id: items
    type: u1
    repeat: expr
    repeat-expr: count
`

func TestParseRepeatExpr(t *testing.T) {
	ip := mustInterp(t, repeatExprSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{3, 10, 20, 30})
	require.NoError(t, err)

	items, ok := root.Field("items")
	require.True(t, ok)
	vals := items.Raw.([]*Value)
	require.Len(t, vals, 3)
	assert.Equal(t, uint8(10), vals[0].Raw)
	assert.Equal(t, uint8(30), vals[2].Raw)
}

const repeatUntilSchema = `
meta:
  id: repuntil
seq:
  - id: items
    type: u1
    repeat: until
    repeat-until: _ == 0
`

func TestParseRepeatUntil(t *testing.T) {
	ip := mustInterp(t, repeatUntilSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{5, 6, 0, 99})
	require.NoError(t, err)

	items, ok := root.Field("items")
	require.True(t, ok)
	vals := items.Raw.([]*Value)
	require.Len(t, vals, 3)
	assert.Equal(t, uint8(0), vals[2].Raw)
}

const switchSchema = `
meta:
  id: switchy
enums:
  body_kind:
    1: int_kind
    2: str_kind
seq:
  - id: kind
    type: u1
    enum: body_kind
  - id: body
    type:
      switch-on: kind
      cases:
        'body_kind::int_kind': int_body
        'body_kind::str_kind': str_body
types:
  int_body:
    seq:
      - id: value
        type: u4le
  str_body:
    seq:
      - id: value
        type: str
        size: 4
        encoding: ASCII
`

func TestParseSwitchTypeEnumQualifiedCase(t *testing.T) {
	ip := mustInterp(t, switchSchema)
	data := []byte{0x01, 0x2A, 0x00, 0x00, 0x00}
	root, err := ip.ParseRoot(context.Background(), data)
	require.NoError(t, err)

	kind, ok := root.Field("kind")
	require.True(t, ok)
	ev, ok := kind.Raw.(EnumValue)
	require.True(t, ok)
	assert.Equal(t, "int_kind", ev.Name)

	body, ok := root.Field("body")
	require.True(t, ok)
	child, ok := body.Raw.(*Object)
	require.True(t, ok)
	assert.Equal(t, uint32(42), child.RawValue("value"))
}

func TestParseSwitchTypeStrCase(t *testing.T) {
	ip := mustInterp(t, switchSchema)
	data := []byte{0x02, 'a', 'b', 'c', 'd'}
	root, err := ip.ParseRoot(context.Background(), data)
	require.NoError(t, err)

	body, _ := root.Field("body")
	child := body.Raw.(*Object)
	assert.Equal(t, "abcd", child.RawValue("value"))
}

const circularInstanceSchema = `
meta:
  id: circ
instances:
  a:
    value: b + 1
  b:
    value: a + 1
`

func TestParseCircularInstanceDetected(t *testing.T) {
	ip := mustInterp(t, circularInstanceSchema)
	root, err := ip.ParseRoot(context.Background(), nil)
	require.NoError(t, err)

	_, err = ip.evalInstance(root, "a")
	require.Error(t, err)
	var circ *CircularInstanceError
	require.ErrorAs(t, err, &circ)
}

const posAndValidSchema = `
meta:
  id: possy
seq:
  - id: header
    type: u1
  - id: footer
    type: u1
    pos: 5
    valid:
      min: 10
      max: 20
`

func TestParsePosSeekRestoresCursor(t *testing.T) {
	ip := mustInterp(t, posAndValidSchema)
	data := []byte{0x09, 0, 0, 0, 0, 15}
	root, err := ip.ParseRoot(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, uint8(9), root.RawValue("header"))
	assert.Equal(t, uint8(15), root.RawValue("footer"))
	assert.Equal(t, int64(1), root.IO.Pos())
}

func TestParseValidationFailure(t *testing.T) {
	ip := mustInterp(t, posAndValidSchema)
	data := []byte{0x09, 0, 0, 0, 0, 99}
	_, err := ip.ParseRoot(context.Background(), data)
	require.Error(t, err)
	var ve *ValidationFailedError
	require.ErrorAs(t, err, &ve)
}

const processSchema = `
meta:
  id: processy
seq:
  - id: payload
    size: 3
    process: xor(0xFF)
`

func TestParseProcessXOR(t *testing.T) {
	ip := mustInterp(t, processSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE, 0xFD}, root.RawValue("payload"))
}

const contentsMismatchSchema = `
meta:
  id: magicky
seq:
  - id: magic
    contents: [0x4B, 0x53]
`

func TestParseContentsMismatch(t *testing.T) {
	ip := mustInterp(t, contentsMismatchSchema)
	_, err := ip.ParseRoot(context.Background(), []byte{0x00, 0x00})
	require.Error(t, err)
	var mismatch *ContentsMismatchError
	require.ErrorAs(t, err, &mismatch)
}

const parameterizedTypeSchema = `
meta:
  id: container
seq:
  - id: has_body
    type: u1
  - id: item
    type: resource(has_body)
types:
  resource:
    params:
      - id: flag
        type: u1
    seq:
      - id: payload
        type: u1
        if: flag != 0
`

func TestParseParameterizedTypeBindsArgsByParamID(t *testing.T) {
	ip := mustInterp(t, parameterizedTypeSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{1, 0xAB})
	require.NoError(t, err)

	itemVal, ok := root.Field("item")
	require.True(t, ok)
	child, ok := itemVal.Raw.(*Object)
	require.True(t, ok)

	payload, ok := child.Field("payload")
	require.True(t, ok)
	assert.Equal(t, uint8(0xAB), payload.Raw)
}

func TestParseParameterizedTypeIfFalseSkipsField(t *testing.T) {
	ip := mustInterp(t, parameterizedTypeSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{0, 0xAB})
	require.NoError(t, err)

	itemVal, ok := root.Field("item")
	require.True(t, ok)
	child, ok := itemVal.Raw.(*Object)
	require.True(t, ok)

	_, ok = child.Field("payload")
	assert.False(t, ok)
}

const unsizedNestedUserTypeSchema = `
meta:
  id: wrapper
seq:
  - id: first
    type: sub
  - id: second
    type: sub
types:
  sub:
    seq:
      - id: a
        type: u1
      - id: b
        type: u1
`

func TestParseUnsizedUserTypeReportsConsumedLengthNotAbsolutePos(t *testing.T) {
	ip := mustInterp(t, unsizedNestedUserTypeSchema)
	root, err := ip.ParseRoot(context.Background(), []byte{1, 2, 3, 4})
	require.NoError(t, err)

	first, ok := root.Field("first")
	require.True(t, ok)
	assert.Equal(t, int64(0), first.Meta.Offset)
	assert.Equal(t, int64(2), first.Meta.Length)

	second, ok := root.Field("second")
	require.True(t, ok)
	assert.Equal(t, int64(2), second.Meta.Offset)
	assert.Equal(t, int64(2), second.Meta.Length)
}
