package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestCompileSimpleSchema(t *testing.T) {
	c, err := Compile([]byte(simpleSchema))
	require.NoError(t, err)
	assert.Equal(t, "simple", c.RootTypeName)
	require.Len(t, c.Root.Seq, 4)
	assert.Equal(t, "magic", c.Root.Seq[0].ID)
	assert.Equal(t, BuiltinU2, c.Root.Seq[1].Type.Builtin)
	assert.Equal(t, EndianLittle, c.Root.Seq[1].Type.Endian)

	nameAttr := c.Root.Seq[3]
	require.NotNil(t, nameAttr.SizeExpr)
	assert.Equal(t, "name_len", nameAttr.SizeExpr.String())

	inst, ok := c.Root.Instances["doubled_version"]
	require.True(t, ok)
	require.NotNil(t, inst.ValueExpr)
}

const nestedSchema = `
meta:
  id: nested
seq:
  - id: header
    type: header_type
types:
  header_type:
    seq:
      - id: flag
        type: u1
      - id: body
        type: body_type
        if: flag == 1
    types:
      body_type:
        seq:
          - id: value
            type: u4le
`

func TestCompileNestedTypes(t *testing.T) {
	c, err := Compile([]byte(nestedSchema))
	require.NoError(t, err)
	headerAttr := c.Root.Seq[0]
	require.Equal(t, TypeUser, headerAttr.Type.Kind)
	require.NotNil(t, headerAttr.Type.User)
	assert.Equal(t, "nested.header_type", headerAttr.Type.User.Name)

	bodyAttr := headerAttr.Type.User.Seq[1]
	require.NotNil(t, bodyAttr.IfExpr)
	require.Equal(t, TypeUser, bodyAttr.Type.Kind)
	require.NotNil(t, bodyAttr.Type.User)
	assert.Equal(t, "nested.header_type.body_type", bodyAttr.Type.User.Name)
}

const switchSchema = `
meta:
  id: switcher
seq:
  - id: tag
    type: u1
  - id: body
    type:
      switch-on: tag
      cases:
        1: int_body
        2: str_body
        _: int_body
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
`

func TestCompileSwitchType(t *testing.T) {
	c, err := Compile([]byte(switchSchema))
	require.NoError(t, err)
	bodyAttr := c.Root.Seq[1]
	require.Equal(t, TypeSwitch, bodyAttr.Type.Kind)
	require.NotNil(t, bodyAttr.Type.SwitchOn)
	assert.Equal(t, "tag", bodyAttr.Type.SwitchOn.String())
	require.Contains(t, bodyAttr.Type.Cases, "1")
	assert.True(t, bodyAttr.Type.HasDefault)
}

func TestCompileBitSizedInt(t *testing.T) {
	src := `
meta:
  id: bitfields
seq:
  - id: a
    type: b3
  - id: b
    type: b5
`
	c, err := Compile([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, BuiltinBitsInt, c.Root.Seq[0].Type.Builtin)
	assert.Equal(t, 3, c.Root.Seq[0].Type.BitWidth)
	assert.Equal(t, 5, c.Root.Seq[1].Type.BitWidth)
}

func TestCompileParameterizedTypeForwardReference(t *testing.T) {
	src := `
meta:
  id: container
seq:
  - id: idx
    type: u1
  - id: has_body
    type: u1
  - id: item
    type: resource(idx, has_body)
types:
  resource:
    params:
      - id: idx
        type: u1
      - id: has_body
        type: u1
    seq:
      - id: payload
        type: u1
        if: has_body != 0
`
	c, err := Compile([]byte(src))
	require.NoError(t, err)
	itemAttr := c.Root.Seq[2]
	require.Equal(t, TypeUser, itemAttr.Type.Kind)
	require.NotNil(t, itemAttr.Type.User)
	assert.Equal(t, "container.resource", itemAttr.Type.User.Name)
	require.Len(t, itemAttr.Type.UserArgs, 2)
	assert.Equal(t, "idx", itemAttr.Type.UserArgs[0].String())
	assert.Equal(t, "has_body", itemAttr.Type.UserArgs[1].String())
}

func TestCompileParameterizedTypeArityMismatch(t *testing.T) {
	src := `
meta:
  id: container
seq:
  - id: item
    type: resource(1)
types:
  resource:
    params:
      - id: idx
        type: u1
      - id: has_body
        type: u1
    seq:
      - id: payload
        type: u1
`
	_, err := Compile([]byte(src))
	require.Error(t, err)
	var arityErr *ParamArityError
	require.ErrorAs(t, err, &arityErr)
	assert.Equal(t, 2, arityErr.Want)
	assert.Equal(t, 1, arityErr.Got)
}

func TestCompileUnresolvedTypeStrict(t *testing.T) {
	src := `
meta:
  id: broken
seq:
  - id: x
    type: does_not_exist
`
	_, err := Compile([]byte(src), WithStrict())
	require.Error(t, err)
	var unresolved *UnresolvedTypeError
	require.ErrorAs(t, err, &unresolved)
}

func TestCompileDuplicateFieldError(t *testing.T) {
	src := `
meta:
  id: dupe
seq:
  - id: x
    type: u1
  - id: x
    type: u2le
`
	_, err := Compile([]byte(src))
	require.Error(t, err)
	var dup *DuplicateFieldError
	require.ErrorAs(t, err, &dup)
}

func TestCompileInvalidExpressionError(t *testing.T) {
	src := `
meta:
  id: badexpr
seq:
  - id: x
    type: u1
    if: "=="
`
	_, err := Compile([]byte(src))
	require.Error(t, err)
	var invalid *InvalidExpressionError
	require.ErrorAs(t, err, &invalid)
}

func TestCompileRepeatKinds(t *testing.T) {
	src := `
meta:
  id: repeats
seq:
  - id: a
    type: u1
    repeat: eos
  - id: b
    type: u1
    repeat: expr
    repeat-expr: "3"
  - id: c
    type: u1
    repeat: until
    repeat-until: "_ == 0"
`
	c, err := Compile([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, RepeatEOS, c.Root.Seq[0].Repeat)
	assert.Equal(t, RepeatExpr, c.Root.Seq[1].Repeat)
	require.NotNil(t, c.Root.Seq[1].RepeatCountExpr)
	assert.Equal(t, RepeatUntil, c.Root.Seq[2].Repeat)
	require.NotNil(t, c.Root.Seq[2].RepeatUntilExpr)
}
