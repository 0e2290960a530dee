package kaitai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kaitai/kstruct/pkg/kaitai"
	"github.com/go-kaitai/kstruct/pkg/schema"
)

const gifSchema = `
meta:
  id: simple
  endian: le
seq:
  - id: magic
    contents: "GIF89a"
  - id: width
    type: u2
  - id: height
    type: u2
`

func gifData() []byte {
	return []byte{'G', 'I', 'F', '8', '9', 'a', 0x80, 0x02, 0xE0, 0x01}
}

func TestParseEndToEnd(t *testing.T) {
	root, err := kaitai.Parse([]byte(gifSchema), gifData())
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a"), root.RawValue("magic"))
	assert.Equal(t, uint16(640), root.RawValue("width"))
	assert.Equal(t, uint16(480), root.RawValue("height"))
}

func TestCompileThenParseWithSchema(t *testing.T) {
	compiled, err := kaitai.CompileSchema([]byte(gifSchema))
	require.NoError(t, err)

	root, err := kaitai.ParseWithSchema(compiled, gifData())
	require.NoError(t, err)
	assert.Equal(t, uint16(640), root.RawValue("width"))
}

func TestParserCaching(t *testing.T) {
	p := kaitai.NewParser()
	c1, err := p.CompileCached([]byte(gifSchema))
	require.NoError(t, err)
	c2, err := p.CompileCached([]byte(gifSchema))
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	root, err := p.ParseCached([]byte(gifSchema), gifData())
	require.NoError(t, err)
	assert.Equal(t, uint16(480), root.RawValue("height"))

	p.ClearCache()
	c3, err := p.CompileCached([]byte(gifSchema))
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestEmitEventsDepthFirstWithComplete(t *testing.T) {
	var events []kaitai.ParseEvent
	_, err := kaitai.Parse([]byte(gifSchema), gifData(), kaitai.WithEmitEvents(func(ev kaitai.ParseEvent) {
		events = append(events, ev)
	}))
	require.NoError(t, err)
	require.Len(t, events, 7) // 3 fields x (enter, exit) + Complete

	enter, ok := events[0].(kaitai.FieldEnter)
	require.True(t, ok)
	assert.Equal(t, "magic", enter.FieldName)

	_, isComplete := events[len(events)-1].(kaitai.Complete)
	assert.True(t, isComplete)

	exit, ok := events[len(events)-2].(kaitai.FieldExit)
	require.True(t, ok)
	assert.Equal(t, "height", exit.FieldName)
	assert.Equal(t, uint16(480), exit.Value)
}

const multiTypeSchema = `
meta:
  id: multi
seq:
  - id: a
    type: u1
types:
  sub:
    seq:
      - id: b
        type: u1
`

func TestWithRootTypeParsesNamedType(t *testing.T) {
	root, err := kaitai.Parse([]byte(multiTypeSchema), []byte{7}, kaitai.WithRootType("multi.sub"))
	require.NoError(t, err)
	assert.Equal(t, uint8(7), root.RawValue("b"))
	_, ok := root.Field("a")
	assert.False(t, ok)
}

const unresolvedTypeSchema = `
meta:
  id: bad
seq:
  - id: x
    type: nonexistent_type
`

func TestCompileSchemaStrictRejectsUnresolvedType(t *testing.T) {
	_, err := kaitai.CompileSchema([]byte(unresolvedTypeSchema), kaitai.WithStrict())
	require.Error(t, err)
	var unresolved *schema.UnresolvedTypeError
	require.ErrorAs(t, err, &unresolved)

	_, err = kaitai.CompileSchema([]byte(unresolvedTypeSchema))
	require.NoError(t, err)
}

func TestEvaluateAgainst(t *testing.T) {
	root, err := kaitai.Parse([]byte(gifSchema), gifData())
	require.NoError(t, err)

	v, err := kaitai.EvaluateAgainst(root, "width * height")
	require.NoError(t, err)
	assert.Equal(t, int64(640*480), v.Raw)
}
