package pw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodIntLayout(t *testing.T) {
	var b podBuilder
	b.addInt(7)

	// 8-byte header (size, type) + 4-byte body + 4 bytes alignment padding
	require.Len(t, b.buf, 16)
	assert.Equal(t, uint32(4), byteOrder.Uint32(b.buf[0:]))
	assert.Equal(t, podTypeInt, byteOrder.Uint32(b.buf[4:]))
	assert.Equal(t, uint32(7), byteOrder.Uint32(b.buf[8:]))
}

func TestPodStringIncludesTerminatorAndPads(t *testing.T) {
	var b podBuilder
	b.addString("FL")

	// declared size counts the NUL, the body is padded out to 8
	require.Len(t, b.buf, 16)
	assert.Equal(t, uint32(3), byteOrder.Uint32(b.buf[0:]))
	assert.Equal(t, podTypeString, byteOrder.Uint32(b.buf[4:]))
	assert.Equal(t, byte(0), b.buf[10])

	p := podParser{data: b.buf}
	value, err := p.readString()
	require.NoError(t, err)
	assert.Equal(t, "FL", value)
}

func TestPodStructRoundTrip(t *testing.T) {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(42)
	b.addString("link-factory")
	b.addInt(-1)
	b.endStruct(offset)

	p := podParser{data: b.buf}
	inner, err := p.readStruct()
	require.NoError(t, err)
	require.NotNil(t, inner)

	first, err := inner.readInt()
	require.NoError(t, err)
	assert.Equal(t, int32(42), first)

	name, err := inner.readString()
	require.NoError(t, err)
	assert.Equal(t, "link-factory", name)

	last, err := inner.readInt()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), last)

	assert.False(t, inner.more())
}

func TestPodPropsRoundTrip(t *testing.T) {
	props := map[string]string{
		"link.output.node": "10",
		"link.output.port": "1",
		"link.input.node":  "20",
		"link.input.port":  "3",
		"link.passive":     "false",
	}

	var b podBuilder
	b.addProps(props)

	p := podParser{data: b.buf}
	parsed, err := p.readProps()
	require.NoError(t, err)
	assert.Equal(t, props, parsed)
}

func TestPodPropsNoneIsNil(t *testing.T) {
	var b podBuilder
	b.header(0, podTypeNone)

	p := podParser{data: b.buf}
	parsed, err := p.readProps()
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestPodParserRejectsTruncatedBody(t *testing.T) {
	var b podBuilder
	b.addString("something long enough")

	p := podParser{data: b.buf[:10]}
	_, err := p.readString()
	assert.Error(t, err)
}

func TestPodParserRejectsWrongType(t *testing.T) {
	var b podBuilder
	b.addInt(1)

	p := podParser{data: b.buf}
	_, err := p.readString()
	assert.Error(t, err)
}
