package pw

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// SPA POD type codes, limited to the subset the core/registry surface speaks.
const (
	podTypeNone   uint32 = 1
	podTypeID     uint32 = 3
	podTypeInt    uint32 = 4
	podTypeString uint32 = 8
	podTypeStruct uint32 = 14
)

// the native protocol is a same-host protocol, frames are host byte order
var byteOrder = binary.LittleEndian

// podBuilder serializes POD values into a payload buffer.
// Every pod is an 8-byte (size, type) header followed by the body,
// padded to 8-byte alignment.
type podBuilder struct {
	buf []byte
}

func (b *podBuilder) pad() {
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
}

func (b *podBuilder) header(size, typ uint32) {
	b.buf = byteOrder.AppendUint32(b.buf, size)
	b.buf = byteOrder.AppendUint32(b.buf, typ)
}

func (b *podBuilder) addInt(value int32) {
	b.header(4, podTypeInt)
	b.buf = byteOrder.AppendUint32(b.buf, uint32(value))
	b.pad()
}

// addString writes a string pod whose declared size includes the NUL terminator
func (b *podBuilder) addString(value string) {
	b.header(uint32(len(value)+1), podTypeString)
	b.buf = append(b.buf, value...)
	b.buf = append(b.buf, 0)
	b.pad()
}

// beginStruct reserves a struct header and returns a marker for endStruct
func (b *podBuilder) beginStruct() int {
	offset := len(b.buf)
	b.header(0, podTypeStruct)
	return offset
}

// endStruct patches the struct's size now that its body is complete
func (b *podBuilder) endStruct(offset int) {
	byteOrder.PutUint32(b.buf[offset:], uint32(len(b.buf)-offset-8))
}

// addProps writes a property dictionary the way the protocol frames it:
// a struct holding an item count followed by alternating key/value strings.
// Keys are sorted so identical maps always serialize identically.
func (b *podBuilder) addProps(props map[string]string) {
	offset := b.beginStruct()
	b.addInt(int32(len(props)))

	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		b.addString(key)
		b.addString(props[key])
	}

	b.endStruct(offset)
}

// podParser walks a payload buffer pod by pod
type podParser struct {
	data []byte
	off  int
}

func (p *podParser) more() bool {
	return p.off+8 <= len(p.data)
}

// next returns the type and body of the next pod, skipping alignment padding
func (p *podParser) next() (uint32, []byte, error) {
	if !p.more() {
		return 0, nil, fmt.Errorf("pod truncated at offset %d", p.off)
	}

	size := byteOrder.Uint32(p.data[p.off:])
	typ := byteOrder.Uint32(p.data[p.off+4:])
	bodyStart := p.off + 8

	if bodyStart+int(size) > len(p.data) {
		return 0, nil, fmt.Errorf("pod body overruns payload (type %d, size %d)", typ, size)
	}

	body := p.data[bodyStart : bodyStart+int(size)]

	p.off = bodyStart + int(size)
	for p.off%8 != 0 {
		p.off++
	}

	return typ, body, nil
}

func (p *podParser) readInt() (int32, error) {
	typ, body, err := p.next()
	if err != nil {
		return 0, err
	}
	if typ != podTypeInt && typ != podTypeID {
		return 0, fmt.Errorf("expected int pod, got type %d", typ)
	}
	if len(body) < 4 {
		return 0, fmt.Errorf("int pod body too short (%d bytes)", len(body))
	}

	return int32(byteOrder.Uint32(body)), nil
}

// readString trims the NUL terminator included in the pod's declared size
func (p *podParser) readString() (string, error) {
	typ, body, err := p.next()
	if err != nil {
		return "", err
	}
	if typ != podTypeString {
		return "", fmt.Errorf("expected string pod, got type %d", typ)
	}
	if len(body) > 0 && body[len(body)-1] == 0 {
		body = body[:len(body)-1]
	}

	return string(body), nil
}

// readStruct returns a parser scoped to the struct's body.
// A none pod is accepted in place of a struct and yields nil.
func (p *podParser) readStruct() (*podParser, error) {
	typ, body, err := p.next()
	if err != nil {
		return nil, err
	}
	if typ == podTypeNone {
		return nil, nil
	}
	if typ != podTypeStruct {
		return nil, fmt.Errorf("expected struct pod, got type %d", typ)
	}

	return &podParser{data: body}, nil
}

// readProps parses the property dictionary framing produced by addProps
func (p *podParser) readProps() (map[string]string, error) {
	inner, err := p.readStruct()
	if err != nil {
		return nil, fmt.Errorf("read props struct: %w", err)
	}
	if inner == nil {
		return nil, nil
	}

	count, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read props item count: %w", err)
	}

	props := make(map[string]string, count)
	for i := int32(0); i < count; i++ {
		key, err := inner.readString()
		if err != nil {
			return nil, fmt.Errorf("read props key %d: %w", i, err)
		}
		value, err := inner.readString()
		if err != nil {
			return nil, fmt.Errorf("read props value for %q: %w", key, err)
		}
		props[key] = value
	}

	return props, nil
}
