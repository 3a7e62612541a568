// Package pw speaks the slice of the PipeWire native protocol that pwmix
// needs: the connection handshake, registry global events, core sync
// round-trips and link-factory object creation. There is no Go client
// library for this protocol, so the wire layer lives here.
package pw

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Fixed proxy ids established during the handshake. Objects we create
// later (links) are numbered from firstDynamicID onwards.
const (
	coreProxyID     uint32 = 0
	clientProxyID   uint32 = 1
	registryProxyID uint32 = 2
	firstDynamicID  uint32 = 3
)

// protocol version announced in Hello and used when binding proxies
const protocolVersion = 3

const linkFactoryName = "link-factory"

// core proxy methods
const (
	coreMethodHello        uint8 = 1
	coreMethodSync         uint8 = 2
	coreMethodPong         uint8 = 3
	coreMethodGetRegistry  uint8 = 5
	coreMethodCreateObject uint8 = 6
	coreMethodDestroy      uint8 = 7
)

// core proxy events
const (
	coreEventDone  uint8 = 1
	coreEventPing  uint8 = 2
	coreEventError uint8 = 3
)

// client proxy methods
const clientMethodUpdateProperties uint8 = 2

// registry proxy events
const (
	registryEventGlobal       uint8 = 0
	registryEventGlobalRemove uint8 = 1
)

// Client is a native-protocol connection to the PipeWire daemon.
//
// All events are dispatched from the goroutine running the loop, so the
// Callback never sees concurrent invocations. Requests are plain writes
// and may be issued from outside the loop.
type Client struct {
	conn net.Conn

	// writeLock guards the connection write, the send sequence and
	// proxy id allocation
	writeLock   sync.Mutex
	sendSeq     uint32
	nextProxyID uint32

	syncSeq int32

	// Callback receives one of *GlobalEvent, *GlobalRemoveEvent,
	// *DoneEvent or *ErrorEvent. Assign it before calling Run.
	Callback func(event any)

	stopRequested bool
}

// Connect dials the daemon's socket and performs the three-step
// handshake: announce our protocol version, identify ourselves, then
// bind the registry so global events start flowing.
func Connect(appName string) (*Client, error) {
	socket := socketPath()

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial PipeWire socket %s: %w", socket, err)
	}

	c := &Client{conn: conn, nextProxyID: firstDynamicID}

	if err := c.hello(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	if err := c.updateProperties(map[string]string{KeyAppName: appName}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send client properties: %w", err)
	}

	if err := c.getRegistry(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind registry: %w", err)
	}

	return c, nil
}

// socketPath resolves the daemon socket the same way the daemon's own
// clients do: $PIPEWIRE_REMOTE names the socket (absolute paths win),
// and the runtime directory falls back from $PIPEWIRE_RUNTIME_DIR
// through $XDG_RUNTIME_DIR to /run/user/<uid>.
func socketPath() string {
	name := os.Getenv("PIPEWIRE_REMOTE")
	if name == "" {
		name = "pipewire-0"
	}
	if filepath.IsAbs(name) {
		return name
	}

	runtimeDir := os.Getenv("PIPEWIRE_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.Getenv("XDG_RUNTIME_DIR")
	}
	if runtimeDir == "" {
		runtimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}

	return filepath.Join(runtimeDir, name)
}

// Sync asks the core to emit a Done event once everything queued ahead
// of this request has been delivered. The returned sequence number is
// echoed back in the matching DoneEvent.
func (c *Client) Sync() (int32, error) {
	c.syncSeq++
	seq := c.syncSeq

	var b podBuilder
	offset := b.beginStruct()
	b.addInt(int32(coreProxyID))
	b.addInt(seq)
	b.endStruct(offset)

	if err := c.send(coreProxyID, coreMethodSync, b.buf); err != nil {
		return 0, fmt.Errorf("request sync: %w", err)
	}

	return seq, nil
}

// Link is a proxy handle for a link object created on this connection.
// The daemon keeps the signal path alive for as long as the handle's
// proxy exists; Destroy tears it down.
type Link struct {
	client  *Client
	proxyID uint32
}

// CreateLink asks the link factory to connect an output port to an
// input port. An active link wakes the hardware immediately instead of
// waiting for another consumer to appear.
func (c *Client) CreateLink(outputNode, outputPort, inputNode, inputPort uint32, active bool) (*Link, error) {
	props := map[string]string{
		KeyLinkOutputNode: strconv.FormatUint(uint64(outputNode), 10),
		KeyLinkOutputPort: strconv.FormatUint(uint64(outputPort), 10),
		KeyLinkInputNode:  strconv.FormatUint(uint64(inputNode), 10),
		KeyLinkInputPort:  strconv.FormatUint(uint64(inputPort), 10),
		KeyLinkPassive:    strconv.FormatBool(!active),
	}

	c.writeLock.Lock()
	proxyID := c.nextProxyID
	c.nextProxyID++
	c.writeLock.Unlock()

	var b podBuilder
	offset := b.beginStruct()
	b.addString(linkFactoryName)
	b.addString(InterfaceLink)
	b.addInt(protocolVersion)
	b.addProps(props)
	b.addInt(int32(proxyID))
	b.endStruct(offset)

	if err := c.send(coreProxyID, coreMethodCreateObject, b.buf); err != nil {
		return nil, fmt.Errorf("create link object: %w", err)
	}

	return &Link{client: c, proxyID: proxyID}, nil
}

// Destroy releases the link's proxy, tearing down the signal path
func (l *Link) Destroy() error {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(int32(l.proxyID))
	b.endStruct(offset)

	if err := l.client.send(coreProxyID, coreMethodDestroy, b.buf); err != nil {
		return fmt.Errorf("destroy link proxy %d: %w", l.proxyID, err)
	}

	return nil
}

// Run reads and dispatches events until Stop is called from within a
// callback or the connection closes. It may be called again after a
// stop to resume dispatching where it left off.
func (c *Client) Run() error {
	c.stopRequested = false

	for {
		proxyID, opcode, payload, err := readMessage(c.conn)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		if err := c.dispatch(proxyID, opcode, payload); err != nil {
			return fmt.Errorf("dispatch message (proxy %d, opcode %d): %w", proxyID, opcode, err)
		}

		if c.stopRequested {
			c.stopRequested = false
			return nil
		}
	}
}

// Stop makes Run return once the callback that called it completes.
// It must only be called from within a Callback invocation.
func (c *Client) Stop() {
	c.stopRequested = true
}

// Close shuts the connection down, failing any running loop
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) hello() error {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(protocolVersion)
	b.endStruct(offset)

	return c.send(coreProxyID, coreMethodHello, b.buf)
}

func (c *Client) updateProperties(props map[string]string) error {
	var b podBuilder
	offset := b.beginStruct()
	b.addProps(props)
	b.endStruct(offset)

	return c.send(clientProxyID, clientMethodUpdateProperties, b.buf)
}

func (c *Client) getRegistry() error {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(protocolVersion)
	b.addInt(int32(registryProxyID))
	b.endStruct(offset)

	return c.send(coreProxyID, coreMethodGetRegistry, b.buf)
}

func (c *Client) pong(id, seq int32) error {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(id)
	b.addInt(seq)
	b.endStruct(offset)

	return c.send(coreProxyID, coreMethodPong, b.buf)
}

// send frames a payload with the 16-byte message header:
// proxy id, opcode in the top byte of the size word, send sequence,
// and a file-descriptor count (always zero for the methods we use).
func (c *Client) send(proxyID uint32, opcode uint8, payload []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	frame := make([]byte, 0, 16+len(payload))
	frame = byteOrder.AppendUint32(frame, proxyID)
	frame = byteOrder.AppendUint32(frame, uint32(opcode)<<24|uint32(len(payload)))
	frame = byteOrder.AppendUint32(frame, c.sendSeq)
	frame = byteOrder.AppendUint32(frame, 0)
	c.sendSeq++

	frame = append(frame, payload...)

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write message (proxy %d, opcode %d): %w", proxyID, opcode, err)
	}

	return nil
}

// readMessage consumes one framed message from the stream. Messages
// that carry file descriptors (memory transfer events) still frame
// their payload normally; the ancillary data is simply not collected.
func readMessage(r io.Reader) (uint32, uint8, []byte, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}

	proxyID := byteOrder.Uint32(header[0:4])
	opcodeAndSize := byteOrder.Uint32(header[4:8])
	opcode := uint8(opcodeAndSize >> 24)
	size := opcodeAndSize & 0xffffff

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, fmt.Errorf("read %d payload bytes: %w", size, err)
	}

	return proxyID, opcode, payload, nil
}

// dispatch decodes the events we understand and hands them to the
// Callback. Other proxies and opcodes are skipped on purpose - the
// registry announces far more object kinds than this client models.
func (c *Client) dispatch(proxyID uint32, opcode uint8, payload []byte) error {
	switch proxyID {
	case coreProxyID:
		switch opcode {
		case coreEventDone:
			id, seq, err := parseIDSeq(payload)
			if err != nil {
				return fmt.Errorf("parse done event: %w", err)
			}
			c.emit(&DoneEvent{ID: uint32(id), Seq: seq})

		case coreEventPing:
			id, seq, err := parseIDSeq(payload)
			if err != nil {
				return fmt.Errorf("parse ping event: %w", err)
			}
			return c.pong(id, seq)

		case coreEventError:
			event, err := parseError(payload)
			if err != nil {
				return fmt.Errorf("parse error event: %w", err)
			}
			c.emit(event)
		}

	case registryProxyID:
		switch opcode {
		case registryEventGlobal:
			event, err := parseGlobal(payload)
			if err != nil {
				return fmt.Errorf("parse global event: %w", err)
			}
			c.emit(event)

		case registryEventGlobalRemove:
			p := podParser{data: payload}
			inner, err := p.readStruct()
			if err != nil {
				return fmt.Errorf("parse global remove event: %w", err)
			}
			id, err := inner.readInt()
			if err != nil {
				return fmt.Errorf("parse global remove id: %w", err)
			}
			c.emit(&GlobalRemoveEvent{ID: uint32(id)})
		}
	}

	return nil
}

func (c *Client) emit(event any) {
	if c.Callback != nil {
		c.Callback(event)
	}
}

func parseIDSeq(payload []byte) (int32, int32, error) {
	p := podParser{data: payload}
	inner, err := p.readStruct()
	if err != nil {
		return 0, 0, err
	}

	id, err := inner.readInt()
	if err != nil {
		return 0, 0, err
	}
	seq, err := inner.readInt()
	if err != nil {
		return 0, 0, err
	}

	return id, seq, nil
}

func parseGlobal(payload []byte) (*GlobalEvent, error) {
	p := podParser{data: payload}
	inner, err := p.readStruct()
	if err != nil {
		return nil, err
	}

	id, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read id: %w", err)
	}
	permissions, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read permissions: %w", err)
	}
	typ, err := inner.readString()
	if err != nil {
		return nil, fmt.Errorf("read type: %w", err)
	}
	version, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	props, err := inner.readProps()
	if err != nil {
		return nil, fmt.Errorf("read props: %w", err)
	}

	return &GlobalEvent{
		ID:          uint32(id),
		Permissions: uint32(permissions),
		Type:        typ,
		Version:     uint32(version),
		Props:       props,
	}, nil
}

func parseError(payload []byte) (*ErrorEvent, error) {
	p := podParser{data: payload}
	inner, err := p.readStruct()
	if err != nil {
		return nil, err
	}

	id, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read id: %w", err)
	}
	seq, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read seq: %w", err)
	}
	res, err := inner.readInt()
	if err != nil {
		return nil, fmt.Errorf("read res: %w", err)
	}
	message, err := inner.readString()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	return &ErrorEvent{ID: uint32(id), Seq: seq, Res: res, Message: message}, nil
}
