package pw

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPathResolution(t *testing.T) {
	t.Run("absolute remote wins", func(t *testing.T) {
		t.Setenv("PIPEWIRE_REMOTE", "/tmp/custom-socket")
		assert.Equal(t, "/tmp/custom-socket", socketPath())
	})

	t.Run("named remote joins runtime dir", func(t *testing.T) {
		t.Setenv("PIPEWIRE_REMOTE", "pipewire-1")
		t.Setenv("PIPEWIRE_RUNTIME_DIR", "/run/pw")
		assert.Equal(t, "/run/pw/pipewire-1", socketPath())
	})

	t.Run("falls back to xdg runtime dir", func(t *testing.T) {
		t.Setenv("PIPEWIRE_REMOTE", "")
		t.Setenv("PIPEWIRE_RUNTIME_DIR", "")
		t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
		assert.Equal(t, "/run/user/1000/pipewire-0", socketPath())
	})
}

// buildGlobalPayload frames a registry global event the way the daemon does
func buildGlobalPayload(id uint32, typ string, props map[string]string) []byte {
	var b podBuilder
	offset := b.beginStruct()
	b.addInt(int32(id))
	b.addInt(0) // permissions
	b.addString(typ)
	b.addInt(protocolVersion)
	b.addProps(props)
	b.endStruct(offset)

	return b.buf
}

func TestDispatchGlobalEvent(t *testing.T) {
	c := &Client{}

	var received []any
	c.Callback = func(event any) { received = append(received, event) }

	payload := buildGlobalPayload(10, InterfaceNode, map[string]string{
		KeyNodeDescription: "SPDIF IN",
		KeyMediaClass:      "Audio/Source",
	})

	require.NoError(t, c.dispatch(registryProxyID, registryEventGlobal, payload))

	require.Len(t, received, 1)
	global, ok := received[0].(*GlobalEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(10), global.ID)
	assert.Equal(t, InterfaceNode, global.Type)
	assert.Equal(t, "SPDIF IN", global.Props[KeyNodeDescription])
}

func TestDispatchGlobalRemoveEvent(t *testing.T) {
	c := &Client{}

	var received []any
	c.Callback = func(event any) { received = append(received, event) }

	var b podBuilder
	offset := b.beginStruct()
	b.addInt(10)
	b.endStruct(offset)

	require.NoError(t, c.dispatch(registryProxyID, registryEventGlobalRemove, b.buf))

	require.Len(t, received, 1)
	removal, ok := received[0].(*GlobalRemoveEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(10), removal.ID)
}

func TestDispatchDoneEvent(t *testing.T) {
	c := &Client{}

	var received []any
	c.Callback = func(event any) { received = append(received, event) }

	var b podBuilder
	offset := b.beginStruct()
	b.addInt(0)
	b.addInt(42)
	b.endStruct(offset)

	require.NoError(t, c.dispatch(coreProxyID, coreEventDone, b.buf))

	require.Len(t, received, 1)
	done, ok := received[0].(*DoneEvent)
	require.True(t, ok)
	assert.Equal(t, int32(42), done.Seq)
}

func TestDispatchSkipsUnknownProxiesAndOpcodes(t *testing.T) {
	c := &Client{}

	called := false
	c.Callback = func(event any) { called = true }

	require.NoError(t, c.dispatch(99, 0, nil))
	require.NoError(t, c.dispatch(coreProxyID, 6, nil))

	assert.False(t, called)
}

func TestMessageFraming(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	c := &Client{conn: clientSide, nextProxyID: firstDynamicID}

	go func() {
		_, _ = c.CreateLink(10, 1, 20, 3, true)
	}()

	proxyID, opcode, payload, err := readMessage(serverSide)
	require.NoError(t, err)

	assert.Equal(t, coreProxyID, proxyID)
	assert.Equal(t, coreMethodCreateObject, opcode)

	p := podParser{data: payload}
	inner, err := p.readStruct()
	require.NoError(t, err)

	factory, err := inner.readString()
	require.NoError(t, err)
	assert.Equal(t, linkFactoryName, factory)

	typ, err := inner.readString()
	require.NoError(t, err)
	assert.Equal(t, InterfaceLink, typ)

	version, err := inner.readInt()
	require.NoError(t, err)
	assert.Equal(t, int32(protocolVersion), version)

	props, err := inner.readProps()
	require.NoError(t, err)
	assert.Equal(t, "10", props[KeyLinkOutputNode])
	assert.Equal(t, "1", props[KeyLinkOutputPort])
	assert.Equal(t, "20", props[KeyLinkInputNode])
	assert.Equal(t, "3", props[KeyLinkInputPort])
	assert.Equal(t, "false", props[KeyLinkPassive], "an active link is not passive")

	newID, err := inner.readInt()
	require.NoError(t, err)
	assert.Equal(t, int32(firstDynamicID), newID)
}

func TestRunStopsFromCallback(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	c := &Client{conn: clientSide}
	c.Callback = func(event any) {
		if _, ok := event.(*DoneEvent); ok {
			c.Stop()
		}
	}

	go func() {
		var b podBuilder
		offset := b.beginStruct()
		b.addInt(0)
		b.addInt(1)
		b.endStruct(offset)

		server := &Client{conn: serverSide}
		_ = server.send(coreProxyID, coreEventDone, b.buf)
	}()

	finished := make(chan error, 1)
	go func() { finished <- c.Run() }()

	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after the callback requested it")
	}
}

func TestConcurrentCreateLinkAllocatesUniqueProxyIDs(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	c := &Client{conn: clientSide, nextProxyID: firstDynamicID}

	// drain the pipe so writes never block
	go func() {
		for {
			if _, _, _, err := readMessage(serverSide); err != nil {
				return
			}
		}
	}()

	const workers, perWorker = 2, 100
	ids := make(chan uint32, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				link, err := c.CreateLink(1, 2, 3, 4, true)
				if err != nil {
					t.Errorf("create link: %v", err)
					return
				}

				ids <- link.proxyID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint32]bool)
	for id := range ids {
		require.False(t, seen[id], "proxy id %d handed out twice", id)
		seen[id] = true
	}
	require.Len(t, seen, workers*perWorker)
}
