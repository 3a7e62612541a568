package pwmix

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Node retains the metadata pwmix cares about for a single PipeWire node
type Node struct {
	ID          uint32
	Description string
	MediaClass  string

	// Input is true for capture-side nodes (mics, capture devices) and
	// false for playback-side ones (speakers, sinks)
	Input bool

	// Ports in discovery order; the order carries no meaning
	Ports []Port
}

// Port is a single audio channel belonging to a node
type Port struct {
	ID        uint32
	Channel   string
	Direction string // "out", "in" or "unknown"
}

// Graph is the snapshot store of discovered nodes, keyed by global id.
// It is built and pruned purely from registry callbacks; the lock exists
// because the relink path reads it from outside the event goroutine.
type Graph struct {
	logger *zap.SugaredLogger
	lock   sync.Locker
	nodes  map[uint32]*Node
}

func newGraph(logger *zap.SugaredLogger) *Graph {
	g := &Graph{
		logger: logger.Named("graph"),
		lock:   &sync.Mutex{},
		nodes:  make(map[uint32]*Node),
	}

	g.logger.Debug("Created graph instance")

	return g
}

// addNode stores a newly announced node. Re-announcements of an id we
// already track are no-ops so that already-discovered ports survive.
func (g *Graph) addNode(node *Node) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if _, exists := g.nodes[node.ID]; exists {
		g.logger.Debugw("Ignoring duplicate node announcement", "nodeID", node.ID)
		return
	}

	g.nodes[node.ID] = node
}

// addPort attaches a port to its parent node, reporting whether the
// parent was known. Ports without a live parent are the caller's
// problem to drop.
func (g *Graph) addPort(nodeID uint32, port Port) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	parent, exists := g.nodes[nodeID]
	if !exists {
		return false
	}

	parent.Ports = append(parent.Ports, port)

	return true
}

// remove evicts a node, quietly doing nothing for ids we never tracked
func (g *Graph) remove(id uint32) {
	g.lock.Lock()
	defer g.lock.Unlock()

	delete(g.nodes, id)
}

// Nodes returns a point-in-time copy of every node, sorted by ascending
// id. The copy lets callers read freely while events keep arriving.
func (g *Graph) Nodes() []Node {
	g.lock.Lock()
	defer g.lock.Unlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		snapshot := *node
		snapshot.Ports = append([]Port(nil), node.Ports...)
		nodes = append(nodes, snapshot)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}

func (g *Graph) String() string {
	g.lock.Lock()
	defer g.lock.Unlock()

	return fmt.Sprintf("<%d pipewire nodes>", len(g.nodes))
}
