package pwmix

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MixyLabs/pwmix/pkg/pwmix/pw"
)

// value used when a node or port doesn't carry the property we want
const (
	unknownDescription = "Unknown"
	unknownMediaClass  = "Unknown"
	unknownChannel     = "unknown"
	unknownDirection   = "unknown"
)

// graphWatcher turns the registry's global event stream into graph
// mutations. It only understands nodes and ports; every other object
// kind the registry announces is skipped.
type graphWatcher struct {
	logger *zap.SugaredLogger
	graph  *Graph
}

func newGraphWatcher(logger *zap.SugaredLogger, graph *Graph) *graphWatcher {
	w := &graphWatcher{
		logger: logger.Named("discovery"),
		graph:  graph,
	}

	w.logger.Debug("Created graph watcher instance")

	return w
}

func (w *graphWatcher) handleGlobal(event *pw.GlobalEvent) {
	switch event.Type {
	case pw.InterfaceNode:
		w.handleNode(event)
	case pw.InterfacePort:
		w.handlePort(event)
	}
}

func (w *graphWatcher) handleGlobalRemove(event *pw.GlobalRemoveEvent) {
	w.graph.remove(event.ID)
}

func (w *graphWatcher) handleNode(event *pw.GlobalEvent) {
	description := lookupProp(event.Props, unknownDescription, pw.KeyNodeDescription, pw.KeyNodeName)
	mediaClass := lookupProp(event.Props, unknownMediaClass, pw.KeyMediaClass)

	// capture-side nodes are our link sources
	input := strings.Contains(mediaClass, "Source") || strings.Contains(mediaClass, "Input")

	w.graph.addNode(&Node{
		ID:          event.ID,
		Description: description,
		MediaClass:  mediaClass,
		Input:       input,
	})
}

func (w *graphWatcher) handlePort(event *pw.GlobalEvent) {
	rawNodeID, exists := event.Props[pw.KeyNodeID]
	if !exists {
		w.logger.Debugw("Dropping port without a parent node id", "portID", event.ID)
		return
	}

	nodeID, err := strconv.ParseUint(rawNodeID, 10, 32)
	if err != nil {
		w.logger.Debugw("Dropping port with unparsable parent node id",
			"portID", event.ID,
			"nodeID", rawNodeID)
		return
	}

	port := Port{
		ID:        event.ID,
		Channel:   lookupProp(event.Props, unknownChannel, pw.KeyAudioChannel, pw.KeyPortName),
		Direction: lookupProp(event.Props, unknownDirection, pw.KeyPortDirection),
	}

	// a port can legitimately beat its node to the registry (or outlive
	// it); there is nothing to attach it to, so it gets dropped
	if !w.graph.addPort(uint32(nodeID), port) {
		w.logger.Debugw("Dropping port whose parent node is not known",
			"portID", event.ID,
			"nodeID", nodeID,
			"channel", port.Channel)
	}
}

// lookupProp returns the first present key's value, or the fallback
func lookupProp(props map[string]string, fallback string, keys ...string) string {
	for _, key := range keys {
		if value, exists := props[key]; exists {
			return value
		}
	}

	return fallback
}
