package pwmix

import (
	"errors"
	"strings"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/MixyLabs/pwmix/pkg/pwmix/pw"
)

var (
	// ErrNoMatchingOutput means no playback node's description contains the marker
	ErrNoMatchingOutput = errors.New("no matching output found")

	// ErrNoMatchingInput means no capture node's description contains the marker
	ErrNoMatchingInput = errors.New("no matching input(s) found")
)

// linkPlan is one channel-accurate connection the executor should create
type linkPlan struct {
	SourceNode uint32
	SourcePort uint32
	Channel    string
	DestNode   uint32
	DestPort   uint32
}

// planner picks the endpoints to patch together and pairs their ports
// channel by channel
type planner struct {
	logger *zap.SugaredLogger
}

func newPlanner(logger *zap.SugaredLogger) *planner {
	return &planner{logger: logger.Named("planner")}
}

// plan selects every capture node and the first playback node whose
// upper-cased description contains the marker, then pairs their ports by
// exact channel label (FL to FL, FR to FR). nodes must be sorted by
// ascending id, which is what Graph.Nodes returns.
func (p *planner) plan(nodes []Node, marker string) ([]linkPlan, error) {
	marker = strings.ToUpper(marker)
	matchesMarker := func(node Node) bool {
		return strings.Contains(strings.ToUpper(node.Description), marker)
	}

	selectedInputs := funk.Filter(nodes, func(node Node) bool {
		return matchesMarker(node) && node.Input
	}).([]Node)

	selectedOutputs := funk.Filter(nodes, func(node Node) bool {
		return matchesMarker(node) && !node.Input
	}).([]Node)

	if len(selectedOutputs) == 0 {
		return nil, ErrNoMatchingOutput
	}
	if len(selectedInputs) == 0 {
		return nil, ErrNoMatchingInput
	}

	p.logger.Infow("Selected endpoints", "inputs", len(selectedInputs), "outputs", len(selectedOutputs))

	// a single output target: the matching node with the lowest id.
	// fanning out to several outputs is not supported yet (the config
	// knob exists, the implementation doesn't).
	target := selectedOutputs[0]

	p.logger.Debugw("Mapping all matching inputs to output",
		"nodeID", target.ID,
		"description", target.Description)

	sinkPorts := funk.Filter(target.Ports, func(port Port) bool {
		return port.Direction == pw.DirectionIn
	}).([]Port)

	plans := []linkPlan{}

	for _, input := range selectedInputs {
		p.logger.Debugw("Stereo linking",
			"sourceNodeID", input.ID,
			"sourceDescription", input.Description,
			"destNodeID", target.ID,
			"destDescription", target.Description)

		p.warnOnDuplicateChannels(input)

		for _, sourcePort := range input.Ports {
			if sourcePort.Direction != pw.DirectionOut {
				continue
			}

			destPort, found := findChannel(sinkPorts, sourcePort.Channel)
			if !found {
				p.logger.Warnw("No matching input port found for channel",
					"channel", sourcePort.Channel,
					"sourceNodeID", input.ID)
				continue
			}

			plans = append(plans, linkPlan{
				SourceNode: input.ID,
				SourcePort: sourcePort.ID,
				Channel:    sourcePort.Channel,
				DestNode:   target.ID,
				DestPort:   destPort.ID,
			})
		}
	}

	return plans, nil
}

// findChannel locates the first port carrying exactly this channel label
func findChannel(ports []Port, channel string) (Port, bool) {
	for _, port := range ports {
		if port.Channel == channel {
			return port, true
		}
	}

	return Port{}, false
}

// warnOnDuplicateChannels flags nodes announcing a channel label more
// than once - pairing keys on the label, so duplicates silently collapse
func (p *planner) warnOnDuplicateChannels(node Node) {
	labels := []string{}
	for _, port := range node.Ports {
		if port.Direction == pw.DirectionOut {
			labels = append(labels, port.Channel)
		}
	}

	if len(funk.UniqString(labels)) != len(labels) {
		p.logger.Warnw("Node announces duplicate channel labels, only the first of each pairs up",
			"nodeID", node.ID,
			"channels", labels)
	}
}
