package pw

// Interface type strings as they appear in registry global announcements
const (
	InterfaceNode = "PipeWire:Interface:Node"
	InterfacePort = "PipeWire:Interface:Port"
	InterfaceLink = "PipeWire:Interface:Link"
)

// Well-known object property keys
const (
	KeyAppName = "application.name"

	KeyNodeDescription = "node.description"
	KeyNodeName        = "node.name"
	KeyNodeID          = "node.id"
	KeyMediaClass      = "media.class"

	KeyAudioChannel  = "audio.channel"
	KeyPortName      = "port.name"
	KeyPortDirection = "port.direction"

	KeyLinkOutputNode = "link.output.node"
	KeyLinkOutputPort = "link.output.port"
	KeyLinkInputNode  = "link.input.node"
	KeyLinkInputPort  = "link.input.port"
	KeyLinkPassive    = "link.passive"
)

// Port direction values carried by KeyPortDirection
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)
