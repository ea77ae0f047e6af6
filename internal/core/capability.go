package core

// Capabilities describes what a negotiated device supports. Operations for
// absent capabilities fail fast without touching the network.
type Capabilities struct {
	// Transport is true when the device exposes AVTransport at all. A device
	// without it cannot be controlled and is rejected during negotiation.
	Transport bool

	Volume bool
	Mute   bool

	// Position is true when GetPositionInfo returns usable relative times.
	Position bool
	// Seek is offered only when positions are reported.
	Seek bool

	// SourceList is true when ConnectionManager reported sink protocols.
	SourceList bool
	Sources    []string
}
