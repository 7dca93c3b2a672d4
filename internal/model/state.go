package model

// DestinationState is a point in the destination lifecycle.
type DestinationState int

const (
	StateUninitialized DestinationState = iota
	StateInitialized
	StateStarted
	StateStopped
	StateCleanedUp
)

func (s DestinationState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateCleanedUp:
		return "cleaned-up"
	default:
		return "unknown"
	}
}

// Capabilities are fixed at construction and gate every send.
type Capabilities struct {
	SendMessages bool
	SendImages   bool
	SendVideos   bool
}

// CanSend reports whether files of kind k may be sent.
func (c Capabilities) CanSend(k AssetKind) bool {
	if k == KindVideo {
		return c.SendVideos
	}
	return c.SendImages
}

// Level is one sensor reading.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}
