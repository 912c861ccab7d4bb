// Package protocol defines the binary peer-to-peer frame format and the JSON
// events streamed to local control clients.
package protocol

// EventType defines the type of a control-stream WebSocket message
type EventType string

const (
	// TypeStatus carries a full session status snapshot
	TypeStatus EventType = "status"

	// TypeTransition is sent when the control state changes
	TypeTransition EventType = "transition"

	// TypeStopped is the last event before the server closes the stream
	TypeStopped EventType = "stopped"
)

// Event is the generic container for all control-stream messages
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// TransitionPayload is the payload for TypeTransition
type TransitionPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
