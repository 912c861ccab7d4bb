package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shinamon610/ShareMouse/internal/space"
)

// Kind is the one-byte message tag at the start of every frame.
type Kind uint8

// Message tags
const (
	KindMove           Kind = 0
	KindButton         Kind = 1
	KindScroll         Kind = 2
	KindHandoffRequest Kind = 3
	KindHandoffAck     Kind = 4
	KindHeartbeat      Kind = 5
)

var kindNames = [...]string{"move", "button", "scroll", "handoff_request", "handoff_ack", "heartbeat"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Frame layout: [tag(1)] [payload] [seq(4)]
const (
	TagSize = 1
	SeqSize = 4

	// MaxFrameSize is the largest frame in the message set (HandoffRequest).
	MaxFrameSize = TagSize + 9 + SeqSize
)

// payloadSizes holds the fixed payload width per tag.
//
//	Move           (0): dx(int32) + dy(int32)            = 8
//	Button         (1): code(uint8) + pressed(uint8)     = 2
//	Scroll         (2): dx(int32) + dy(int32)            = 8
//	HandoffRequest (3): edge(uint8) + x(int32) + y(int32) = 9
//	HandoffAck     (4): accepted(uint8)                  = 1
//	Heartbeat      (5): none                             = 0
var payloadSizes = [...]int{8, 2, 8, 9, 1, 0}

// ErrMalformedMessage is returned for frames with an unknown tag, a wrong
// length or an out-of-range field. Callers drop the frame and carry on.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Message is one decoded frame. Only the fields of its Kind are meaningful.
type Message struct {
	Kind Kind
	Seq  uint32

	DX, DY int32 // move, scroll

	Button  uint8 // button code (1=left, 2=right, 3=middle, ...)
	Pressed bool

	Edge   space.Edge // handoff request
	EntryX int32
	EntryY int32

	Accepted bool // handoff ack
}

func (m *Message) String() string {
	switch m.Kind {
	case KindMove, KindScroll:
		return fmt.Sprintf("%s#%d{dx:%d dy:%d}", m.Kind, m.Seq, m.DX, m.DY)
	case KindButton:
		return fmt.Sprintf("%s#%d{code:%d pressed:%t}", m.Kind, m.Seq, m.Button, m.Pressed)
	case KindHandoffRequest:
		return fmt.Sprintf("%s#%d{edge:%s x:%d y:%d}", m.Kind, m.Seq, m.Edge, m.EntryX, m.EntryY)
	case KindHandoffAck:
		return fmt.Sprintf("%s#%d{accepted:%t}", m.Kind, m.Seq, m.Accepted)
	}
	return fmt.Sprintf("%s#%d", m.Kind, m.Seq)
}

// Constructors for the message set. Sequence numbers are stamped by the sender.

func Move(dx, dy int) *Message { return &Message{Kind: KindMove, DX: int32(dx), DY: int32(dy)} }

func Button(code uint8, pressed bool) *Message {
	return &Message{Kind: KindButton, Button: code, Pressed: pressed}
}

func Scroll(dx, dy int) *Message { return &Message{Kind: KindScroll, DX: int32(dx), DY: int32(dy)} }

func HandoffRequest(edge space.Edge, entry space.Point) *Message {
	return &Message{Kind: KindHandoffRequest, Edge: edge, EntryX: int32(entry.X), EntryY: int32(entry.Y)}
}

func HandoffAck(accepted bool) *Message { return &Message{Kind: KindHandoffAck, Accepted: accepted} }

func Heartbeat() *Message { return &Message{Kind: KindHeartbeat} }

// Entry returns the handoff entry position.
func (m *Message) Entry() space.Point {
	return space.Point{X: int(m.EntryX), Y: int(m.EntryY)}
}

// FrameSize returns the total frame length for a tag. Stream transports use it
// to know how many bytes follow the tag.
func FrameSize(tag uint8) (int, error) {
	if int(tag) >= len(payloadSizes) {
		return 0, fmt.Errorf("%w: unknown tag %d", ErrMalformedMessage, tag)
	}
	return TagSize + payloadSizes[tag] + SeqSize, nil
}

// Encode serializes a Message to wire format.
func Encode(m *Message) ([]byte, error) {
	size, err := FrameSize(uint8(m.Kind))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	buf[0] = uint8(m.Kind)

	payload := buf[TagSize : size-SeqSize]
	switch m.Kind {
	case KindMove, KindScroll:
		binary.BigEndian.PutUint32(payload[0:4], uint32(m.DX))
		binary.BigEndian.PutUint32(payload[4:8], uint32(m.DY))
	case KindButton:
		payload[0] = m.Button
		payload[1] = boolByte(m.Pressed)
	case KindHandoffRequest:
		if !m.Edge.Valid() {
			return nil, fmt.Errorf("%w: invalid edge %d", ErrMalformedMessage, m.Edge)
		}
		payload[0] = uint8(m.Edge)
		binary.BigEndian.PutUint32(payload[1:5], uint32(m.EntryX))
		binary.BigEndian.PutUint32(payload[5:9], uint32(m.EntryY))
	case KindHandoffAck:
		payload[0] = boolByte(m.Accepted)
	}

	binary.BigEndian.PutUint32(buf[size-SeqSize:], m.Seq)
	return buf, nil
}

// Decode deserializes one complete frame.
func Decode(data []byte) (*Message, error) {
	if len(data) < TagSize+SeqSize {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrMalformedMessage, len(data))
	}

	size, err := FrameSize(data[0])
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: %s frame is %d bytes, want %d", ErrMalformedMessage, Kind(data[0]), len(data), size)
	}

	m := &Message{
		Kind: Kind(data[0]),
		Seq:  binary.BigEndian.Uint32(data[size-SeqSize:]),
	}

	payload := data[TagSize : size-SeqSize]
	switch m.Kind {
	case KindMove, KindScroll:
		m.DX = int32(binary.BigEndian.Uint32(payload[0:4]))
		m.DY = int32(binary.BigEndian.Uint32(payload[4:8]))
	case KindButton:
		m.Button = payload[0]
		if m.Pressed, err = parseBool(payload[1]); err != nil {
			return nil, err
		}
	case KindHandoffRequest:
		m.Edge = space.Edge(payload[0])
		if !m.Edge.Valid() {
			return nil, fmt.Errorf("%w: invalid edge %d", ErrMalformedMessage, payload[0])
		}
		m.EntryX = int32(binary.BigEndian.Uint32(payload[1:5]))
		m.EntryY = int32(binary.BigEndian.Uint32(payload[5:9]))
	case KindHandoffAck:
		if m.Accepted, err = parseBool(payload[0]); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func parseBool(b uint8) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: boolean byte %d", ErrMalformedMessage, b)
}
