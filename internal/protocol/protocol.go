// Package protocol defines the JSON messages exchanged between peers.
//
// Every frame is one envelope:
//
//	{"type": "...", "data": {...}, "timestamp": 1700000000000}
//
// The set of message types is closed. Decode rejects unknown types with
// ErrUnknownType and frames that are not JSON or lack a required field with
// ErrMalformed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownType is returned for an envelope whose type is not recognised
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned for non-JSON frames and missing required fields
	ErrMalformed = errors.New("malformed message")
)

// MessageType is the envelope "type" tag
type MessageType string

const (
	TypeHandshake      MessageType = "handshake"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeMouseMove      MessageType = "mouse_move"
	TypeMouseClick     MessageType = "mouse_click"
	TypeMouseScroll    MessageType = "mouse_scroll"
	TypeKeyPress       MessageType = "key_press"
	TypeKeyRelease     MessageType = "key_release"
	TypeClipboard      MessageType = "clipboard"
	TypeDisconnect     MessageType = "disconnect"
	TypeTakeControl    MessageType = "take_control"
	TypeReleaseControl MessageType = "release_control"
)

// Envelope is the outer frame of every message
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
}

// Message is implemented only by the types in this package
type Message interface {
	Type() MessageType
	message()
}

// Encode wraps m in an envelope stamped with the current time
func Encode(m Message) ([]byte, error) {
	return EncodeAt(m, time.Now())
}

// EncodeAt is Encode with an explicit timestamp
func EncodeAt(m Message, at time.Time) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	ts := at.UnixMilli()
	return json.Marshal(Envelope{Type: m.Type(), Data: data, Timestamp: &ts})
}

// Decode parses one frame into its concrete message type
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeHandshake:
		return decodeHandshake(env.Data)
	case TypeHeartbeat:
		return decodeEmptyAs(env.Data, Heartbeat{})
	case TypeDisconnect:
		return decodeEmptyAs(env.Data, Disconnect{})
	case TypeMouseMove:
		return decodeAs(env.Data, MouseMove{}, "x", "y")
	case TypeMouseClick:
		m, err := decodeAs(env.Data, MouseClick{}, "x", "y", "button", "pressed")
		if err != nil {
			return nil, err
		}
		if b := m.(MouseClick).Button; !b.Valid() {
			return nil, fmt.Errorf("%w: button %q", ErrMalformed, b)
		}
		return m, nil
	case TypeMouseScroll:
		return decodeAs(env.Data, MouseScroll{}, "x", "y", "scroll_x", "scroll_y")
	case TypeKeyPress:
		return decodeAs(env.Data, KeyPress{Pressed: true}, "key")
	case TypeKeyRelease:
		return decodeAs(env.Data, KeyRelease{}, "key")
	case TypeClipboard:
		return decodeAs(env.Data, Clipboard{}, "text")
	case TypeTakeControl:
		return decodeAs(env.Data, TakeControl{}, "reason")
	case TypeReleaseControl:
		return decodeAs(env.Data, ReleaseControl{}, "reason")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// decodeAs fills m, whose zero fields act as defaults, from raw
func decodeAs[T Message](raw json.RawMessage, m T, required ...string) (Message, error) {
	if err := decodeData(raw, &m, required...); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeEmptyAs[T Message](raw json.RawMessage, m T) (Message, error) {
	if err := decodeEmpty(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeData unmarshals raw into v after checking that every required key is present
func decodeData(raw json.RawMessage, v any, required ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: data must be an object", ErrMalformed)
	}
	for _, name := range required {
		if f, ok := fields[name]; !ok || string(f) == "null" {
			return fmt.Errorf("%w: missing %q", ErrMalformed, name)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// decodeEmpty accepts an absent, null or object payload
func decodeEmpty(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: data must be an object", ErrMalformed)
	}
	return nil
}

func decodeHandshake(raw json.RawMessage) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: data must be an object", ErrMalformed)
	}

	// The response carries server_screen, the request screen_info.
	if _, ok := fields["server_screen"]; ok {
		if err := requireScreen(fields["server_screen"]); err != nil {
			return nil, err
		}
		return decodeAs(raw, HandshakeAck{}, "server_screen", "status")
	}

	if err := requireScreen(fields["screen_info"]); err != nil {
		return nil, err
	}
	return decodeAs(raw, Handshake{}, "screen_info")
}

func requireScreen(raw json.RawMessage) error {
	var s ScreenInfo
	return decodeData(raw, &s, "width", "height")
}

// IsInput reports whether m is a pointer or keyboard event
func IsInput(m Message) bool {
	switch m.(type) {
	case MouseMove, MouseClick, MouseScroll, KeyPress, KeyRelease:
		return true
	}
	return false
}
