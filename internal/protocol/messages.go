package protocol

import (
	"fmt"

	"edgekvm/internal/geometry"
)

// StatusConnected is the status a server puts in its handshake response
const StatusConnected = "connected"

// Reasons carried by take_control and release_control
const (
	ReasonEdge     = "edge"
	ReasonManual   = "manual"
	ReasonShutdown = "shutdown"
	ReasonRejected = "rejected"
)

// ScreenInfo describes a peer screen on the wire
type ScreenInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// ScreenInfoFrom converts a local screen for the wire
func ScreenInfoFrom(s geometry.Screen) ScreenInfo {
	return ScreenInfo{Width: s.Width(), Height: s.Height(), Name: s.Name()}
}

// Geometry validates the peer-supplied extents. Peer screens are placed at the origin.
func (s ScreenInfo) Geometry() (geometry.Screen, error) {
	g, err := geometry.New(s.Width, s.Height, 0, 0, s.Name)
	if err != nil {
		return geometry.Screen{}, fmt.Errorf("peer screen: %w", err)
	}
	return g, nil
}

// ClientInfo identifies the connecting program
type ClientInfo struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

// Handshake is sent by the connecting side right after the transport opens
type Handshake struct {
	Screen ScreenInfo `json:"screen_info"`
	Client ClientInfo `json:"client_info"`
}

// HandshakeAck is the accepting side's response, also tagged "handshake"
type HandshakeAck struct {
	Screen ScreenInfo `json:"server_screen"`
	Status string     `json:"status"`
}

type Heartbeat struct{}

type Disconnect struct{}

type MouseMove struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Button names a mouse button
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Valid reports whether b is one of the three known buttons
func (b Button) Valid() bool {
	return b == ButtonLeft || b == ButtonRight || b == ButtonMiddle
}

type MouseClick struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Button  Button `json:"button"`
	Pressed bool   `json:"pressed"`
}

type MouseScroll struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	ScrollX int `json:"scroll_x"`
	ScrollY int `json:"scroll_y"`
}

type KeyPress struct {
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

type KeyRelease struct {
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

type Clipboard struct {
	Text string `json:"text"`
}

// TakeControl tells a peer it is now driven. MouseX/MouseY, when set, are the
// entry point already mapped into the receiver's screen.
type TakeControl struct {
	Reason string `json:"reason"`
	MouseX *int   `json:"mouse_x,omitempty"`
	MouseY *int   `json:"mouse_y,omitempty"`
}

// ReleaseControl hands input back. The optional point is mapped into the
// receiver's screen.
type ReleaseControl struct {
	Reason string `json:"reason"`
	MouseX *int   `json:"mouse_x,omitempty"`
	MouseY *int   `json:"mouse_y,omitempty"`
}

func (Handshake) Type() MessageType      { return TypeHandshake }
func (HandshakeAck) Type() MessageType   { return TypeHandshake }
func (Heartbeat) Type() MessageType      { return TypeHeartbeat }
func (Disconnect) Type() MessageType     { return TypeDisconnect }
func (MouseMove) Type() MessageType      { return TypeMouseMove }
func (MouseClick) Type() MessageType     { return TypeMouseClick }
func (MouseScroll) Type() MessageType    { return TypeMouseScroll }
func (KeyPress) Type() MessageType       { return TypeKeyPress }
func (KeyRelease) Type() MessageType     { return TypeKeyRelease }
func (Clipboard) Type() MessageType      { return TypeClipboard }
func (TakeControl) Type() MessageType    { return TypeTakeControl }
func (ReleaseControl) Type() MessageType { return TypeReleaseControl }

func (Handshake) message()      {}
func (HandshakeAck) message()   {}
func (Heartbeat) message()      {}
func (Disconnect) message()     {}
func (MouseMove) message()      {}
func (MouseClick) message()     {}
func (MouseScroll) message()    {}
func (KeyPress) message()       {}
func (KeyRelease) message()     {}
func (Clipboard) message()      {}
func (TakeControl) message()    {}
func (ReleaseControl) message() {}

// NewTakeControl builds a take_control, attaching entry when non-nil
func NewTakeControl(reason string, entry *geometry.Point) TakeControl {
	m := TakeControl{Reason: reason}
	if entry != nil {
		x, y := entry.X, entry.Y
		m.MouseX, m.MouseY = &x, &y
	}
	return m
}

// Entry returns the carried point, if both coordinates are present
func (m TakeControl) Entry() (geometry.Point, bool) {
	return entryOf(m.MouseX, m.MouseY)
}

// NewReleaseControl builds a release_control, attaching entry when non-nil
func NewReleaseControl(reason string, entry *geometry.Point) ReleaseControl {
	m := ReleaseControl{Reason: reason}
	if entry != nil {
		x, y := entry.X, entry.Y
		m.MouseX, m.MouseY = &x, &y
	}
	return m
}

func (m ReleaseControl) Entry() (geometry.Point, bool) {
	return entryOf(m.MouseX, m.MouseY)
}

func entryOf(x, y *int) (geometry.Point, bool) {
	if x == nil || y == nil {
		return geometry.Point{}, false
	}
	return geometry.Point{X: *x, Y: *y}, true
}
