// Package control classifies pointer gestures and maps them onto device screens.
package control

// Message is a control websocket payload sent by the viewer.
type Message struct {
	T  string  `json:"t"`
	ID int     `json:"id,omitempty"`
	X  float64 `json:"x,omitempty"`
	Y  float64 `json:"y,omitempty"`
	TS int64   `json:"ts,omitempty"`
	W  float64 `json:"w,omitempty"`
	H  float64 `json:"h,omitempty"`
}

// Sample returns the pointer sample carried by a down/up message.
func (m Message) Sample() PointerSample {
	return PointerSample{X: m.X, Y: m.Y, TimestampMs: m.TS}
}

// Event is a control websocket payload sent to the viewer.
type Event struct {
	T      string      `json:"t"`
	Kind   GestureKind `json:"kind,omitempty"`
	X      *float64    `json:"x,omitempty"`
	Y      *float64    `json:"y,omitempty"`
	EndX   *float64    `json:"endX,omitempty"`
	EndY   *float64    `json:"endY,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Width  float64     `json:"width,omitempty"`
	Height float64     `json:"height,omitempty"`
}

const (
	// EventReady tells the viewer the canvas size to render.
	EventReady = "ready"
	// EventGesture reports a dispatched gesture in device space.
	EventGesture = "gesture"
	// EventSessionExpired prompts the viewer to refresh or leave.
	EventSessionExpired = "sessionExpired"
	// EventError reports a fatal control view error.
	EventError = "error"
)

// gestureEvent converts a device-space gesture into its outgoing event.
func gestureEvent(g Gesture) Event {
	ev := Event{T: EventGesture, Kind: g.Kind, X: coord(g.From.X), Y: coord(g.From.Y)}
	if g.Kind == GestureSwipe {
		ev.EndX = coord(g.To.X)
		ev.EndY = coord(g.To.Y)
	}
	return ev
}

// coord boxes a coordinate so zero still reaches the wire.
func coord(v float64) *float64 {
	return &v
}
