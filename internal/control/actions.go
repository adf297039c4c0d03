// Package control classifies pointer gestures and maps them onto device screens.
package control

import "github.com/frudas24/farmdeck/internal/geometry"

// GestureKind identifies the kind of remote action a gesture produces.
type GestureKind string

const (
	// GestureTap is a short press at a single point.
	GestureTap GestureKind = "tap"
	// GestureLongPress is a touch-and-hold at a single point.
	GestureLongPress GestureKind = "longPress"
	// GestureSwipe is a drag from one point to another.
	GestureSwipe GestureKind = "swipe"
)

// Gesture is the classified result of one pointer-down/pointer-up pair.
// Tap and LongPress only use From.
type Gesture struct {
	Kind GestureKind
	From geometry.Point
	To   geometry.Point
}

// Tap returns a tap gesture at p.
func Tap(p geometry.Point) Gesture {
	return Gesture{Kind: GestureTap, From: p}
}

// LongPress returns a touch-and-hold gesture at p.
func LongPress(p geometry.Point) Gesture {
	return Gesture{Kind: GestureLongPress, From: p}
}

// Swipe returns a swipe gesture from one point to another.
func Swipe(from, to geometry.Point) Gesture {
	return Gesture{Kind: GestureSwipe, From: from, To: to}
}
