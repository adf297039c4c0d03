// Package control classifies pointer gestures and maps them onto device screens.
package control

import (
	"sync"

	"github.com/frudas24/farmdeck/internal/geometry"
)

const (
	// LongPressMs is the press duration separating taps from swipes.
	LongPressMs = 500
	swipeHigh   = 1.1
	swipeLow    = 0.9
)

// PointerSample is a canvas-space pointer position captured at down or up.
type PointerSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"ts"`
}

// Point returns the sample position.
func (s PointerSample) Point() geometry.Point {
	return geometry.Point{X: s.X, Y: s.Y}
}

// Classify decides whether a down/up pair is a tap, a long press or a swipe.
// Movement is measured relative to the down position (±10%), so the
// threshold shrinks toward the origin: at a down coordinate of 0 any
// movement on that axis counts.
func Classify(down, up PointerSample) Gesture {
	dt := up.TimestampMs - down.TimestampMs
	moved := up.X > down.X*swipeHigh ||
		up.X < down.X*swipeLow ||
		up.Y < down.Y*swipeLow ||
		up.Y > down.Y*swipeHigh

	switch {
	case dt > LongPressMs || moved:
		return Swipe(down.Point(), up.Point())
	case dt < LongPressMs:
		return Tap(down.Point())
	default:
		return LongPress(down.Point())
	}
}

// Resolve classifies a down/up pair in canvas space and maps the result to device space.
func Resolve(down, up PointerSample, canvas geometry.Canvas, screen geometry.ScreenSize) (Gesture, error) {
	return MapGesture(Classify(down, up), canvas, screen)
}

// MapGesture maps every point of a canvas-space gesture to device space.
func MapGesture(g Gesture, canvas geometry.Canvas, screen geometry.ScreenSize) (Gesture, error) {
	from, err := MapToDevice(g.From, canvas, screen)
	if err != nil {
		return Gesture{}, err
	}
	g.From = from
	if g.Kind == GestureSwipe {
		to, err := MapToDevice(g.To, canvas, screen)
		if err != nil {
			return Gesture{}, err
		}
		g.To = to
	}
	return g, nil
}

// TrackerState is the state of a control view's gesture tracker.
type TrackerState int

const (
	// StateIdle waits for a pointer down.
	StateIdle TrackerState = iota
	// StateAwaitingUp holds a pointer down until its pointer up arrives.
	StateAwaitingUp
)

// String implements fmt.Stringer.
func (s TrackerState) String() string {
	if s == StateAwaitingUp {
		return "awaiting_up"
	}
	return "idle"
}

// Tracker pairs pointer downs with pointer ups for one control view.
type Tracker struct {
	mu        sync.Mutex
	state     TrackerState
	pointerID int
	down      PointerSample
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Down records a pointer down. A pending down is replaced.
func (t *Tracker) Down(pointerID int, s PointerSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateAwaitingUp
	t.pointerID = pointerID
	t.down = s
}

// Up completes the pending gesture for pointerID. It reports false when no matching down is pending.
func (t *Tracker) Up(pointerID int, s PointerSample) (Gesture, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateAwaitingUp || t.pointerID != pointerID {
		return Gesture{}, false
	}
	t.state = StateIdle
	return Classify(t.down, s), true
}

// Pending returns the held down sample while awaiting an up.
func (t *Tracker) Pending() (PointerSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.down, t.state == StateAwaitingUp
}

// Reset drops any pending down.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateIdle
	t.down = PointerSample{}
}

// State returns the current tracker state.
func (t *Tracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
