package control

import (
	"testing"

	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample builds a pointer sample.
func sample(x, y float64, ts int64) PointerSample {
	return PointerSample{X: x, Y: y, TimestampMs: ts}
}

// TestClassify_ShortStillPressIsTap verifies a short press without movement taps at the down position.
func TestClassify_ShortStillPressIsTap(t *testing.T) {
	g := Classify(sample(100, 100, 1000), sample(100, 100, 1200))
	assert.Equal(t, Tap(geometry.Point{X: 100, Y: 100}), g)
}

// TestClassify_TapUsesDownPosition verifies small drift inside the threshold still targets the down point.
func TestClassify_TapUsesDownPosition(t *testing.T) {
	g := Classify(sample(100, 100, 0), sample(105, 95, 100))
	assert.Equal(t, GestureTap, g.Kind)
	assert.Equal(t, geometry.Point{X: 100, Y: 100}, g.From)
}

// TestClassify_HorizontalMoveIsSwipe verifies movement beyond 10% swipes even for a quick press.
func TestClassify_HorizontalMoveIsSwipe(t *testing.T) {
	g := Classify(sample(100, 100, 1000), sample(300, 100, 1100))
	assert.Equal(t, Swipe(geometry.Point{X: 100, Y: 100}, geometry.Point{X: 300, Y: 100}), g)
}

// TestClassify_EachRatioTriggersSwipe verifies all four ratio conditions independently.
func TestClassify_EachRatioTriggersSwipe(t *testing.T) {
	down := sample(100, 100, 0)
	for name, up := range map[string]PointerSample{
		"right": sample(111, 100, 10),
		"left":  sample(89, 100, 10),
		"up":    sample(100, 89, 10),
		"down":  sample(100, 111, 10),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, GestureSwipe, Classify(down, up).Kind)
		})
	}
}

// TestClassify_ThresholdBoundaryIsExclusive verifies exactly ±10% does not count as movement.
func TestClassify_ThresholdBoundaryIsExclusive(t *testing.T) {
	assert.Equal(t, GestureTap, Classify(sample(100, 100, 0), sample(110, 90, 10)).Kind)
}

// TestClassify_LongDurationIsSwipe verifies any press longer than 500ms is a swipe regardless of coordinates.
func TestClassify_LongDurationIsSwipe(t *testing.T) {
	for _, dt := range []int64{501, 750, 10_000} {
		g := Classify(sample(50, 50, 0), sample(50, 50, dt))
		require.Equal(t, GestureSwipe, g.Kind, "dt=%d", dt)
		assert.Equal(t, geometry.Point{X: 50, Y: 50}, g.To)
	}
}

// TestClassify_ExactThresholdIsLongPress verifies the dt == 500 residue yields a long press at the down point.
func TestClassify_ExactThresholdIsLongPress(t *testing.T) {
	g := Classify(sample(40, 60, 1000), sample(41, 61, 1500))
	assert.Equal(t, LongPress(geometry.Point{X: 40, Y: 60}), g)
}

// TestClassify_ZeroOrigin verifies the multiplicative threshold collapses at a zero down coordinate.
func TestClassify_ZeroOrigin(t *testing.T) {
	assert.Equal(t, Tap(geometry.Point{}), Classify(sample(0, 0, 0), sample(0, 0, 100)))
	assert.Equal(t, GestureSwipe, Classify(sample(0, 50, 0), sample(0.5, 50, 100)).Kind)
	assert.Equal(t, GestureSwipe, Classify(sample(50, 0, 0), sample(50, -0.5, 100)).Kind)
}

// TestClassify_ThresholdScalesWithPosition verifies the same drift taps far from the origin and swipes near it.
func TestClassify_ThresholdScalesWithPosition(t *testing.T) {
	assert.Equal(t, GestureTap, Classify(sample(1000, 1000, 0), sample(1050, 1000, 100)).Kind)
	assert.Equal(t, GestureSwipe, Classify(sample(100, 1000, 0), sample(150, 1000, 100)).Kind)
}

// TestResolve_MapsBothSwipePoints verifies swipes are mapped end to end into device space.
func TestResolve_MapsBothSwipePoints(t *testing.T) {
	screen := geometry.ScreenSize{Width: 1080, Height: 2400}
	canvas := geometry.CanvasFor(screen, geometry.DefaultCanvasHeight)

	g, err := Resolve(sample(0, 0, 0), sample(382.5, 850, 900), canvas, screen)
	require.NoError(t, err)
	assert.Equal(t, GestureSwipe, g.Kind)
	assert.Equal(t, geometry.Point{X: 0, Y: 0}, g.From)
	assert.InDelta(t, 1080, g.To.X, 1e-9)
	assert.InDelta(t, 2400, g.To.Y, 1e-9)
}

// TestResolve_InvalidCanvas verifies mapping failures surface before any dispatch.
func TestResolve_InvalidCanvas(t *testing.T) {
	_, err := Resolve(sample(1, 1, 0), sample(1, 1, 10), geometry.Canvas{}, geometry.ScreenSize{Width: 1, Height: 1})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

// TestTracker_DownUpCycle verifies the idle/awaiting state machine.
func TestTracker_DownUpCycle(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateIdle, tr.State())

	tr.Down(1, sample(10, 10, 0))
	assert.Equal(t, StateAwaitingUp, tr.State())

	g, ok := tr.Up(1, sample(10, 10, 50))
	require.True(t, ok)
	assert.Equal(t, GestureTap, g.Kind)
	assert.Equal(t, StateIdle, tr.State())
}

// TestTracker_UpWithoutDown verifies stray ups are ignored.
func TestTracker_UpWithoutDown(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Up(1, sample(10, 10, 50))
	assert.False(t, ok)
}

// TestTracker_UpFromOtherPointer verifies ups from a different pointer keep the gesture pending.
func TestTracker_UpFromOtherPointer(t *testing.T) {
	tr := NewTracker()
	tr.Down(1, sample(10, 10, 0))
	_, ok := tr.Up(2, sample(10, 10, 50))
	assert.False(t, ok)
	assert.Equal(t, StateAwaitingUp, tr.State())
}

// TestTracker_SecondDownReplaces verifies a new down replaces the pending one.
func TestTracker_SecondDownReplaces(t *testing.T) {
	tr := NewTracker()
	tr.Down(1, sample(10, 10, 0))
	tr.Down(1, sample(200, 200, 100))
	pending, ok := tr.Pending()
	require.True(t, ok)
	assert.Equal(t, sample(200, 200, 100), pending)

	tr.Reset()
	_, ok = tr.Pending()
	assert.False(t, ok)
}
