// Package control classifies pointer gestures and maps them onto device screens.
package control

import (
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/pkg/errors"
)

// ErrInvalidGeometry is returned when a canvas or screen has a non-positive dimension.
var ErrInvalidGeometry = errors.New("canvas and screen dimensions must be positive")

// MapToDevice converts a canvas-space point to device pixels.
// Points pass through unchanged when the canvas is rendered at native height.
func MapToDevice(p geometry.Point, canvas geometry.Canvas, screen geometry.ScreenSize) (geometry.Point, error) {
	if !canvas.Valid() || !screen.Valid() {
		return geometry.Point{}, errors.Wrapf(ErrInvalidGeometry, "canvas %vx%v screen %s", canvas.Width, canvas.Height, screen)
	}
	if canvas.Height == float64(screen.Height) {
		return p, nil
	}
	return geometry.Point{
		X: p.X / canvas.Width * float64(screen.Width),
		Y: p.Y / canvas.Height * float64(screen.Height),
	}, nil
}
