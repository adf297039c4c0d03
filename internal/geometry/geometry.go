// Package geometry describes device screens and the canvases that render them.
package geometry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCanvasHeight is the rendered stream height used by the control view.
const DefaultCanvasHeight = 850

var screenSizeRe = regexp.MustCompile(`^(\d+)x(\d+)$`)

// Point is a position in canvas or device pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScreenSize is the native resolution of a device screen.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Canvas is the on-screen size of the rendered device stream.
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ParseError reports a geometry string that does not match "<width>x<height>".
type ParseError struct {
	Input  string
	Reason string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid screen geometry %q: %s", e.Input, e.Reason)
}

// ParseScreenSize parses the inventory geometry string, e.g. "1080x2400".
func ParseScreenSize(s string) (ScreenSize, error) {
	m := screenSizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ScreenSize{}, &ParseError{Input: s, Reason: "expected <width>x<height>"}
	}
	w, err := strconv.Atoi(m[1])
	if err != nil {
		return ScreenSize{}, &ParseError{Input: s, Reason: "width out of range"}
	}
	h, err := strconv.Atoi(m[2])
	if err != nil {
		return ScreenSize{}, &ParseError{Input: s, Reason: "height out of range"}
	}
	if w <= 0 || h <= 0 {
		return ScreenSize{}, &ParseError{Input: s, Reason: "width and height must be positive"}
	}
	return ScreenSize{Width: w, Height: h}, nil
}

// String renders the size back into its wire form.
func (s ScreenSize) String() string {
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

// Valid reports whether both dimensions are positive.
func (s ScreenSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// CanvasFor derives the canvas for a screen rendered at targetHeight, keeping the device aspect ratio.
func CanvasFor(screen ScreenSize, targetHeight float64) Canvas {
	if !screen.Valid() || targetHeight <= 0 {
		return Canvas{}
	}
	return Canvas{
		Width:  targetHeight * (float64(screen.Width) / float64(screen.Height)),
		Height: targetHeight,
	}
}

// Valid reports whether both canvas dimensions are positive.
func (c Canvas) Valid() bool {
	return c.Width > 0 && c.Height > 0
}
