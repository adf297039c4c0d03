// Package inventory keeps the set of farm devices the viewer can open.
package inventory

import (
	"github.com/frudas24/farmdeck/internal/geometry"
)

// OSiOS and OSAndroid are the supported device platforms.
const (
	OSiOS     = "ios"
	OSAndroid = "android"
)

// Device is one farm device as recorded in the inventory.
type Device struct {
	UDID      string `yaml:"udid" json:"udid"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	OS        string `yaml:"os" json:"os"`
	Screen    string `yaml:"screen" json:"screen"`
	StreamURL string `yaml:"streamUrl,omitempty" json:"streamUrl,omitempty"`
}

// ScreenSize parses the device's screen geometry.
func (d Device) ScreenSize() (geometry.ScreenSize, error) {
	return geometry.ParseScreenSize(d.Screen)
}

// Canvas returns the canvas the device renders to at the given height.
func (d Device) Canvas(height float64) (geometry.Canvas, error) {
	screen, err := d.ScreenSize()
	if err != nil {
		return geometry.Canvas{}, err
	}
	return geometry.CanvasFor(screen, height), nil
}
