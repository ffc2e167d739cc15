package stream

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Key addresses one tile of one pyramid level.
//
// For untiled and single-image datasets the controller uses a single key
// per level with X and Y of zero.
type Key struct {
	Level int
	X     int
	Y     int
}

// String returns the "level/x/y" form used in logs and store keys.
func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.X, k.Y)
}

// Parent returns the covering key one level coarser.
func (k Key) Parent() Key {
	return Key{Level: k.Level - 1, X: k.X / 2, Y: k.Y / 2}
}

// Children returns the four covered keys one level finer.
func (k Key) Children() [4]Key {
	return [4]Key{
		{Level: k.Level + 1, X: k.X * 2, Y: k.Y * 2},
		{Level: k.Level + 1, X: k.X*2 + 1, Y: k.Y * 2},
		{Level: k.Level + 1, X: k.X * 2, Y: k.Y*2 + 1},
		{Level: k.Level + 1, X: k.X*2 + 1, Y: k.Y*2 + 1},
	}
}

// Viewport is the visible map state polled on each update.
type Viewport struct {
	// Zoom is the map zoom level; fractional zooms are allowed.
	Zoom float64

	// Bounds is the visible bounding box (west, south, east, north) in
	// WGS-84 longitude/latitude degrees, regardless of the dataset CRS.
	Bounds orb.Bound
}
