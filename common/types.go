// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "github.com/go-gl/mathgl/mgl32"

// Rect is an integer rectangle in texel space, used for atlas regions and pass viewports.
type Rect struct {
	// X and Y are the top-left corner of the rectangle.
	X, Y int
	// Width and Height are the rectangle extents; a rectangle with a non-positive extent is empty.
	Width, Height int
}

// Empty reports whether the rectangle covers no texels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Overlaps reports whether two rectangles share at least one texel.
//
// Parameters:
//   - o: the other rectangle
//
// Returns:
//   - bool: true if the rectangles overlap
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Within reports whether the rectangle lies entirely inside bounds.
//
// Parameters:
//   - bounds: the enclosing rectangle
//
// Returns:
//   - bool: true if r is contained in bounds
func (r Rect) Within(bounds Rect) bool {
	return r.X >= bounds.X && r.Y >= bounds.Y &&
		r.X+r.Width <= bounds.X+bounds.Width &&
		r.Y+r.Height <= bounds.Y+bounds.Height
}

// Sphere is a bounding sphere, used for drawable bounds and light influence volumes.
type Sphere struct {
	// Center is the sphere center.
	Center mgl32.Vec3
	// Radius is the sphere radius.
	Radius float32
}
