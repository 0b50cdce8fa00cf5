package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController owns the positional state (position, target) of a camera.
// The camera reads from its controller on Update and derives its matrices.
// Orbit methods move the position on a sphere around the target; pan methods
// translate position and target together along the camera's local axes.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space camera position
	Position() mgl32.Vec3

	// SetPosition sets the camera's world-space position directly. The orbit
	// radius and angles are re-derived from the new offset to the target.
	//
	// Parameters:
	//   - p: world-space position
	SetPosition(p mgl32.Vec3)

	// Target returns the look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: world-space target position
	Target() mgl32.Vec3

	// SetTarget moves the look-at point and recomputes the position from the orbit angles.
	//
	// Parameters:
	//   - t: world-space target position
	SetTarget(t mgl32.Vec3)

	// Orbit rotates the position around the target. Elevation is clamped to the
	// configured bounds.
	//
	// Parameters:
	//   - dAzimuth: azimuth change in radians
	//   - dElevation: elevation change in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the camera toward the target. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates position and target along the local right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: offsets scaled by the pan speed
	Pan(right, up, forward float32)

	// Radius returns the distance between position and target.
	//
	// Returns:
	//   - float32: the orbit radius
	Radius() float32

	// Azimuth returns the horizontal orbit angle in radians.
	//
	// Returns:
	//   - float32: the azimuth
	Azimuth() float32

	// Elevation returns the vertical orbit angle in radians.
	//
	// Returns:
	//   - float32: the elevation
	Elevation() float32
}
