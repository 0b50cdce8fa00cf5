package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// WorldUp is the world-space up axis used when building light bases.
var WorldUp = mgl32.Vec3{0, 1, 0}

// worldForward is the fallback basis reference when a direction is parallel to WorldUp.
var worldForward = mgl32.Vec3{0, 0, 1}

// PerspectiveLH creates a left-handed perspective projection matrix looking down +Z.
// View depth in [near, far] maps to clip depth [0, 1] (WebGPU convention).
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func PerspectiveLH(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (far - near)
	m[11] = 1.0
	m[14] = -near * far / (far - near)
	return m
}

// OrthoLH creates a left-handed orthographic projection centered on the view axis.
// View depth in [near, far] maps to clip depth [0, 1].
//
// Parameters:
//   - width: width of the view volume
//   - height: height of the view volume
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func OrthoLH(width, height, near, far float32) mgl32.Mat4 {
	var m mgl32.Mat4
	m[0] = 2.0 / width
	m[5] = 2.0 / height
	m[10] = 1.0 / (far - near)
	m[14] = -near / (far - near)
	m[15] = 1.0
	return m
}

// BasisView builds the view matrix of a frame described by three orthonormal axes and an origin.
// The result is the inverse of the frame's world transform.
//
// Parameters:
//   - axisX, axisY, axisZ: orthonormal frame axes in world space
//   - origin: frame origin in world space
//
// Returns:
//   - mgl32.Mat4: the world-to-frame matrix
func BasisView(axisX, axisY, axisZ, origin mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Mat4FromRows(
		axisX.Vec4(-axisX.Dot(origin)),
		axisY.Vec4(-axisY.Dot(origin)),
		axisZ.Vec4(-axisZ.Dot(origin)),
		mgl32.Vec4{0, 0, 0, 1},
	)
}

// LookAtLH creates a left-handed view matrix for an eye looking at a target (+Z forward).
//
// Parameters:
//   - eye: camera position in world space
//   - target: point the camera looks at
//   - up: up vector defining camera orientation (typically WorldUp)
//
// Returns:
//   - mgl32.Mat4: the world-to-view matrix
func LookAtLH(eye, target, up mgl32.Vec3) mgl32.Mat4 {
	forward := target.Sub(eye)
	if forward.LenSqr() == 0 {
		forward = worldForward
	}
	axisZ := forward.Normalize()
	axisX, axisY := OrthonormalBasis(axisZ, up)
	return BasisView(axisX, axisY, axisZ, eye)
}

// OrthonormalBasis completes a right/up pair around a forward axis.
// Falls back to a secondary reference axis when forward is parallel to up.
//
// Parameters:
//   - axisZ: normalized forward axis
//   - up: reference up vector
//
// Returns:
//   - axisX: normalized right axis
//   - axisY: normalized up axis
func OrthonormalBasis(axisZ, up mgl32.Vec3) (axisX, axisY mgl32.Vec3) {
	axisX = up.Cross(axisZ)
	if axisX.LenSqr() < 1e-8 {
		axisX = worldForward.Cross(axisZ)
		if axisX.LenSqr() < 1e-8 {
			axisX = mgl32.Vec3{1, 0, 0}.Cross(axisZ)
		}
	}
	axisX = axisX.Normalize()
	axisY = axisZ.Cross(axisX).Normalize()
	return axisX, axisY
}

// TransformPoint transforms a position by an affine matrix (w = 1).
func TransformPoint(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// TransformDirection transforms a direction by a matrix, ignoring translation (w = 0).
func TransformDirection(m mgl32.Mat4, d mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(d.Vec4(0)).Vec3()
}

// AxisX returns the first basis column of a transform.
func AxisX(m mgl32.Mat4) mgl32.Vec3 { return m.Col(0).Vec3() }

// AxisY returns the second basis column of a transform.
func AxisY(m mgl32.Mat4) mgl32.Vec3 { return m.Col(1).Vec3() }

// AxisZ returns the third basis column of a transform.
func AxisZ(m mgl32.Mat4) mgl32.Vec3 { return m.Col(2).Vec3() }

// Translation returns the translation column of a transform.
func Translation(m mgl32.Mat4) mgl32.Vec3 { return m.Col(3).Vec3() }

// Lerp linearly interpolates between a and b.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// LerpVec3 linearly interpolates between two vectors.
func LerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// MinVec3 returns the component-wise minimum of two vectors.
func MinVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

// MaxVec3 returns the component-wise maximum of two vectors.
func MaxVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
