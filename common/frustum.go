package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: n·p + d = 0
// where n is the unit normal and d is the distance term.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// NewPlaneFromPoints creates a plane through three points. The normal follows
// the winding (b-a) x (c-a).
//
// Parameters:
//   - a, b, c: three non-collinear points on the plane
//
// Returns:
//   - Plane: the normalized plane
func NewPlaneFromPoints(a, b, c mgl32.Vec3) Plane {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Len(); l > 0 {
		n = n.Mul(1.0 / l)
	}
	return Plane{Normal: n, Distance: -n.Dot(a)}
}

// SignedDistance returns the signed distance from the plane to a point.
// Positive values lie on the side the normal points to.
func (p Plane) SignedDistance(pt mgl32.Vec3) float32 {
	return p.Normal.Dot(pt) + p.Distance
}

// Flipped returns the plane with its orientation reversed.
func (p Plane) Flipped() Plane {
	return Plane{Normal: p.Normal.Mul(-1), Distance: -p.Distance}
}

// Transform returns the plane moved by the point transform m.
//
// Parameters:
//   - m: the transform applied to points on the plane
//
// Returns:
//   - Plane: the transformed, renormalized plane
func (p Plane) Transform(m mgl32.Mat4) Plane {
	v := m.Inv().Transpose().Mul4x1(p.Normal.Vec4(p.Distance))
	n := v.Vec3()
	l := n.Len()
	if l == 0 {
		return p
	}
	return Plane{Normal: n.Mul(1.0 / l), Distance: v.W() / l}
}

// IntersectionResult classifies a volume against a frustum.
type IntersectionResult int

const (
	// Outside means the volume is entirely outside the frustum.
	Outside IntersectionResult = iota
	// Intersecting means the volume straddles at least one plane.
	Intersecting
	// Inside means the volume is entirely inside the frustum.
	Inside
)

// MaxFrustumPlanes is the plane capacity of a Frustum: the six box planes plus clip planes.
const MaxFrustumPlanes = 12

// containmentEpsilon absorbs float error when a point lies on a plane.
const containmentEpsilon float32 = 1e-3

// Frustum represents a convex view volume for culling and containment tests.
// Planes are oriented so that the positive half-space is inside the frustum.
// Corners are ordered near left-bottom, right-bottom, right-top, left-top,
// then the same four on the far face. Frusta are expressed in a left-handed
// space looking down +Z.
type Frustum struct {
	Planes     [MaxFrustumPlanes]Plane // Left, Right, Bottom, Top, Near, Far, then clip planes
	PlaneCount int
	Corners    [8]mgl32.Vec3
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// BuildPerspective creates a view-space perspective frustum with its apex at the origin.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: width/height ratio
//   - near: near plane depth (> 0)
//   - far: far plane depth (> near)
//
// Returns:
//   - Frustum: the frustum with corners and the six box planes
func BuildPerspective(fovY, aspect, near, far float32) Frustum {
	t := float32(math.Tan(float64(fovY) / 2.0))
	nh, fh := near*t, far*t
	nw, fw := nh*aspect, fh*aspect
	return NewFrustumFromCorners([8]mgl32.Vec3{
		{-nw, -nh, near}, {nw, -nh, near}, {nw, nh, near}, {-nw, nh, near},
		{-fw, -fh, far}, {fw, -fh, far}, {fw, fh, far}, {-fw, fh, far},
	})
}

// BuildOrtho creates a view-space orthographic frustum centered on the Z axis.
//
// Parameters:
//   - width: box width
//   - height: box height
//   - near: near plane depth
//   - far: far plane depth
//
// Returns:
//   - Frustum: the box-shaped frustum
func BuildOrtho(width, height, near, far float32) Frustum {
	w, h := width/2, height/2
	return NewFrustumFromCorners([8]mgl32.Vec3{
		{-w, -h, near}, {w, -h, near}, {w, h, near}, {-w, h, near},
		{-w, -h, far}, {w, -h, far}, {w, h, far}, {-w, h, far},
	})
}

// NewFrustumFromCorners creates a frustum from its eight corners and derives the six box planes.
//
// Parameters:
//   - corners: the corners in near lb, rb, rt, lt, far lb, rb, rt, lt order
//
// Returns:
//   - Frustum: the frustum
func NewFrustumFromCorners(corners [8]mgl32.Vec3) Frustum {
	f := Frustum{Corners: corners}
	f.rebuildPlanes()
	return f
}

// ExtractFrustumFromMatrix extracts frustum planes from a projection or view-projection matrix
// using the Gribb/Hartmann method, adapted to a [0, 1] clip depth range. Corners are
// recovered by unprojecting the clip-space cube.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the column-major matrix (projection alone yields a view-space frustum)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	var f Frustum
	r0, r1, r2, r3 := viewProj.Rows()

	rows := [6]mgl32.Vec4{
		r3.Add(r0), // left
		r3.Sub(r0), // right
		r3.Add(r1), // bottom
		r3.Sub(r1), // top
		r2,         // near (z >= 0)
		r3.Sub(r2), // far (z <= w)
	}
	for i, r := range rows {
		n := r.Vec3()
		l := n.Len()
		if l > 0 {
			f.Planes[i] = Plane{Normal: n.Mul(1.0 / l), Distance: r.W() / l}
		}
	}
	f.PlaneCount = 6

	inv := viewProj.Inv()
	ndc := [8]mgl32.Vec3{
		{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	for i, c := range ndc {
		f.Corners[i] = mgl32.TransformCoordinate(c, inv)
	}
	return f
}

// rebuildPlanes derives the six box planes from the corners and drops any clip planes.
// Each plane is oriented to contain the corner centroid.
func (f *Frustum) rebuildPlanes() {
	c := f.Corners
	tris := [6][3]int{
		{4, 7, 0}, // left
		{5, 6, 1}, // right
		{4, 5, 0}, // bottom
		{7, 6, 3}, // top
		{0, 1, 2}, // near
		{4, 5, 6}, // far
	}
	center := f.Center()
	for i, t := range tris {
		p := NewPlaneFromPoints(c[t[0]], c[t[1]], c[t[2]])
		if p.SignedDistance(center) < 0 {
			p = p.Flipped()
		}
		f.Planes[i] = p
	}
	f.PlaneCount = 6
}

// Center returns the centroid of the eight corners.
func (f *Frustum) Center() mgl32.Vec3 {
	var sum mgl32.Vec3
	for _, c := range f.Corners {
		sum = sum.Add(c)
	}
	return sum.Mul(1.0 / 8.0)
}

// NearZ returns the depth of the near face.
func (f *Frustum) NearZ() float32 { return f.Corners[0].Z() }

// FarZ returns the depth of the far face.
func (f *Frustum) FarZ() float32 { return f.Corners[4].Z() }

// SetNearZ moves the near face to depth z along the frustum's side edges.
// Clip planes added with AddPlane are dropped.
//
// Parameters:
//   - z: the new near depth
func (f *Frustum) SetNearZ(z float32) {
	for i := range 4 {
		f.Corners[i] = edgeAtDepth(f.Corners[i], f.Corners[i+4], z)
	}
	f.rebuildPlanes()
}

// SetFarZ moves the far face to depth z along the frustum's side edges.
// Clip planes added with AddPlane are dropped.
//
// Parameters:
//   - z: the new far depth
func (f *Frustum) SetFarZ(z float32) {
	for i := range 4 {
		f.Corners[i+4] = edgeAtDepth(f.Corners[i], f.Corners[i+4], z)
	}
	f.rebuildPlanes()
}

// edgeAtDepth returns the point on the line through a and b at depth z.
func edgeAtDepth(a, b mgl32.Vec3, z float32) mgl32.Vec3 {
	dz := b.Z() - a.Z()
	if dz == 0 {
		return mgl32.Vec3{a.X(), a.Y(), z}
	}
	return LerpVec3(a, b, (z-a.Z())/dz)
}

// Scale grows or shrinks the frustum about its centroid. A factor of 1 is a no-op.
//
// Parameters:
//   - factor: the uniform scale factor
func (f *Frustum) Scale(factor float32) {
	if factor == 1 {
		return
	}
	center := f.Center()
	for i, c := range f.Corners {
		f.Corners[i] = center.Add(c.Sub(center).Mul(factor))
	}
	f.rebuildPlanes()
}

// AddPlane appends a clip plane. Returns false when the plane capacity is exhausted.
//
// Parameters:
//   - p: the plane, oriented with the inside on its positive side
//
// Returns:
//   - bool: true if the plane was added
func (f *Frustum) AddPlane(p Plane) bool {
	if f.PlaneCount >= MaxFrustumPlanes {
		return false
	}
	f.Planes[f.PlaneCount] = p
	f.PlaneCount++
	return true
}

// Transform returns the frustum moved by the point transform m. Corners are
// transformed and box planes rebuilt; clip planes are transformed individually.
//
// Parameters:
//   - m: the transform to apply
//
// Returns:
//   - Frustum: the transformed frustum
func (f Frustum) Transform(m mgl32.Mat4) Frustum {
	out := Frustum{}
	for i, c := range f.Corners {
		out.Corners[i] = TransformPoint(m, c)
	}
	out.rebuildPlanes()
	for i := 6; i < f.PlaneCount; i++ {
		out.AddPlane(f.Planes[i].Transform(m))
	}
	return out
}

// InsidePoint reports whether a point lies inside every plane.
func (f *Frustum) InsidePoint(p mgl32.Vec3) bool {
	for i := range f.PlaneCount {
		if f.Planes[i].SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

// InsideSphere classifies a sphere against the frustum. The test is conservative:
// spheres near a corner may report Intersecting while being outside.
//
// Parameters:
//   - center: sphere center
//   - radius: sphere radius
//
// Returns:
//   - IntersectionResult: Outside, Intersecting or Inside
func (f *Frustum) InsideSphere(center mgl32.Vec3, radius float32) IntersectionResult {
	result := Inside
	for i := range f.PlaneCount {
		d := f.Planes[i].SignedDistance(center)
		if d < -radius {
			return Outside
		}
		if d < radius {
			result = Intersecting
		}
	}
	return result
}

// InsideFrustum classifies another frustum against this one after moving this
// frustum by delta. Inside means every corner of other lies within the moved frustum.
//
// Parameters:
//   - delta: transform applied to this frustum first
//   - other: the frustum to test
//
// Returns:
//   - IntersectionResult: Outside, Intersecting or Inside
func (f *Frustum) InsideFrustum(delta mgl32.Mat4, other Frustum) IntersectionResult {
	moved := f.Transform(delta)
	inside := 0
	for _, c := range other.Corners {
		in := true
		for i := range moved.PlaneCount {
			if moved.Planes[i].SignedDistance(c) < -containmentEpsilon {
				in = false
				break
			}
		}
		if in {
			inside++
		}
	}
	if inside == len(other.Corners) {
		return Inside
	}
	for i := range moved.PlaneCount {
		out := 0
		for _, c := range other.Corners {
			if moved.Planes[i].SignedDistance(c) < -containmentEpsilon {
				out++
			}
		}
		if out == len(other.Corners) {
			return Outside
		}
	}
	return Intersecting
}
