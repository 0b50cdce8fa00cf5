package shadow

import (
	"math"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// ShadowProjection fits a directional light's shadow camera around one slice
// of the view frustum.
type ShadowProjection interface {
	// Calculate returns the light view and projection covering viewSubFrustum,
	// plus the light-view-space volume casters must intersect. Only the light
	// direction is taken: a directional light has no position, and the eye is
	// placed behind the slice along that direction.
	//
	// When quantize is set the square extent is rounded up to
	// light.QuantizeExtentStep and padded by one texel, so the center can snap
	// to the texel grid without the slice leaving the box.
	//
	// Parameters:
	//   - viewInverse: view-to-world matrix of the rendering camera
	//   - lightDirection: world-space direction the light travels
	//   - viewSubFrustum: the slice, in view space
	//   - farZ: shadow distance; casters up to 2·farZ in front of the slice are kept
	//   - quantize: square and snap the projection to reduce shimmering
	//
	// Returns:
	//   - lightView: world-to-light-view matrix
	//   - lightProjection: orthographic projection, clip depth [0, 1]
	//   - shadowFrustum: caster cull volume in light view space
	Calculate(viewInverse mgl32.Mat4, lightDirection mgl32.Vec3, viewSubFrustum common.Frustum, farZ float32, quantize bool) (lightView, lightProjection mgl32.Mat4, shadowFrustum common.Frustum)
}

type uniformShadowProjection struct {
	resolution   int
	quantizeStep float32
}

var _ ShadowProjection = &uniformShadowProjection{}

// NewUniformShadowProjection creates the orthographic fit used for cascades.
//
// Parameters:
//   - resolution: texels along one side of a cascade slice, used for snapping
//
// Returns:
//   - ShadowProjection: the projection
func NewUniformShadowProjection(resolution int) ShadowProjection {
	return &uniformShadowProjection{
		resolution:   max(resolution, 1),
		quantizeStep: light.QuantizeExtentStep,
	}
}

func (p *uniformShadowProjection) Calculate(viewInverse mgl32.Mat4, lightDirection mgl32.Vec3, viewSubFrustum common.Frustum, farZ float32, quantize bool) (mgl32.Mat4, mgl32.Mat4, common.Frustum) {
	axisZ := lightDirection
	if axisZ.LenSqr() == 0 {
		axisZ = mgl32.Vec3{0, -1, 0}
	}
	axisZ = axisZ.Normalize()

	var axisX, axisY mgl32.Vec3
	if quantize {
		axisX, axisY = common.OrthonormalBasis(axisZ, common.WorldUp)
	} else {
		axisX = axisZ.Cross(common.AxisX(viewInverse))
		if axisX.LenSqr() < 1e-8 {
			axisX, axisY = common.OrthonormalBasis(axisZ, common.WorldUp)
		} else {
			axisX = axisX.Normalize()
			axisY = axisZ.Cross(axisX)
		}
	}

	rotation := common.BasisView(axisX, axisY, axisZ, mgl32.Vec3{})
	toLight := rotation.Mul4(viewInverse)

	lo := mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))}
	hi := lo.Mul(-1)
	for _, c := range viewSubFrustum.Corners {
		lc := common.TransformPoint(toLight, c)
		lo = common.MinVec3(lo, lc)
		hi = common.MaxVec3(hi, lc)
	}
	center := lo.Add(hi).Mul(0.5)
	extent := hi.Sub(lo).Mul(0.5)

	if quantize {
		e := max(extent.X(), extent.Y())
		e = float32(math.Ceil(float64(e/p.quantizeStep))) * p.quantizeStep
		// Pad by one texel, sized to equal the texel of the padded box.
		texel := 2 * e / float32(max(p.resolution-2, 1))
		e += texel
		extent[0], extent[1] = e, e

		center[0] = float32(math.Floor(float64(center.X()/texel))) * texel
		center[1] = float32(math.Floor(float64(center.Y()/texel))) * texel
	}

	depth := 2*farZ + 2*extent.Z()
	eyeLS := center.Sub(mgl32.Vec3{0, 0, 2*farZ + extent.Z()})
	eye := axisX.Mul(eyeLS.X()).Add(axisY.Mul(eyeLS.Y())).Add(axisZ.Mul(eyeLS.Z()))

	lightView := common.BasisView(axisX, axisY, axisZ, eye)
	lightProjection := common.OrthoLH(2*extent.X(), 2*extent.Y(), 0, depth)

	shadowFrustum := common.BuildOrtho(2*extent.X(), 2*extent.Y(), 0, depth)
	viewToLightView := lightView.Mul4(viewInverse)
	for i := range viewSubFrustum.PlaneCount {
		pl := viewSubFrustum.Planes[i].Transform(viewToLightView)
		if pl.Normal.Z() <= 0 {
			shadowFrustum.AddPlane(pl)
		}
	}
	return lightView, lightProjection, shadowFrustum
}

// spotProjection builds the perspective shadow camera of a spot light. The
// basis keeps the shadow map's X axis perpendicular to the camera's forward
// direction.
//
// Parameters:
//   - l: the spot light
//   - cameraForward: world-space viewing direction
//
// Returns:
//   - lightView: world-to-light-view matrix
//   - lightProjection: perspective projection, clip depth [0, 1]
//   - cull: caster cull volume in light view space
func spotProjection(l light.Light, cameraForward mgl32.Vec3) (mgl32.Mat4, mgl32.Mat4, common.Frustum) {
	axisZ := l.Direction()
	if axisZ.LenSqr() == 0 {
		axisZ = mgl32.Vec3{0, -1, 0}
	}
	axisZ = axisZ.Normalize()

	var axisX, axisY mgl32.Vec3
	axisX = cameraForward.Cross(axisZ)
	if axisX.LenSqr() < 1e-8 {
		axisX, axisY = common.OrthonormalBasis(axisZ, common.WorldUp)
	} else {
		axisX = axisX.Normalize()
		axisY = axisZ.Cross(axisX)
	}

	fov := 2 * l.ConeAngle()
	far := max(l.FarRange(), light.SpotShadowNear*2)
	lightView := common.BasisView(axisX, axisY, axisZ, l.Position())
	lightProjection := common.PerspectiveLH(fov, 1, light.SpotShadowNear, far)
	return lightView, lightProjection, common.BuildPerspective(fov, 1, light.SpotShadowNear, far)
}
