package camera

import (
	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/go-gl/mathgl/mgl32"
)

// RenderView is an immutable per-frame snapshot of one camera. The lighting core
// keys its temporal state by Index, so every view rendered in a frame must carry
// a distinct index.
type RenderView struct {
	Index       int
	View        mgl32.Mat4 // world to view, left-handed, looking down +Z
	LastView    mgl32.Mat4 // View of the previous frame; equals View on the first frame
	Projection  mgl32.Mat4
	ViewFrustum common.Frustum // view-space frustum of Projection
	EyePosition mgl32.Vec3
	Time        float32
	DeltaTime   float32
	FrameCount  uint64
}

// NewRenderView builds a first-frame view from a view matrix and perspective settings.
// LastView is set to view and the timing fields are zero.
//
// Parameters:
//   - index: the view index
//   - view: the world-to-view matrix
//   - fovY: vertical field of view in radians
//   - aspect: width/height ratio
//   - near: near plane depth
//   - far: far plane depth
//
// Returns:
//   - RenderView: the view snapshot
func NewRenderView(index int, view mgl32.Mat4, fovY, aspect, near, far float32) RenderView {
	return RenderView{
		Index:       index,
		View:        view,
		LastView:    view,
		Projection:  common.PerspectiveLH(fovY, aspect, near, far),
		ViewFrustum: common.BuildPerspective(fovY, aspect, near, far),
		EyePosition: common.Translation(view.Inv()),
	}
}

// ViewInverse returns the view-to-world matrix.
func (v RenderView) ViewInverse() mgl32.Mat4 {
	return v.View.Inv()
}

// ViewDelta returns the matrix that carries last frame's view space into this
// frame's view space.
func (v RenderView) ViewDelta() mgl32.Mat4 {
	return v.View.Mul4(v.LastView.Inv())
}

// Near returns the near plane depth of the view frustum.
func (v RenderView) Near() float32 {
	return v.ViewFrustum.NearZ()
}

// Far returns the far plane depth of the view frustum.
func (v RenderView) Far() float32 {
	return v.ViewFrustum.FarZ()
}

// Forward returns the world-space viewing direction.
func (v RenderView) Forward() mgl32.Vec3 {
	return common.AxisZ(v.ViewInverse()).Normalize()
}

// Right returns the world-space right axis.
func (v RenderView) Right() mgl32.Vec3 {
	return common.AxisX(v.ViewInverse()).Normalize()
}
