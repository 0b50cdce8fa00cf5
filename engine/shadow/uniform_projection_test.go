package shadow

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

func testSubFrustum(near, far float32) common.Frustum {
	f := common.BuildPerspective(float32(math.Pi/3), 16.0/9.0, 0.5, 500)
	f.SetNearZ(near)
	f.SetFarZ(far)
	return f
}

func TestUniformShadowProjection_CoversSlice(t *testing.T) {
	view := common.LookAtLH(mgl32.Vec3{3, 4, -20}, mgl32.Vec3{10, 0, 5}, common.WorldUp)
	viewInverse := view.Inv()
	sub := testSubFrustum(5, 30)

	for _, quantize := range []bool{true, false} {
		p := NewUniformShadowProjection(1024)
		lv, lp, _ := p.Calculate(viewInverse, mgl32.Vec3{0.4, -1, 0.3}, sub, 50, quantize)
		m := lp.Mul4(lv).Mul4(viewInverse)

		// Snapping may shift the volume by up to one texel.
		const tol = 1 + 4.0/1024
		for i, c := range sub.Corners {
			clip := mgl32.TransformCoordinate(c, m)
			if math.Abs(float64(clip.X())) > tol || math.Abs(float64(clip.Y())) > tol || clip.Z() < -1e-4 || clip.Z() > 1.0001 {
				t.Errorf("quantize=%v corner %d clip = %v, outside the shadow volume", quantize, i, clip)
			}
		}
	}
}

func TestUniformShadowProjection_Quantized(t *testing.T) {
	const res = 512
	p := NewUniformShadowProjection(res)
	sub := testSubFrustum(1, 12)

	for _, eye := range []mgl32.Vec3{{0, 2, 0}, {0.013, 2, 0.007}, {-3.3, 2, 1.1}} {
		view := common.LookAtLH(eye, eye.Add(mgl32.Vec3{0, 0, 1}), common.WorldUp)
		lv, lp, _ := p.Calculate(view.Inv(), mgl32.Vec3{0, -1, 0.5}, sub, 20, true)

		ext := 1 / lp[0]
		if !mgl32.FloatEqualThreshold(lp[0], lp[5], 1e-6) {
			t.Errorf("eye %v: extents %v x %v are not square", eye, 1/lp[0], 1/lp[5])
		}
		texel := 2 * ext / res
		base := ext - texel
		if r := math.Mod(float64(base), float64(light.QuantizeExtentStep)); r > 1e-3 && float64(light.QuantizeExtentStep)-r > 1e-3 {
			t.Errorf("eye %v: half extent %v less one texel is not a multiple of %v", eye, ext, light.QuantizeExtentStep)
		}

		for _, k := range []int{12, 13} {
			steps := float64(-lv[k] / texel)
			if math.Abs(steps-math.Round(steps)) > 1e-2 {
				t.Errorf("eye %v: light origin offset %v is not on the texel grid (%v texels)", eye, -lv[k], steps)
			}
		}
	}
}

func TestUniformShadowProjection_QuantizedBoxContainsSlice(t *testing.T) {
	const res = 256
	p := NewUniformShadowProjection(res)
	// A 16 x 16 box seen along +Z has a half extent of exactly two quantize
	// steps, so snapping has no slack beyond the texel padding.
	sub := common.NewFrustumFromCorners([8]mgl32.Vec3{
		{-8, -8, 0}, {8, -8, 0}, {8, 8, 0}, {-8, 8, 0},
		{-8, -8, 16}, {8, -8, 16}, {8, 8, 16}, {-8, 8, 16},
	})

	for _, offset := range []mgl32.Vec3{{0, 0, 0}, {0.37, 0.21, 0.11}, {-2.9, 1.7, 3.3}, {0.062, -0.043, -0.031}} {
		viewInverse := mgl32.Translate3D(offset.X(), offset.Y(), offset.Z())
		lv, lp, _ := p.Calculate(viewInverse, mgl32.Vec3{0, 0, 1}, sub, 10, true)
		m := lp.Mul4(lv).Mul4(viewInverse)

		for i, c := range sub.Corners {
			clip := mgl32.TransformCoordinate(c, m)
			if math.Abs(float64(clip.X())) > 1+1e-5 || math.Abs(float64(clip.Y())) > 1+1e-5 {
				t.Errorf("offset %v corner %d clip = %v, outside the snapped box", offset, i, clip)
			}
		}
	}
}

func TestUniformShadowProjection_ShadowFrustum(t *testing.T) {
	view := mgl32.Ident4()
	sub := testSubFrustum(10, 20)
	p := NewUniformShadowProjection(1024)

	lv, _, sf := p.Calculate(view, mgl32.Vec3{0, -1, 0}, sub, 30, false)

	if sf.PlaneCount <= 6 {
		t.Fatalf("PlaneCount = %d, want clip planes from the slice", sf.PlaneCount)
	}
	center := common.TransformPoint(lv, sub.Center())
	if !sf.InsidePoint(center) {
		t.Error("slice center must be inside the shadow frustum")
	}
	// Directly above the slice, between it and the light: kept.
	above := common.TransformPoint(lv, sub.Center().Add(mgl32.Vec3{0, 20, 0}))
	if !sf.InsidePoint(above) {
		t.Error("caster above the slice must be kept")
	}
	// Far behind the camera: culled by a slice plane.
	behind := common.TransformPoint(lv, mgl32.Vec3{0, 0, -40})
	if sf.InsidePoint(behind) {
		t.Error("point behind the camera must be culled")
	}
}
