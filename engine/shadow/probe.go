package shadow

import (
	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// DynamicProbe answers whether anything that moves overlaps a volume. The
// scheduler uses it to decide whether a cached cascade slice must be redrawn.
type DynamicProbe interface {
	// HasDynamicContent reports whether a dynamic drawable or dynamic light
	// touches volume.
	//
	// Parameters:
	//   - view: the world-to-view matrix volume is expressed in
	//   - volume: the view-space volume
	//
	// Returns:
	//   - bool: true if dynamic content overlaps the volume
	HasDynamicContent(view mgl32.Mat4, volume *common.Frustum) bool
}

// ListProbe is a DynamicProbe over gathered drawables and lights.
type ListProbe struct {
	Drawables []renderer.Drawable
	Lights    light.LightList
}

var _ DynamicProbe = ListProbe{}

func (p ListProbe) HasDynamicContent(view mgl32.Mat4, volume *common.Frustum) bool {
	for _, d := range p.Drawables {
		if !d.Dynamic() {
			continue
		}
		b := d.WorldBounds()
		if volume.InsideSphere(common.TransformPoint(view, b.Center), b.Radius) != common.Outside {
			return true
		}
	}
	for _, l := range p.Lights {
		if l == nil || !l.Dynamic() || l.Type() == light.LightTypeDisabled {
			continue
		}
		if l.Type() == light.LightTypeDirectional {
			return true
		}
		b := l.Bounds()
		if volume.InsideSphere(common.TransformPoint(view, b.Center), b.Radius) != common.Outside {
			return true
		}
	}
	return false
}
