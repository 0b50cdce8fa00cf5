package scene

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// vecNear reports whether a and b are within tol of each other. Unlike
// mgl32's ApproxEqual it holds for components that are zero.
func vecNear(a, b mgl32.Vec3, tol float32) bool {
	return a.Sub(b).Len() <= tol
}

func newTestScene(opts ...SceneBuilderOption) Scene {
	return NewScene("test", camera.NewCamera(), opts...)
}

func TestScene_GatherArrangesLights(t *testing.T) {
	point := light.NewLight(light.LightTypePoint, light.WithPosition(0, 0, 10), light.WithRange(5))
	sun := light.NewLight(light.LightTypeDirectional, light.WithDirection(0, -1, 1), light.WithCastsShadows(true))
	fill := light.NewLight(light.LightTypeDirectional, light.WithDirection(1, -1, 0))
	s := newTestScene(WithLights(point, sun, fill))

	tests := []struct {
		name      string
		shadows   bool
		wantSlot0 light.Light
		wantTail  []light.Light
	}{
		{"shadows on", true, sun, []light.Light{point, fill}},
		{"shadows off", false, nil, []light.Light{point, sun, fill}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := s.Gather(16, tt.shadows)
			if g.Lights.CascadeLight() != tt.wantSlot0 {
				t.Errorf("slot 0 = %v, want %v", g.Lights.CascadeLight(), tt.wantSlot0)
			}
			tail := g.Lights[light.CascadeSlotCount:]
			if len(tail) != len(tt.wantTail) {
				t.Fatalf("tail length = %d, want %d", len(tail), len(tt.wantTail))
			}
			for i := range tail {
				if tail[i] != tt.wantTail[i] {
					t.Errorf("slot %d holds the wrong light", light.CascadeSlotCount+i)
				}
			}
		})
	}
}

func TestScene_GatherSkipsInvalidLights(t *testing.T) {
	bad := light.NewLight(light.LightTypePoint, light.WithPosition(float32(math.NaN()), 0, 0), light.WithRange(5))
	good := light.NewLight(light.LightTypePoint, light.WithRange(5))
	s := newTestScene(WithLights(bad, good))

	g := s.Gather(16, true)
	if g.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", g.Rejected)
	}
	if n := g.Lights.ActiveCount(); n != 1 {
		t.Errorf("active lights = %d, want 1", n)
	}
}

func TestScene_GatherKeepsOrderAfterRemove(t *testing.T) {
	s := newTestScene()
	var lights []light.Light
	first := s.AddLight(light.NewLight(light.LightTypePoint, light.WithRange(1)))
	for i := range 4 {
		l := light.NewLight(light.LightTypePoint, light.WithPosition(float32(i), 0, 0), light.WithRange(1))
		lights = append(lights, l)
		s.AddLight(l)
	}
	if !s.Remove(first) {
		t.Fatal("Remove returned false for a live entity")
	}
	if s.Remove(first) {
		t.Error("second Remove returned true")
	}

	g := s.Gather(16, false)
	tail := g.Lights[light.CascadeSlotCount:]
	if len(tail) != len(lights) {
		t.Fatalf("tail length = %d, want %d", len(tail), len(lights))
	}
	for i := range lights {
		if tail[i] != lights[i] {
			t.Errorf("slot %d out of insertion order", light.CascadeSlotCount+i)
		}
	}
	if s.LightCount() != 4 {
		t.Errorf("LightCount = %d, want 4", s.LightCount())
	}
}

func TestScene_GatherDrawablesInWorldSpace(t *testing.T) {
	s := newTestScene()
	e := s.AddRenderable(Renderable{Name: "crate", Bounds: common.Sphere{Radius: 1}})
	s.AddRenderable(Renderable{Name: "bot", Bounds: common.Sphere{Radius: 0.5}, IsDynamic: true})

	m := mgl32.Translate3D(3, 0, 4).Mul4(mgl32.Scale3D(1, 2, 1))
	if !s.SetTransform(e, m) {
		t.Fatal("SetTransform returned false for a live renderable")
	}

	g := s.Gather(16, true)
	if len(g.Drawables) != 2 {
		t.Fatalf("drawables = %d, want 2", len(g.Drawables))
	}
	b := g.Drawables[0].WorldBounds()
	if !vecNear(b.Center, mgl32.Vec3{3, 0, 4}, 1e-5) || b.Radius != 2 {
		t.Errorf("crate bounds = %+v, want center (3,0,4) radius 2", b)
	}
	if g.Drawables[0].Dynamic() || !g.Drawables[1].Dynamic() {
		t.Error("dynamic flags not carried to drawables")
	}
}

func TestScene_SetTransformOnLightFails(t *testing.T) {
	s := newTestScene()
	e := s.AddLight(light.NewLight(light.LightTypePoint, light.WithRange(1)))
	if s.SetTransform(e, mgl32.Ident4()) {
		t.Error("SetTransform succeeded on a light entity")
	}
}

func TestScene_RemoveUpdatesCountsByKind(t *testing.T) {
	s := newTestScene()
	l := s.AddLight(light.NewLight(light.LightTypePoint, light.WithRange(1)))
	r := s.AddRenderable(Renderable{Name: "crate", Bounds: common.Sphere{Radius: 1}})
	s.AddRenderable(Renderable{Name: "barrel", Bounds: common.Sphere{Radius: 1}})

	if !s.Remove(r) {
		t.Fatal("Remove returned false for a live renderable")
	}
	if s.LightCount() != 1 || s.RenderableCount() != 1 {
		t.Errorf("after removing a renderable: %d lights, %d renderables, want 1 and 1", s.LightCount(), s.RenderableCount())
	}
	if s.SetTransform(r, mgl32.Ident4()) {
		t.Error("SetTransform succeeded on a removed renderable")
	}

	if !s.Remove(l) {
		t.Fatal("Remove returned false for a live light")
	}
	if s.LightCount() != 0 || s.RenderableCount() != 1 {
		t.Errorf("after removing a light: %d lights, %d renderables, want 0 and 1", s.LightCount(), s.RenderableCount())
	}
	if g := s.Gather(16, true); len(g.Drawables) != 1 {
		t.Errorf("drawables = %d, want 1", len(g.Drawables))
	}
}

func TestScene_Clear(t *testing.T) {
	s := newTestScene(
		WithLights(light.NewLight(light.LightTypePoint, light.WithRange(1))),
		WithRenderables(Renderable{Bounds: common.Sphere{Radius: 1}}),
	)
	s.Clear()
	if s.LightCount() != 0 || s.RenderableCount() != 0 {
		t.Errorf("counts after Clear = %d lights, %d renderables", s.LightCount(), s.RenderableCount())
	}
	g := s.Gather(16, true)
	if g.Lights.ActiveCount() != 0 || len(g.Drawables) != 0 {
		t.Error("Gather returned content after Clear")
	}
	if len(g.Lights) != light.CascadeSlotCount {
		t.Errorf("empty list length = %d, want %d", len(g.Lights), light.CascadeSlotCount)
	}
}

func TestGatheredView_ProbeSeesDynamicContent(t *testing.T) {
	s := newTestScene(WithRenderables(Renderable{
		Bounds:    common.Sphere{Center: mgl32.Vec3{0, 0, 20}, Radius: 1},
		IsDynamic: true,
	}))
	g := s.Gather(16, true)

	near := common.BuildPerspective(mgl32.DegToRad(60), 1, 1, 10)
	far := common.BuildPerspective(mgl32.DegToRad(60), 1, 10, 50)
	probe := g.Probe()
	if probe.HasDynamicContent(mgl32.Ident4(), &near) {
		t.Error("near volume reported dynamic content")
	}
	if !probe.HasDynamicContent(mgl32.Ident4(), &far) {
		t.Error("far volume missed the dynamic drawable")
	}
}

func TestWorldBounds(t *testing.T) {
	tests := []struct {
		name string
		m    mgl32.Mat4
		want common.Sphere
	}{
		{"identity", mgl32.Ident4(), common.Sphere{Center: mgl32.Vec3{1, 0, 0}, Radius: 2}},
		{"translate", mgl32.Translate3D(0, 5, 0), common.Sphere{Center: mgl32.Vec3{1, 5, 0}, Radius: 2}},
		{"scale", mgl32.Scale3D(3, 1, 1), common.Sphere{Center: mgl32.Vec3{3, 0, 0}, Radius: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WorldBounds(common.Sphere{Center: mgl32.Vec3{1, 0, 0}, Radius: 2}, tt.m)
			if !vecNear(got.Center, tt.want.Center, 1e-5) || math.Abs(float64(got.Radius-tt.want.Radius)) > 1e-5 {
				t.Errorf("WorldBounds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
