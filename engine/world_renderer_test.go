package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/cluster"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/Carmen-Shannon/oxy-lighting/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

func newHeadless(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

// testScene looks down +Z from (0,0,-10) at a point light at the origin, a
// shadow-casting sun and a shadow-casting spot.
func testScene() scene.Scene {
	cam := camera.NewCamera(camera.WithPosition(mgl32.Vec3{0, 0, -10}), camera.WithLookAt(mgl32.Vec3{0, 0, 0}))
	return scene.NewScene("test", cam,
		scene.WithLights(
			light.NewLight(light.LightTypePoint, light.WithRange(5)),
			light.NewLight(light.LightTypeDirectional, light.WithDirection(0, -1, 1), light.WithCastsShadows(true)),
			light.NewLight(light.LightTypeSpot,
				light.WithPosition(0, 5, 0),
				light.WithDirection(0, -1, 0),
				light.WithRange(20),
				light.WithConeAngle(30),
				light.WithCastsShadows(true),
			),
		),
		scene.WithRenderables(
			scene.Renderable{Name: "floor", Bounds: common.Sphere{Center: mgl32.Vec3{0, -1, 0}, Radius: 5}},
		),
	)
}

func setupView(t *testing.T, w WorldRenderer, s scene.Scene, index int) (LightingOutputs, error) {
	t.Helper()
	cam := s.Camera()
	cam.Update()
	return w.Setup(cam.RenderView(index), s.Gather(light.MaxLightCount, true))
}

func TestWorldRenderer_SetupProducesOutputs(t *testing.T) {
	r := newHeadless(t)
	w := NewWorldRenderer(r)

	out, err := setupView(t, w, testScene(), 0)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if out.TileBuffer == nil || out.LightIndexBuffer == nil || out.LightRecordBuffer == nil {
		t.Fatal("Setup returned nil buffers")
	}
	if out.TileBuffer.Name() != "lights/tiles/0" || out.LightRecordBuffer.Name() != "lights/records/0" {
		t.Errorf("buffer names = %q, %q", out.TileBuffer.Name(), out.LightRecordBuffer.Name())
	}
	if !out.ShadowAtlas.Valid() {
		t.Error("atlas handle is not valid")
	}
	if out.LightCount != light.CascadeSlotCount+2 {
		t.Errorf("LightCount = %d, want %d", out.LightCount, light.CascadeSlotCount+2)
	}
	if out.Stats.OccupiedCells == 0 || out.Stats.IndexCount == 0 {
		t.Errorf("stats = %+v, want occupied cells", out.Stats)
	}
	if out.Shadows.CascadingSlices != light.DefaultCascadingSlices || out.Shadows.SpotsPacked != 1 {
		t.Errorf("shadows = %+v, want %d cascades and 1 spot", out.Shadows, light.DefaultCascadingSlices)
	}

	res := out.Resources()
	if res.Tiles != out.TileBuffer || res.Records != out.LightRecordBuffer || res.Atlas != out.ShadowAtlas {
		t.Errorf("resources = %+v do not match the outputs", res)
	}
	if _, err := r.LightingBindGroup("lighting/0", res, wgpu.ShaderStageFragment); !errors.Is(err, renderer.ErrUnsupportedBackend) {
		t.Errorf("headless bind group err = %v, want ErrUnsupportedBackend", err)
	}

	names := make(map[string]bool)
	for _, p := range w.Graph().Passes() {
		names[p.Name] = true
	}
	for _, want := range []string{"shadow/0/cascade/0", "shadow/0/cascade/3", "shadow/0/spot/5"} {
		if !names[want] {
			t.Errorf("pass %q not declared; have %v", want, names)
		}
	}
}

func TestWorldRenderer_AsyncMatchesSync(t *testing.T) {
	dims := WithClusterOptions(cluster.WithDimensions(8, 12))
	syncOut, err := setupView(t, NewWorldRenderer(newHeadless(t), dims), testScene(), 0)
	if err != nil {
		t.Fatalf("sync Setup: %v", err)
	}
	p := profiler.NewProfiler()
	asyncOut, err := setupView(t, NewWorldRenderer(newHeadless(t), dims, WithAsyncCluster(2), WithSetupProfiler(p)), testScene(), 0)
	if err != nil {
		t.Fatalf("async Setup: %v", err)
	}

	if !bytes.Equal(syncOut.TileBuffer.Contents(), asyncOut.TileBuffer.Contents()) {
		t.Error("tile buffers differ between sync and async setup")
	}
	if !bytes.Equal(syncOut.LightRecordBuffer.Contents(), asyncOut.LightRecordBuffer.Contents()) {
		t.Error("light records differ between sync and async setup")
	}
	if syncOut.Stats != asyncOut.Stats {
		t.Errorf("stats differ: %+v vs %+v", syncOut.Stats, asyncOut.Stats)
	}
}

func TestWorldRenderer_LockFailureIsLoggedNotPanicked(t *testing.T) {
	var logs bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	defer common.SetLogger(nil)

	r := newHeadless(t)
	w := NewWorldRenderer(r)

	tiles, err := r.StructBuffer("lights/tiles/0", (&light.GPUTileRecord{}).Size(), light.ClusterCount(light.ClusterDimXY, light.ClusterDimZ))
	if err != nil {
		t.Fatalf("StructBuffer: %v", err)
	}
	held, err := tiles.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer held.Unlock()

	_, err = setupView(t, w, testScene(), 0)
	if !errors.Is(err, renderer.ErrBufferLock) {
		t.Fatalf("err = %v, want ErrBufferLock", err)
	}
	if !strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), "lighting setup aborted") {
		t.Errorf("error not logged: %q", logs.String())
	}
}

func TestWorldRenderer_ViewsAreIsolated(t *testing.T) {
	r := newHeadless(t)
	w := NewWorldRenderer(r)
	s := testScene()

	for i := range 2 {
		out, err := setupView(t, w, s, i)
		if err != nil {
			t.Fatalf("view %d: %v", i, err)
		}
		if want := fmt.Sprintf("lights/indices/%d", i); out.LightIndexBuffer.Name() != want {
			t.Errorf("view %d index buffer = %q, want %q", i, out.LightIndexBuffer.Name(), want)
		}
	}
	if w.ClusterPass(0) == w.ClusterPass(1) {
		t.Error("views share a cluster pass")
	}

	w.ReleaseView(1)
	if _, ok := w.Scheduler().ViewState(1); ok {
		t.Error("released view kept its shadow state")
	}
	if _, ok := w.Scheduler().ViewState(0); !ok {
		t.Error("releasing view 1 dropped view 0")
	}
}
