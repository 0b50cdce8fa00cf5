package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

type testDrawable struct {
	bounds  common.Sphere
	dynamic bool
}

func (d testDrawable) WorldBounds() common.Sphere { return d.bounds }
func (d testDrawable) Dynamic() bool              { return d.dynamic }

func TestFill_WritesAndUnlocks(t *testing.T) {
	buf := NewStructBuffer("test", 4, 3)

	err := Fill(buf, func(v *WriteView) error {
		if v.Len() != 3 {
			t.Fatalf("Len = %d, want 3", v.Len())
		}
		v.Element(1)[0] = 0xAB
		return nil
	})
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := buf.Contents()[4]; got != 0xAB {
		t.Errorf("element 1 byte 0 = %#x, want 0xab", got)
	}

	// The buffer must be lockable again after Fill returns.
	if err := Fill(buf, func(*WriteView) error { return nil }); err != nil {
		t.Errorf("second Fill: %v", err)
	}
}

func TestFill_LockFailureWrapsErrBufferLock(t *testing.T) {
	buf := NewStructBuffer("busy", 4, 1)
	view, err := buf.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer view.Unlock()

	called := false
	err = Fill(buf, func(*WriteView) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrBufferLock) {
		t.Fatalf("err = %v, want ErrBufferLock", err)
	}
	if called {
		t.Error("fill function ran without a lock")
	}
}

func TestFill_UnlocksOnCallbackError(t *testing.T) {
	buf := NewStructBuffer("fail", 4, 1)
	boom := errors.New("boom")

	if err := Fill(buf, func(*WriteView) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := buf.Lock(); err != nil {
		t.Errorf("buffer still locked after a failed fill: %v", err)
	}
}

func TestWriteView_UnlockIdempotent(t *testing.T) {
	calls := 0
	v := NewWriteView(make([]byte, 8), 4, func() error {
		calls++
		return nil
	})
	_ = v.Unlock()
	_ = v.Unlock()
	if calls != 1 {
		t.Errorf("unlock callback ran %d times, want 1", calls)
	}
}

func TestRenderGraph_PersistentTargetHandles(t *testing.T) {
	g := NewRenderGraph()
	a := g.AddPersistentTargetSet("atlas/0", TargetSetDesc{Name: "atlas", Width: 64, Height: 16})
	b := g.AddPersistentTargetSet("atlas/1", TargetSetDesc{Name: "atlas", Width: 64, Height: 16})
	again := g.AddPersistentTargetSet("atlas/0", TargetSetDesc{Name: "atlas", Width: 80, Height: 16})

	if !a.Valid() || a == b {
		t.Fatalf("handles a=%d b=%d must be valid and distinct", a, b)
	}
	if again != a {
		t.Errorf("same key returned handle %d, want %d", again, a)
	}
	if desc, _ := g.TargetSet(a); desc.Width != 80 {
		t.Errorf("width = %d, want the updated 80", desc.Width)
	}
}

func TestRenderGraph_AddPassValidatesViewport(t *testing.T) {
	g := NewRenderGraph()
	h := g.AddPersistentTargetSet("atlas", TargetSetDesc{Width: 64, Height: 16})

	tests := []struct {
		name    string
		pass    RenderPass
		wantErr bool
	}{
		{"inside", RenderPass{Name: "a", Target: h, Viewport: common.Rect{X: 16, Width: 16, Height: 16}}, false},
		{"overflows", RenderPass{Name: "b", Target: h, Viewport: common.Rect{X: 56, Width: 16, Height: 16}}, true},
		{"unknown target", RenderPass{Name: "c", Target: h + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.AddPass(tt.pass); (err != nil) != tt.wantErr {
				t.Errorf("AddPass() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if n := len(g.Passes()); n != 1 {
		t.Errorf("declared passes = %d, want 1", n)
	}
}

func TestRenderer_HeadlessExecute(t *testing.T) {
	r, err := NewRenderer(BackendTypeHeadless)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	defer r.Release()

	g := NewRenderGraph()
	h := g.AddPersistentTargetSet("atlas", TargetSetDesc{Width: 32, Height: 32})
	cull := common.BuildOrtho(10, 10, 0, 100)
	err = g.AddPass(RenderPass{
		Name:     "shadow",
		Target:   h,
		Viewport: common.Rect{Width: 32, Height: 32},
		Build: func(ctx RenderContext) {
			ctx.DrawScene(DrawRequest{
				Technique:  TechniqueShadow,
				Filter:     DrawFilterStaticOnly,
				View:       mgl32.Ident4(),
				Projection: mgl32.Ident4(),
				Cull:       &cull,
			})
		},
	})
	if err != nil {
		t.Fatalf("AddPass: %v", err)
	}

	drawables := []Drawable{
		testDrawable{bounds: common.Sphere{Center: mgl32.Vec3{0, 0, 10}, Radius: 1}},
		testDrawable{bounds: common.Sphere{Center: mgl32.Vec3{0, 0, 10}, Radius: 1}, dynamic: true},
		testDrawable{bounds: common.Sphere{Center: mgl32.Vec3{50, 0, 10}, Radius: 1}},
	}
	if err := r.Execute(g, drawables); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := r.ExecutedPasses()
	if len(history) != 1 {
		t.Fatalf("executed %d passes, want 1", len(history))
	}
	if got := history[0]; got.Drawn != 1 || got.Technique != TechniqueShadow || got.Filter != DrawFilterStaticOnly {
		t.Errorf("executed pass = %+v, want one static drawable under the shadow technique", got)
	}
	if len(g.Passes()) != 0 {
		t.Error("Execute must reset the declared passes")
	}
}

func TestRenderer_StructBufferCache(t *testing.T) {
	r, err := NewRenderer(BackendTypeHeadless)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	a, _ := r.StructBuffer("tiles", 8, 10)
	b, _ := r.StructBuffer("tiles", 8, 10)
	c, _ := r.StructBuffer("tiles", 8, 20)
	if a != b {
		t.Error("same name and size must return the cached buffer")
	}
	if c == a || c.ElementCount() != 20 {
		t.Error("resized buffer must be re-created")
	}
}

func TestLightingBindGroupLayoutEntries(t *testing.T) {
	entries := LightingBindGroupLayoutEntries(wgpu.ShaderStageFragment | wgpu.ShaderStageCompute)
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Binding != uint32(i) {
			t.Errorf("entry %d binding = %d", i, e.Binding)
		}
		if e.Visibility != wgpu.ShaderStageFragment|wgpu.ShaderStageCompute {
			t.Errorf("entry %d visibility = %v", i, e.Visibility)
		}
	}
	for _, b := range []int{LightingBindingTiles, LightingBindingIndices, LightingBindingRecords} {
		if entries[b].Buffer.Type != wgpu.BufferBindingTypeReadOnlyStorage {
			t.Errorf("binding %d is not read-only storage", b)
		}
	}
	if entries[LightingBindingShadowAtlas].Texture.SampleType != wgpu.TextureSampleTypeDepth {
		t.Error("atlas binding is not a depth texture")
	}
	if entries[LightingBindingShadowSampler].Sampler.Type != wgpu.SamplerBindingTypeComparison {
		t.Error("sampler binding is not a comparison sampler")
	}
}

func TestRenderer_LightingBindGroupHeadless(t *testing.T) {
	r, err := NewRenderer(BackendTypeHeadless)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	defer r.Release()

	tiles, _ := r.StructBuffer("lights/tiles/0", 8, 4)
	indices, _ := r.StructBuffer("lights/indices/0", 4, 4)
	records, _ := r.StructBuffer("lights/records/0", 160, 4)

	tests := []struct {
		name        string
		res         LightingResources
		unsupported bool
	}{
		{"missing tiles", LightingResources{Indices: indices, Records: records, Atlas: 1}, false},
		{"missing records", LightingResources{Tiles: tiles, Indices: indices, Atlas: 1}, false},
		{"invalid atlas", LightingResources{Tiles: tiles, Indices: indices, Records: records}, false},
		{"complete", LightingResources{Tiles: tiles, Indices: indices, Records: records, Atlas: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := r.LightingBindGroup("lighting", tt.res, wgpu.ShaderStageFragment)
			if err == nil || g != nil {
				t.Fatal("headless backend returned a bind group")
			}
			if got := errors.Is(err, ErrUnsupportedBackend); got != tt.unsupported {
				t.Errorf("err = %v, unsupported = %v, want %v", err, got, tt.unsupported)
			}
		})
	}
}
