package shadow

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

const recordSize = 160

func testSettings() Settings {
	return Settings{
		Enabled:            true,
		Resolution:         64,
		CascadingSlices:    4,
		CascadingLambda:    1,
		FarZ:               41,
		Bias:               0.001,
		QuantizeProjection: true,
		CacheMargin:        1,
	}
}

func staticView(frame uint64) camera.RenderView {
	v := camera.NewRenderView(0, mgl32.Ident4(), float32(math.Pi/3), 1, 1, 100)
	v.FrameCount = frame
	return v
}

func sun() light.Light {
	return light.NewLight(light.LightTypeDirectional, light.WithDirection(0.3, -1, 0.2), light.WithCastsShadows(true))
}

type recordView struct {
	viewToLight mgl32.Mat4
	atlas       mgl32.Vec4
}

func readRecord(buf renderer.StructBuffer, slot int) recordView {
	b := buf.Contents()[slot*recordSize:]
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	var r recordView
	for i := range 16 {
		r.viewToLight[i] = f(80 + i*4)
	}
	r.atlas = mgl32.Vec4{f(144), f(148), f(152), f(156)}
	return r
}

// atlasUV maps a view-space point through a record to atlas UV.
func atlasUV(r recordView, p mgl32.Vec3) mgl32.Vec2 {
	ndc := mgl32.TransformCoordinate(p, r.viewToLight)
	return mgl32.Vec2{
		r.atlas[0] + (ndc.X()*0.5+0.5)*r.atlas[2],
		r.atlas[1] + (0.5-ndc.Y()*0.5)*r.atlas[3],
	}
}

func runFrame(t *testing.T, s Scheduler, g renderer.RenderGraph, view camera.RenderView, lights light.LightList, probe DynamicProbe, records renderer.StructBuffer) SetupResult {
	t.Helper()
	res, err := s.Setup(SetupInput{View: view, Lights: lights, Probe: probe}, g, records)
	if err != nil {
		t.Fatalf("frame %d: Setup: %v", view.FrameCount, err)
	}
	if got := len(g.Passes()); got != len(res.RefreshedSlices)+res.SpotsPacked {
		t.Fatalf("frame %d: %d passes declared, want %d", view.FrameCount, got, len(res.RefreshedSlices)+res.SpotsPacked)
	}
	g.Reset()
	return res
}

func TestScheduler_DynamicSliceRoundRobin(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	dynamic := light.NewLight(light.LightTypePoint, light.WithPosition(0, 0, 26), light.WithRange(1), light.WithDynamic(true))
	lights := light.ArrangeLights([]light.Light{sun(), dynamic}, light.MaxLightCount, true)
	probe := ListProbe{Lights: lights}
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	warm := runFrame(t, s, g, staticView(0), lights, probe, records)
	if !slices.Equal(warm.RefreshedSlices, []int{0, 1, 2, 3}) {
		t.Fatalf("warm-up refreshed %v, want every slice", warm.RefreshedSlices)
	}

	for frame := uint64(1); frame <= 10; frame++ {
		res := runFrame(t, s, g, staticView(frame), lights, probe, records)
		want := []int{0}
		if frame%3 == 1 {
			want = []int{0, 2}
		}
		if !slices.Equal(res.RefreshedSlices, want) {
			t.Errorf("frame %d refreshed %v, want %v", frame, res.RefreshedSlices, want)
		}
	}
}

func TestScheduler_StaticSceneReusesSlices(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	runFrame(t, s, g, staticView(0), lights, nil, records)
	before := readRecord(records, 2)
	for frame := uint64(1); frame <= 4; frame++ {
		res := runFrame(t, s, g, staticView(frame), lights, nil, records)
		if !slices.Equal(res.RefreshedSlices, []int{0}) {
			t.Errorf("frame %d refreshed %v, want [0]", frame, res.RefreshedSlices)
		}
	}
	if after := readRecord(records, 2); after != before {
		t.Error("reused slice record changed on a static camera")
	}

	state, ok := s.ViewState(0)
	if !ok || !state.Slices[3].Valid || state.Slices[3].LastRefresh != 0 {
		t.Errorf("slice 3 state = %+v, want valid and last drawn on frame 0", state.Slices[3])
	}
}

func TestScheduler_CameraMotionInvalidates(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	first := staticView(0)
	runFrame(t, s, g, first, lights, nil, records)

	moved := staticView(1)
	moved.View = mgl32.Translate3D(0, 0, -5)
	moved.LastView = first.View
	res := runFrame(t, s, g, moved, lights, nil, records)
	if !slices.Equal(res.RefreshedSlices, []int{0, 1, 2, 3}) {
		t.Errorf("after a 5 unit move refreshed %v, want every slice", res.RefreshedSlices)
	}
}

func TestScheduler_CacheMarginAbsorbsSmallMotion(t *testing.T) {
	settings := testSettings()
	settings.CacheMargin = 1.5
	s := NewScheduler(WithSettings(settings))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	first := staticView(0)
	runFrame(t, s, g, first, lights, nil, records)

	nudged := staticView(1)
	nudged.View = mgl32.Translate3D(0.05, 0, -0.05)
	nudged.LastView = first.View
	res := runFrame(t, s, g, nudged, lights, nil, records)
	if !slices.Equal(res.RefreshedSlices, []int{0}) {
		t.Errorf("small move refreshed %v, want [0]", res.RefreshedSlices)
	}
}

func TestScheduler_LightDirectionChangeInvalidates(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	l := sun()
	lights := light.ArrangeLights([]light.Light{l}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	runFrame(t, s, g, staticView(0), lights, nil, records)
	l.SetDirection(-0.5, -1, 0)
	res := runFrame(t, s, g, staticView(1), lights, nil, records)
	if len(res.RefreshedSlices) != 4 {
		t.Errorf("refreshed %v after the sun moved, want every slice", res.RefreshedSlices)
	}
}

func TestScheduler_PassFiltersAndViewports(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	res, err := s.Setup(SetupInput{View: staticView(0), Lights: lights}, g, records)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if res.AtlasWidth != 64*5 || res.AtlasHeight != 64 {
		t.Errorf("atlas = %dx%d, want 320x64", res.AtlasWidth, res.AtlasHeight)
	}

	exec, _ := renderer.NewRenderer(renderer.BackendTypeHeadless)
	if err := exec.Execute(g, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	history := exec.ExecutedPasses()
	if len(history) != 4 {
		t.Fatalf("executed %d passes, want 4", len(history))
	}
	for i, p := range history {
		wantFilter := renderer.DrawFilterAll
		if i == 3 {
			wantFilter = renderer.DrawFilterStaticOnly
		}
		if p.Filter != wantFilter || p.Technique != renderer.TechniqueShadow {
			t.Errorf("slice %d pass = %+v, want technique shadow filter %v", i, p, wantFilter)
		}
		if want := (common.Rect{X: i * 64, Width: 64, Height: 64}); p.Viewport != want {
			t.Errorf("slice %d viewport = %+v, want %+v", i, p.Viewport, want)
		}
		if p.Target != res.Atlas {
			t.Errorf("slice %d target = %d, want %d", i, p.Target, res.Atlas)
		}
	}
}

func TestScheduler_CascadeRecords(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))
	view := staticView(0)

	if _, err := s.Setup(SetupInput{View: view, Lights: lights}, g, records); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	splits := SplitPositions(view.Near(), 41, 4, 1)
	for slice := range 4 {
		r := readRecord(records, slice)
		want := mgl32.Vec4{float32(slice) / 5, 0, 0.2, 1}
		if r.atlas.Sub(want).Len() > 1e-6 {
			t.Errorf("slice %d atlas = %v, want %v", slice, r.atlas, want)
		}
		mid := mgl32.Vec3{0.1, -0.2, (splits[slice] + splits[slice+1]) / 2}
		uv := atlasUV(r, mid)
		if uv.X() < r.atlas[0] || uv.X() > r.atlas[0]+r.atlas[2] || uv.Y() < 0 || uv.Y() > 1 {
			t.Errorf("slice %d: point %v maps to uv %v outside its region", slice, mid, uv)
		}
	}
}

func TestScheduler_SpotAtlasAndTransforms(t *testing.T) {
	settings := testSettings()
	settings.Resolution = 512
	s := NewScheduler(WithSettings(settings))
	g := renderer.NewRenderGraph()

	ls := []light.Light{sun()}
	for i := range 24 {
		f := float32(i)
		ls = append(ls, light.NewLight(light.LightTypeSpot,
			light.WithPosition(f-12, 6, 3+f*1.5),
			light.WithDirection(0.1, -1, 0.2),
			light.WithRange(12), light.WithConeAngle(30),
			light.WithCastsShadows(true)))
	}
	lights := light.ArrangeLights(ls, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))
	view := staticView(0)

	res, err := s.Setup(SetupInput{View: view, Lights: lights}, g, records)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if res.SpotsPacked == 0 {
		t.Fatal("no spot shadows packed")
	}

	spotRegion := common.Rect{X: 512 * 4, Width: 512, Height: 512}
	var rects []common.Rect
	for _, p := range g.Passes() {
		if p.Viewport.X < spotRegion.X {
			continue
		}
		if !p.Viewport.Within(spotRegion) {
			t.Errorf("pass %s viewport %+v outside the spot region", p.Name, p.Viewport)
		}
		rects = append(rects, p.Viewport)
	}
	if len(rects) != res.SpotsPacked {
		t.Fatalf("%d spot passes, want %d", len(rects), res.SpotsPacked)
	}
	for i, a := range rects {
		for _, b := range rects[i+1:] {
			if a.Overlaps(b) {
				t.Errorf("spot viewports %+v and %+v overlap", a, b)
			}
		}
	}

	// A point halfway down each packed spot's axis lands inside its atlas rect.
	checked := 0
	for slot := light.CascadeSlotCount; slot < len(lights); slot++ {
		r := readRecord(records, slot)
		if r.atlas[2] == 0 {
			continue
		}
		l := lights[slot]
		world := l.Position().Add(l.Direction().Mul(l.FarRange() / 2))
		uv := atlasUV(r, common.TransformPoint(view.View, world))
		if uv.X() < r.atlas[0] || uv.X() > r.atlas[0]+r.atlas[2] || uv.Y() < r.atlas[1] || uv.Y() > r.atlas[1]+r.atlas[3] {
			t.Errorf("slot %d: uv %v outside rect %v", slot, uv, r.atlas)
		}
		checked++
	}
	if checked != res.SpotsPacked {
		t.Errorf("%d records carry an atlas rect, want %d", checked, res.SpotsPacked)
	}
}

func TestScheduler_AtlasExhaustionStopsSpots(t *testing.T) {
	settings := testSettings()
	settings.Resolution = 300
	s := NewScheduler(WithSettings(settings))
	g := renderer.NewRenderGraph()

	spot := func(z float32) light.Light {
		return light.NewLight(light.LightTypeSpot, light.WithPosition(0, 0, z), light.WithDirection(0, 0, 1),
			light.WithRange(5), light.WithConeAngle(20), light.WithCastsShadows(true))
	}
	// Sizes 256, 256 and 1: the second is rejected and the third is never tried.
	lights := light.ArrangeLights([]light.Light{spot(1), spot(2), spot(100)}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	res, err := s.Setup(SetupInput{View: staticView(0), Lights: lights}, g, records)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if res.CascadingSlices != 0 || res.AtlasWidth != 300 {
		t.Errorf("no cascade light: slices %d width %d, want 0 and 300", res.CascadingSlices, res.AtlasWidth)
	}
	if res.SpotsPacked != 1 || res.SpotsDropped != 2 {
		t.Errorf("packed %d dropped %d, want 1 and 2", res.SpotsPacked, res.SpotsDropped)
	}
	for _, slot := range []int{5, 6} {
		r := readRecord(records, slot)
		if r.atlas != (mgl32.Vec4{}) || r.viewToLight != (mgl32.Mat4{}) {
			t.Errorf("dropped slot %d carries a shadow transform", slot)
		}
	}
	if r := readRecord(records, 0); r.atlas != (mgl32.Vec4{}) {
		t.Errorf("empty cascade slot record = %v, want zero", r.atlas)
	}
}

func TestScheduler_LockFailureDeclaresNothing(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	held, err := records.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err = s.Setup(SetupInput{View: staticView(0), Lights: lights}, g, records)
	_ = held.Unlock()

	if !errors.Is(err, renderer.ErrBufferLock) {
		t.Fatalf("err = %v, want ErrBufferLock", err)
	}
	if n := len(g.Passes()); n != 0 {
		t.Errorf("%d passes declared after a failed setup", n)
	}
	if state, ok := s.ViewState(0); ok && state.Slices[1].Valid {
		t.Error("cache committed after a failed setup")
	}

	// The next frame starts from scratch.
	res := runFrame(t, s, g, staticView(1), lights, nil, records)
	if len(res.RefreshedSlices) != 4 {
		t.Errorf("refreshed %v, want every slice", res.RefreshedSlices)
	}
}

func TestScheduler_RecordCapacity(t *testing.T) {
	s := NewScheduler(WithSettings(testSettings()))
	lights := light.ArrangeLights([]light.Light{sun()}, light.MaxLightCount, true)
	records := renderer.NewStructBuffer("records", recordSize, 2)

	_, err := s.Setup(SetupInput{View: staticView(0), Lights: lights}, renderer.NewRenderGraph(), records)
	if !errors.Is(err, ErrRecordCapacity) {
		t.Errorf("err = %v, want ErrRecordCapacity", err)
	}
}

func TestScheduler_ShadowsDisabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	s := NewScheduler(WithSettings(settings))
	g := renderer.NewRenderGraph()
	lights := light.ArrangeLights([]light.Light{
		light.NewLight(light.LightTypePoint, light.WithPosition(0, 0, 5)),
	}, light.MaxLightCount, false)
	records := renderer.NewStructBuffer("records", recordSize, len(lights))

	res, err := s.Setup(SetupInput{View: staticView(0), Lights: lights}, g, records)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if res.Atlas.Valid() || len(g.Passes()) != 0 {
		t.Errorf("disabled shadows produced atlas %d and %d passes", res.Atlas, len(g.Passes()))
	}
	if got := binary.LittleEndian.Uint32(records.Contents()[4*recordSize:]); got != uint32(light.LightTypePoint) {
		t.Errorf("slot 4 type = %d, want point", got)
	}
}

func TestSplitPositions(t *testing.T) {
	tests := []struct {
		name   string
		lambda float32
		want   []float32
	}{
		{"uniform", 1, []float32{1, 11, 21, 31, 41}},
		{"quadratic", 2, []float32{1, 3.5, 11, 23.5, 41}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPositions(1, 41, 4, tt.lambda)
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-4 {
					t.Errorf("SplitPositions()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
