package shadow

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrRecordCapacity is returned when the light record buffer is smaller than the light list.
var ErrRecordCapacity = errors.New("shadow: light record buffer too small")

// CascadeSlice is the cached state of one cascade slice.
type CascadeSlice struct {
	Frustum       common.Frustum // volume the slice's shadow map covers, in the current view space
	LightViewProj mgl32.Mat4     // world to shadow clip space
	Valid         bool
	LastRefresh   uint64 // frame the slice was last drawn
}

// ViewState is the per-view temporal state of the scheduler.
type ViewState struct {
	Slices     [light.MaxCascadingSlices]CascadeSlice
	LightDir   mgl32.Vec3 // cascade light direction the slices were drawn with
	Resolution int

	packer AtlasPacker
}

// SetupInput is everything the scheduler reads for one view and frame.
type SetupInput struct {
	View   camera.RenderView
	Lights light.LightList
	Probe  DynamicProbe // nil means the scene has no dynamic content
}

// SetupResult describes the shadow work declared for one view and frame.
type SetupResult struct {
	Atlas            renderer.TargetSetHandle
	AtlasWidth       int
	AtlasHeight      int
	CascadingSlices  int
	RefreshedSlices  []int
	SpotsPacked      int
	SpotsDropped     int
	AtlasUtilization float64
}

type schedulerImpl struct {
	mu *sync.Mutex

	settings   Settings
	projection ShadowProjection
	views      map[int]*ViewState
}

// Scheduler decides which shadow maps are drawn each frame, packs them into one
// atlas per view and writes the per-light shader records that address them.
//
// One directional light (list slot 0) gets cascaded shadows. Slice 0 is drawn
// every frame; farther slices are reused while their cached volume still covers
// the view, with one slice per frame redrawn in turn when dynamic content
// overlaps it. Shadow-casting spot lights share the atlas region to the right
// of the cascades and are packed fresh every frame.
type Scheduler interface {
	// Setup plans one view's shadow work, declares its passes on graph and fills records.
	//
	// Parameters:
	//   - in: the view, its light list and the dynamic content probe
	//   - graph: the render graph the atlas and passes are declared on
	//   - records: light record buffer with at least len(in.Lights) elements
	//
	// Returns:
	//   - SetupResult: the atlas handle and what was scheduled
	//   - error: a wrapped renderer.ErrBufferLock or ErrRecordCapacity; no passes are declared on error
	Setup(in SetupInput, graph renderer.RenderGraph, records renderer.StructBuffer) (SetupResult, error)

	// Settings returns the active settings.
	//
	// Returns:
	//   - Settings: the settings
	Settings() Settings

	// SetSettings replaces the settings. Cached slices are dropped.
	//
	// Parameters:
	//   - s: the new settings
	SetSettings(s Settings)

	// ViewState returns a copy of a view's cached state.
	//
	// Parameters:
	//   - index: the view index
	//
	// Returns:
	//   - ViewState: the state
	//   - bool: false if the view has not been set up
	ViewState(index int) (ViewState, bool)

	// ResetView drops a view's cached state.
	//
	// Parameters:
	//   - index: the view index
	ResetView(index int)
}

var _ Scheduler = &schedulerImpl{}

// NewScheduler creates a Scheduler with DefaultSettings.
//
// Parameters:
//   - options: variadic list of SchedulerBuilderOption functions
//
// Returns:
//   - Scheduler: the scheduler
func NewScheduler(options ...SchedulerBuilderOption) Scheduler {
	s := &schedulerImpl{
		mu:       &sync.Mutex{},
		settings: DefaultSettings(),
		views:    make(map[int]*ViewState),
	}
	for _, opt := range options {
		opt(s)
	}
	s.settings = s.settings.normalized()
	if s.projection == nil {
		s.projection = NewUniformShadowProjection(s.settings.Resolution)
	}
	return s
}

// SplitPositions returns the slices+1 cascade split depths
// lerp(near, farZ, (i/slices)^lambda).
//
// Parameters:
//   - near: view near depth
//   - farZ: shadow distance
//   - slices: slice count
//   - lambda: distribution exponent
//
// Returns:
//   - []float32: split depths, first near and last farZ
func SplitPositions(near, farZ float32, slices int, lambda float32) []float32 {
	out := make([]float32, slices+1)
	for i := range slices {
		t := float32(math.Pow(float64(i)/float64(slices), float64(lambda)))
		out[i] = common.Lerp(near, farZ, t)
	}
	out[slices] = farZ
	return out
}

// cascadePlan is one slice's outcome for the current frame.
type cascadePlan struct {
	slice   CascadeSlice
	refresh bool
	view    mgl32.Mat4
	proj    mgl32.Mat4
	cull    common.Frustum
}

// spotPlan is one packed spot light for the current frame.
type spotPlan struct {
	slot int
	rect AtlasRect
	view mgl32.Mat4
	proj mgl32.Mat4
	cull common.Frustum
}

func (s *schedulerImpl) Setup(in SetupInput, graph renderer.RenderGraph, records renderer.StructBuffer) (SetupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := in.View
	lights := in.Lights
	settings := s.settings

	cascadeLight := lights.CascadeLight()
	if cascadeLight != nil && cascadeLight.Type() != light.LightTypeDirectional {
		cascadeLight = nil
	}
	slices := 0
	if settings.Enabled && cascadeLight != nil {
		slices = settings.CascadingSlices
	}

	if records == nil {
		return SetupResult{}, fmt.Errorf("%w: no buffer", ErrRecordCapacity)
	}
	if need := max(len(lights), slices); records.ElementCount() < need {
		return SetupResult{}, fmt.Errorf("%w: %d records, need %d", ErrRecordCapacity, records.ElementCount(), need)
	}

	if !settings.Enabled {
		err := renderer.Fill(records, func(w *renderer.WriteView) error {
			writeBaseRecords(w, lights, view.View)
			return nil
		})
		if err != nil {
			return SetupResult{}, fmt.Errorf("shadow setup (view %d): %w", view.Index, err)
		}
		return SetupResult{}, nil
	}

	state := s.viewState(view.Index, settings)
	if cascadeLight == nil || !cascadeLight.Direction().ApproxEqualThreshold(state.LightDir, 1e-5) {
		state.Slices = [light.MaxCascadingSlices]CascadeSlice{}
	}

	res := settings.Resolution
	atlasW, atlasH := res*(slices+1), res
	atlasOffset := res * slices
	viewInverse := view.ViewInverse()

	var cascades [light.MaxCascadingSlices]cascadePlan
	if slices > 0 {
		s.planCascades(cascades[:slices], state, view, viewInverse, cascadeLight, in.Probe, settings)
	}

	spots, dropped := s.planSpots(state, view, lights)

	fw, fh := float32(atlasW), float32(atlasH)
	err := renderer.Fill(records, func(w *renderer.WriteView) error {
		writeBaseRecords(w, lights, view.View)
		for i := range slices {
			rec := light.ToGPULightShaderRecord(cascadeLight, view.View)
			rec.SetViewToLight(cascades[i].slice.LightViewProj.Mul4(viewInverse))
			rec.SetAtlasTransform(float32(i*res)/fw, 0, float32(res)/fw, 1)
			rec.Put(w.Element(i))
		}
		for _, sp := range spots {
			rec := light.ToGPULightShaderRecord(lights[sp.slot], view.View)
			rec.SetViewToLight(sp.proj.Mul4(sp.view).Mul4(viewInverse))
			rec.SetAtlasTransform(
				float32(atlasOffset+sp.rect.X)/fw,
				float32(sp.rect.Y)/fh,
				float32(sp.rect.Width)/fw,
				float32(sp.rect.Height)/fh,
			)
			rec.Put(w.Element(sp.slot))
		}
		return nil
	})
	if err != nil {
		return SetupResult{}, fmt.Errorf("shadow setup (view %d): %w", view.Index, err)
	}

	for i := range slices {
		state.Slices[i] = cascades[i].slice
	}
	if cascadeLight != nil {
		state.LightDir = cascadeLight.Direction()
	}

	atlas := graph.AddPersistentTargetSet(fmt.Sprintf("shadow/atlas/%d", view.Index), renderer.TargetSetDesc{
		Name:        "shadow atlas",
		Width:       atlasW,
		Height:      atlasH,
		DepthFormat: renderer.DepthFormat32Float,
		Comparison:  true,
	})

	result := SetupResult{
		Atlas:            atlas,
		AtlasWidth:       atlasW,
		AtlasHeight:      atlasH,
		CascadingSlices:  slices,
		SpotsPacked:      len(spots),
		SpotsDropped:     dropped,
		AtlasUtilization: state.packer.Utilization(),
	}

	var errs []error
	for i := range slices {
		c := cascades[i]
		if !c.refresh {
			continue
		}
		result.RefreshedSlices = append(result.RefreshedSlices, i)
		filter := renderer.DrawFilterAll
		if i == slices-1 {
			filter = renderer.DrawFilterStaticOnly
		}
		errs = append(errs, graph.AddPass(shadowPass(
			fmt.Sprintf("shadow/%d/cascade/%d", view.Index, i),
			atlas,
			common.Rect{X: i * res, Y: 0, Width: res, Height: res},
			filter, c.view, c.proj, c.cull,
		)))
	}
	for _, sp := range spots {
		errs = append(errs, graph.AddPass(shadowPass(
			fmt.Sprintf("shadow/%d/spot/%d", view.Index, sp.slot),
			atlas,
			common.Rect{X: atlasOffset + sp.rect.X, Y: sp.rect.Y, Width: sp.rect.Width, Height: sp.rect.Height},
			renderer.DrawFilterAll, sp.view, sp.proj, sp.cull,
		)))
	}
	if err := errors.Join(errs...); err != nil {
		return result, fmt.Errorf("shadow setup (view %d): %w", view.Index, err)
	}

	common.Logger().Debug("shadows scheduled",
		"component", "shadow",
		"view", view.Index,
		"cascades", slices,
		"refreshed", len(result.RefreshedSlices),
		"spots", len(spots),
		"dropped", dropped,
	)
	return result, nil
}

// planCascades decides, per slice, whether the cached shadow map can be reused
// and computes new projections for the slices that are redrawn.
// Caller must hold the mutex.
func (s *schedulerImpl) planCascades(out []cascadePlan, state *ViewState, view camera.RenderView, viewInverse mgl32.Mat4, cascadeLight light.Light, probe DynamicProbe, settings Settings) {
	slices := len(out)
	near := view.Near()
	positions := SplitPositions(near, settings.FarZ, slices, settings.CascadingLambda)
	delta := view.ViewDelta()

	for i := range slices {
		zn := max(positions[i], near)
		zf := max(min(positions[i+1], settings.FarZ), zn+1e-3)
		sub := view.ViewFrustum
		sub.SetNearZ(zn)
		sub.SetFarZ(zf)

		cached := state.Slices[i]
		if !s.needsRefresh(i, slices, cached, delta, sub, view, probe) {
			cached.Frustum = cached.Frustum.Transform(delta)
			out[i] = cascadePlan{slice: cached}
			continue
		}

		volume := sub
		volume.Scale(settings.CacheMargin)
		lv, lp, cull := s.projection.Calculate(viewInverse, cascadeLight.Direction(), volume, settings.FarZ, settings.QuantizeProjection)
		out[i] = cascadePlan{
			slice: CascadeSlice{
				Frustum:       volume,
				LightViewProj: lp.Mul4(lv),
				Valid:         true,
				LastRefresh:   view.FrameCount,
			},
			refresh: true,
			view:    lv,
			proj:    lp,
			cull:    cull,
		}
	}
}

// needsRefresh reports whether slice i must be redrawn this frame.
func (s *schedulerImpl) needsRefresh(i, slices int, cached CascadeSlice, delta mgl32.Mat4, sub common.Frustum, view camera.RenderView, probe DynamicProbe) bool {
	if i == 0 || !cached.Valid {
		return true
	}
	if cached.Frustum.InsideFrustum(delta, sub) != common.Inside {
		return true
	}
	if i == slices-1 || probe == nil {
		return false
	}
	turn := int(view.FrameCount%uint64(slices-1)) + 1
	return i == turn && probe.HasDynamicContent(view.View, &sub)
}

// planSpots packs the shadow-casting spot lights in list order. Packing stops
// at the first rejection; the remaining spots are counted as dropped.
// Caller must hold the mutex.
func (s *schedulerImpl) planSpots(state *ViewState, view camera.RenderView, lights light.LightList) ([]spotPlan, int) {
	state.packer.Reset()
	forward := view.Forward()

	var spots []spotPlan
	dropped := 0
	exhausted := false
	for slot := light.CascadeSlotCount; slot < len(lights); slot++ {
		l := lights[slot]
		if l == nil || l.Type() != light.LightTypeSpot || !l.CastsShadows() {
			continue
		}
		if exhausted {
			dropped++
			continue
		}
		size := light.SpotShadowSize(view.EyePosition.Sub(l.Position()).Len())
		rect, ok := state.packer.Insert(size, size)
		if !ok {
			exhausted = true
			dropped++
			common.Logger().Debug("shadow atlas full",
				"component", "shadow",
				"view", view.Index,
				"slot", slot,
				"size", size,
			)
			continue
		}
		lv, lp, cull := spotProjection(l, forward)
		spots = append(spots, spotPlan{slot: slot, rect: rect, view: lv, proj: lp, cull: cull})
	}
	return spots, dropped
}

// viewState returns the view's state, creating or resizing it for settings.
// Caller must hold the mutex.
func (s *schedulerImpl) viewState(index int, settings Settings) *ViewState {
	state, ok := s.views[index]
	if !ok || state.Resolution != settings.Resolution {
		state = &ViewState{
			Resolution: settings.Resolution,
			packer:     NewAtlasPacker(settings.Resolution, settings.Resolution),
		}
		s.views[index] = state
	}
	return state
}

func (s *schedulerImpl) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *schedulerImpl) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.normalized()
	s.projection = NewUniformShadowProjection(s.settings.Resolution)
	s.views = make(map[int]*ViewState)
}

func (s *schedulerImpl) ViewState(index int) (ViewState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.views[index]
	if !ok {
		return ViewState{}, false
	}
	return *state, true
}

func (s *schedulerImpl) ResetView(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, index)
}

// writeBaseRecords clears the buffer and writes every listed slot's base record.
func writeBaseRecords(w *renderer.WriteView, lights light.LightList, view mgl32.Mat4) {
	w.Clear()
	for i, l := range lights {
		rec := light.ToGPULightShaderRecord(l, view)
		rec.Put(w.Element(i))
	}
}

// shadowPass declares a depth-only pass drawing the scene from a shadow camera.
// Everything the callback uses is captured by value.
func shadowPass(name string, target renderer.TargetSetHandle, viewport common.Rect, filter renderer.DrawFilter, lightView, lightProj mgl32.Mat4, cull common.Frustum) renderer.RenderPass {
	return renderer.RenderPass{
		Name:     name,
		Target:   target,
		Viewport: viewport,
		Clear:    true,
		Build: func(ctx renderer.RenderContext) {
			c := cull
			ctx.DrawScene(renderer.DrawRequest{
				Technique:  renderer.TechniqueShadow,
				Filter:     filter,
				View:       lightView,
				Projection: lightProj,
				Cull:       &c,
			})
		},
	}
}
